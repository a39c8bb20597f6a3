// Package resolve turns one manifest attribute into rendered HTML.
package resolve

import (
	"context"
	"strings"
	"time"

	"github.com/hyperifyio/catalogbuilder/internal/manifest"
	"github.com/hyperifyio/catalogbuilder/internal/metrics"
	"github.com/hyperifyio/catalogbuilder/internal/render"
	"github.com/hyperifyio/catalogbuilder/internal/section"
	"github.com/hyperifyio/catalogbuilder/internal/source"
)

// Rendered is an attribute ready for display.
type Rendered struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	HTML        string `json:"html"`
	Source      string `json:"source,omitempty"`
}

// Result is the outcome of resolving one attribute. Exactly one of Attribute
// and Failure is set, or neither when the attribute is intentionally absent.
type Result struct {
	Key       string
	Attribute *Rendered
	Failure   *Failure
}

// Absent reports an attribute that resolved to nothing to display.
func (r Result) Absent() bool { return r.Attribute == nil && r.Failure == nil }

var defaultRenderer = render.New(render.DefaultOptions())

// Resolver fetches, extracts and renders attribute content.
type Resolver struct {
	Fetcher  source.Fetcher
	Renderer *render.Renderer
	Metrics  metrics.Recorder
}

// Resolve never returns an error; failures are reported in the Result.
func (r *Resolver) Resolve(ctx context.Context, repo source.Repo, key string, spec manifest.AttributeSpec) Result {
	attr, err := r.resolve(ctx, repo, key, spec)
	res := Result{Key: key, Attribute: attr}
	outcome := "ok"
	switch {
	case err != nil:
		f := Classify(err)
		f.Attribute = key
		res.Failure = &f
		res.Attribute = nil
		outcome = f.Code
	case attr == nil:
		outcome = "absent"
	}
	r.recorder().IncAttributeResult(key, outcome)
	return res
}

func (r *Resolver) resolve(ctx context.Context, repo source.Repo, key string, spec manifest.AttributeSpec) (*Rendered, error) {
	display, ok := manifest.DisplayName(key)
	if !ok {
		return nil, &manifest.UnknownAttributeError{Key: key}
	}
	kind, err := spec.Validate(key)
	if err != nil {
		return nil, err
	}
	switch kind {
	case manifest.KindRemoteDocument:
		return r.remote(ctx, repo, key, display, spec)
	case manifest.KindInline:
		return r.inline(key, display, spec)
	}
	return nil, &manifest.InvalidSpecError{Key: key, Reason: "unhandled type " + spec.Type}
}

func (r *Resolver) remote(ctx context.Context, repo source.Repo, key, display string, spec manifest.AttributeSpec) (*Rendered, error) {
	loc := source.Location{Repo: repo, Path: spec.Path()}
	body, err := r.fetch(ctx, loc)
	if err != nil {
		return nil, err
	}
	text, err := section.Extract(section.NewDocument(loc.Path, body), spec.Start(), spec.End())
	if err != nil {
		return nil, err
	}
	out, err := r.renderer().Render(text, render.KindMarkdown)
	if err != nil {
		return nil, &manifest.InvalidSpecError{Key: key, Reason: "render failed", Err: err}
	}
	return &Rendered{Key: key, DisplayName: display, HTML: out, Source: loc.BlobURL()}, nil
}

func (r *Resolver) inline(key, display string, spec manifest.AttributeSpec) (*Rendered, error) {
	if spec.Data == nil || strings.TrimSpace(*spec.Data) == "" {
		return nil, nil
	}
	data := *spec.Data
	out, err := r.renderer().Render(data, render.Detect(data))
	if err != nil {
		return nil, &manifest.InvalidSpecError{Key: key, Reason: "render failed", Err: err}
	}
	return &Rendered{Key: key, DisplayName: display, HTML: out, Source: spec.Path()}, nil
}

func (r *Resolver) fetch(ctx context.Context, loc source.Location) ([]byte, error) {
	start := time.Now()
	body, err := r.Fetcher.Fetch(ctx, loc)
	r.recorder().ObserveFetch("document", time.Since(start), err == nil)
	if err != nil {
		return nil, AsFetchError(loc, err)
	}
	return body, nil
}

func (r *Resolver) renderer() *render.Renderer {
	if r.Renderer == nil {
		return defaultRenderer
	}
	return r.Renderer
}

func (r *Resolver) recorder() metrics.Recorder {
	if r.Metrics == nil {
		return metrics.NoopRecorder{}
	}
	return r.Metrics
}
