package resolve

import (
	"context"
	"errors"

	"github.com/hyperifyio/catalogbuilder/internal/manifest"
	"github.com/hyperifyio/catalogbuilder/internal/render"
	"github.com/hyperifyio/catalogbuilder/internal/section"
	"github.com/hyperifyio/catalogbuilder/internal/source"
)

// Failure codes.
const (
	CodeHeaderNotFound   = "header_not_found"
	CodeHeaderOrder      = "header_order"
	CodeFetch            = "fetch"
	CodeInvalidSpec      = "invalid_spec"
	CodeUnknownAttribute = "unknown_attribute"
	CodeManifest         = "manifest"
	CodeRender           = "render"
	CodeCanceled         = "canceled"
	CodeInternal         = "internal"
)

// Failure is the serializable form of an attribute or manifest error.
type Failure struct {
	Attribute string `json:"attribute,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Classify maps err to a Failure.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Code: CodeInternal, Message: "unknown error"}
	}
	f := Failure{Code: CodeInternal, Message: err.Error()}
	var (
		notFound *section.HeaderNotFoundError
		order    *section.HeaderOrderError
		fetchErr *source.FetchError
		unknown  *manifest.UnknownAttributeError
		manErr   *manifest.ManifestError
		invalid  *manifest.InvalidSpecError
		rendErr  *render.Error
	)
	switch {
	case errors.As(err, &manErr):
		f.Code = CodeManifest
		if errors.As(err, &fetchErr) {
			f.Retryable = fetchErr.Retryable()
		}
	case errors.As(err, &fetchErr):
		f.Code = CodeFetch
		if fetchErr.Kind == source.KindCanceled {
			f.Code = CodeCanceled
		}
		f.Retryable = fetchErr.Retryable()
	case errors.As(err, &notFound):
		f.Code = CodeHeaderNotFound
	case errors.As(err, &order):
		f.Code = CodeHeaderOrder
	case errors.As(err, &unknown):
		f.Code = CodeUnknownAttribute
	case errors.As(err, &invalid):
		f.Code = CodeInvalidSpec
	case errors.As(err, &rendErr):
		f.Code = CodeRender
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.Code = CodeCanceled
	}
	return f
}

// AsFetchError wraps foreign fetcher errors so every fetch failure carries a location.
func AsFetchError(loc source.Location, err error) error {
	var fe *source.FetchError
	if errors.As(err, &fe) {
		return err
	}
	kind := source.KindNetwork
	switch {
	case errors.Is(err, context.Canceled):
		kind = source.KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		kind = source.KindTimeout
	}
	return &source.FetchError{Loc: loc, Kind: kind, Err: err}
}
