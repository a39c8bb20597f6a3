// Package metrics records catalog build observations. Components take a
// Recorder and default to NoopRecorder when metrics are not configured.
package metrics

import "time"

// Recorder defines observability hooks for fetches, attributes and projects.
type Recorder interface {
	ObserveFetch(kind string, d time.Duration, success bool)
	IncFetchRetry()
	IncAttributeResult(key string, result string) // result: ok|error code
	IncProjectStatus(status string)
	ObserveProjectDuration(d time.Duration)
	ObserveBuildDuration(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveFetch(string, time.Duration, bool) {}
func (NoopRecorder) IncFetchRetry()                           {}
func (NoopRecorder) IncAttributeResult(string, string)        {}
func (NoopRecorder) IncProjectStatus(string)                  {}
func (NoopRecorder) ObserveProjectDuration(time.Duration)     {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)       {}
