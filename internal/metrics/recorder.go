// Package metrics defines the detection run observability surface.
//
// Components receive a Recorder by injection and default to NoopRecorder,
// so metrics cost nothing unless a real implementation is swapped in. The
// Prometheus recorder lives behind the "prometheus" build tag.
package metrics

import "time"

// Recorder receives detection run measurements.
type Recorder interface {
	// RunCompleted is called once per detection run.
	RunCompleted(clean bool, changed, added, removed int, elapsed time.Duration)
	// PartFingerprinted is called for every part whose fingerprint was
	// actually computed (not reused via the touched-paths shortcut).
	PartFingerprinted(part string, files int, elapsed time.Duration)
}

// NoopRecorder is the default Recorder; its methods inline to nothing.
type NoopRecorder struct{}

func (NoopRecorder) RunCompleted(bool, int, int, int, time.Duration) {}
func (NoopRecorder) PartFingerprinted(string, int, time.Duration)    {}
