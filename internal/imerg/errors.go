package imerg

import (
	"errors"
	"fmt"
)

var (
	ErrTransportUnavailable  = errors.New("archive transport unavailable")
	ErrCatalogUnavailable    = errors.New("catalog unavailable")
	ErrWatermarkInconsistent = errors.New("watermark query returned an unusable value")
	ErrInvalidInput          = errors.New("invalid input")
)

// PhaseError records which orchestrator phase a run failed in.
type PhaseError struct {
	Phase Phase
	Cause error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Cause)
}

func (e *PhaseError) Unwrap() error {
	return e.Cause
}

// FetchFailure is a contained per-item failure inside a sync pass. It is
// carried as a value in SyncResult and never escapes as a run failure.
type FetchFailure struct {
	Name  string
	Cause error
}

func (f FetchFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Name, f.Cause)
}

// Logger is the minimal logging surface threaded into every component.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(format string, args ...any) {}
