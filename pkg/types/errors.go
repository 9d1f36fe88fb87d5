package types

import "fmt"

// ErrorKind is the error taxonomy from the error handling design: a
// closed set of failure classes the Orchestrator reasons about, not a
// hierarchy of concrete Go error types.
type ErrorKind int

const (
	// KindInput: unreadable/unparseable input, unknown voice id,
	// invalid configuration. No checkpoint changes.
	KindInput ErrorKind = iota
	// KindTransientBackend: timeout, throttle, transient I/O from the
	// TTS collaborator. Retried locally by the Synthesis Worker.
	KindTransientBackend
	// KindFatalBackend: invalid backend input, model load failure
	// after retries, oversized chunk. Aborts the run; checkpoint kept.
	KindFatalBackend
	// KindStorage: write/fsync failure, disk full. Aborts the run;
	// last durable checkpoint remains valid.
	KindStorage
	// KindCorruption: neither checkpoint slot validates on resume.
	// Workspace is discarded and the run restarts from chunk 0.
	KindCorruption
	// KindCancelled: cooperative user cancellation.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "InputError"
	case KindTransientBackend:
		return "TransientBackendError"
	case KindFatalBackend:
		return "FatalBackendError"
	case KindStorage:
		return "StorageError"
	case KindCorruption:
		return "CorruptionError"
	case KindCancelled:
		return "CancelledByUser"
	default:
		return "UnknownError"
	}
}

// PipelineError wraps an underlying error with its taxonomy kind so the
// Orchestrator can decide Failed vs. Cancelled vs. retry without
// inspecting error strings.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Retryable reports whether the Synthesis Worker should retry locally
// rather than bubble the error up to the Orchestrator.
func (e *PipelineError) Retryable() bool { return e.Kind == KindTransientBackend }

func NewPipelineError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}
