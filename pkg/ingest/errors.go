package ingest

import "fmt"

type ErrorKind string

const (
	ErrKindNotFound          ErrorKind = "not-found"
	ErrKindUnsupportedFormat ErrorKind = "unsupported-format"
	ErrKindDecodeFailed      ErrorKind = "decode-failed"
)

// Error is the typed ingestion failure. Every kind is non-fatal to the turn:
// the orchestrator downgrades it to a warning transcript entry and proceeds
// with the unmodified user text.
type Error struct {
	Kind     ErrorKind
	Filename string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Filename, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Filename)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, filename string, err error) *Error {
	return &Error{Kind: kind, Filename: filename, Err: err}
}
