package transcript

// MessageSink is the transcript mutation surface the orchestrator drives.
// All operations are keyed by model identity so concurrently running turns
// for different models never touch each other's entries.
type MessageSink interface {
	// Append adds an entry at the end of the model's transcript.
	Append(model string, e *Entry)
	// RemoveLast drops the last entry, if any.
	RemoveLast(model string)
	// ReplaceLast swaps the last entry for e. If the transcript is empty the
	// entry is appended instead.
	ReplaceLast(model string, e *Entry)
	// MutateLastText appends partial text to the last entry and updates its
	// in-progress latency display.
	MutateLastText(model string, partial string, latencyMs float64)
	// LastEntry returns the last entry, or false when the transcript is
	// empty.
	LastEntry(model string) (*Entry, bool)
	// Clear drops every entry for the model.
	Clear(model string)
}
