package compositor

import "fmt"

// EncodingError means the drawing surface, recorder, or mixing graph
// could not be created or driven.
type EncodingError struct {
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoding error: %s: %v", e.Reason, e.Err)
	}
	return "encoding error: " + e.Reason
}

func (e *EncodingError) Unwrap() error { return e.Err }

// PartialResultError notes that fewer scenes have video than the
// timeline calls for. It is informational: the run still proceeds on
// the subset.
type PartialResultError struct {
	Have int
	Want int
}

func (e *PartialResultError) Error() string {
	return fmt.Sprintf("only %d of %d scenes have video", e.Have, e.Want)
}
