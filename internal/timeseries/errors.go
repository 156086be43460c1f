package timeseries

import "fmt"

// FormatError indicates that an input dataset does not satisfy the schema
// required for an analysis run. It is fatal to the run.
type FormatError struct {
	Source string // file path or query that was being loaded
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error in %s: %s", e.Source, e.Reason)
}
