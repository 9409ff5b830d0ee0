package executor

import "github.com/tamnm/minirel/internal/types"

// Result is what a statement hands back to the client. Rendering values
// into human text is the caller's business (types.Value.Format).
type Result struct {
	Columns []string
	Rows    [][]types.Value

	// For DML:
	Affected int

	// Out-of-band replies (HELP, LOAD DATA summary).
	Message string

	// EXIT was requested; the session should wind down.
	Exit bool
}
