// Package exitcode provides the process exit codes for convoy
package exitcode

// Exit codes for the convoy CLI. Every aborted run exits with Failure
// regardless of its cause; the cause itself is written to stderr.
const (
	Success = 0
	Failure = 1
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case Failure:
		return "Run aborted"
	default:
		return "Unknown error"
	}
}

// ForError maps a run result onto a process exit code.
func ForError(err error) int {
	if err == nil {
		return Success
	}
	return Failure
}
