package ansible

import "fmt"

// Exit statuses of ansible-playbook.
const (
	RunOK               = 0
	RunError            = 1
	RunFailedHosts      = 2
	RunUnreachableHosts = 3
	RunParserError      = 4
	RunBadOptions       = 5
	RunUserInterrupt    = 99
	RunUnknownError     = 250
)

var statusNames = map[int]string{
	RunOK:               "ok",
	RunError:            "error",
	RunFailedHosts:      "one or more hosts failed",
	RunUnreachableHosts: "one or more hosts were unreachable",
	RunParserError:      "parser error",
	RunBadOptions:       "bad or incomplete options",
	RunUserInterrupt:    "user interrupted execution",
	RunUnknownError:     "unexpected error",
}

// Describe names an ansible-playbook exit status.
func Describe(code int) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown status %d", code)
}

// ExecutionError is returned when ansible-playbook finishes with a status
// other than RunOK.
type ExecutionError struct {
	Playbook string
	Code     int
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("Playbook execution failed with code %d", e.Code)
}

// Description names the failure status.
func (e *ExecutionError) Description() string {
	return Describe(e.Code)
}
