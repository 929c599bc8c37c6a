package model

// Error categories
const (
	SystemError    = "SYSTEM"
	AlgorithmError = "ALGORITHM"
	DataError      = "DATA"
)

// Error classifies why a job execution failed.
type Error struct {
	Name     string
	Title    string
	Category string
	// ShouldBeRetried is true if a job failing with this error is automatically re-queued while it has tries left.
	ShouldBeRetried bool
}

// Built-in errors raised by the scheduler.
var (
	NodeLostError = &Error{
		Name: "node-lost", Title: "Node Lost", Category: SystemError, ShouldBeRetried: true,
	}
	TaskLaunchError = &Error{
		Name: "task-launch", Title: "Task Launch", Category: SystemError, ShouldBeRetried: true,
	}
	TimeoutError = &Error{
		Name: "timeout", Title: "Timeout", Category: SystemError, ShouldBeRetried: false,
	}
	UnknownError = &Error{
		Name: "unknown", Title: "Unknown Error", Category: SystemError, ShouldBeRetried: false,
	}
	AlgorithmUnknownError = &Error{
		Name: "algorithm-unknown", Title: "Algorithm Error", Category: AlgorithmError, ShouldBeRetried: false,
	}
	InvalidInputError = &Error{
		Name: "invalid-input", Title: "Invalid Input", Category: DataError, ShouldBeRetried: false,
	}
)

var builtinErrors = map[string]*Error{}

func init() {
	for _, e := range []*Error{
		NodeLostError, TaskLaunchError, TimeoutError, UnknownError, AlgorithmUnknownError, InvalidInputError,
	} {
		builtinErrors[e.Name] = e
	}
}

// GetError returns the built-in error with the given name. Unknown names resolve to UnknownError.
func GetError(name string) *Error {
	if e, ok := builtinErrors[name]; ok {
		return e
	}
	return UnknownError
}
