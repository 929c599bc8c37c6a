package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const Stacktrace = "stacktrace"

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// WithStacktrace adds err to the entry, along with the deepest stack trace recorded anywhere in its chain.
func WithStacktrace(logger *logrus.Entry, err error) *logrus.Entry {
	logger = logger.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		logger = logger.WithField(Stacktrace, stack)
	}
	return logger
}

// ExtractStack returns the stack trace of the innermost error in err's chain that recorded one, following both
// pkg/errors causes and standard library wrapping. It returns nil if no error in the chain has a stack trace.
func ExtractStack(err error) errors.StackTrace {
	var stack errors.StackTrace
	for err != nil {
		if tracer, ok := err.(stackTracer); ok {
			stack = tracer.StackTrace()
		}
		err = next(err)
	}
	return stack
}

func next(err error) error {
	if causer, ok := err.(interface{ Cause() error }); ok {
		return causer.Cause()
	}
	return errors.Unwrap(err)
}
