package health

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Checker reports whether some part of the process is healthy. A nil error means healthy.
type Checker interface {
	Check() error
}

// StartupCompleteChecker is unhealthy until MarkComplete is called.
type StartupCompleteChecker struct {
	complete int32
}

func NewStartupCompleteChecker() *StartupCompleteChecker {
	return &StartupCompleteChecker{}
}

func (c *StartupCompleteChecker) MarkComplete() {
	atomic.StoreInt32(&c.complete, 1)
}

func (c *StartupCompleteChecker) Check() error {
	if atomic.LoadInt32(&c.complete) == 1 {
		return nil
	}
	return errors.New("startup is not complete")
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func() error

func (f CheckerFunc) Check() error {
	return f()
}
