package logging

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStacktrace(t *testing.T) {
	entry := logrus.NewEntry(logrus.New())

	err := errors.New("boom")
	withStack := WithStacktrace(entry, errors.Wrap(err, "outer"))
	assert.Equal(t, "outer: boom", withStack.Data[logrus.ErrorKey].(error).Error())
	assert.NotNil(t, withStack.Data[Stacktrace])

	plain := WithStacktrace(entry, plainError{})
	_, ok := plain.Data[Stacktrace]
	assert.False(t, ok)
}

func TestExtractStack(t *testing.T) {
	inner := errors.New("boom")
	innerStack := ExtractStack(inner)
	require.NotNil(t, innerStack)

	tests := map[string]struct {
		err     error
		present bool
	}{
		"nil":               {err: nil},
		"no stack":          {err: plainError{}},
		"pkg errors":        {err: inner, present: true},
		"wrapped":           {err: errors.WithMessage(inner, "outer"), present: true},
		"standard wrapping": {err: fmt.Errorf("outer: %w", inner), present: true},
		"wrapped plain":     {err: fmt.Errorf("outer: %w", plainError{})},
		"stack above plain": {err: errors.WithStack(plainError{}), present: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			stack := ExtractStack(tc.err)
			if tc.present {
				assert.NotNil(t, stack)
			} else {
				assert.Nil(t, stack)
			}
		})
	}

	// The innermost trace wins.
	assert.Equal(t, innerStack, ExtractStack(errors.Wrap(fmt.Errorf("middle: %w", inner), "outer")))
}

func TestConfigure(t *testing.T) {
	require.NoError(t, Configure(Config{Level: "debug", Format: "json"}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	require.NoError(t, Configure(Config{}))
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	assert.Error(t, Configure(Config{Level: "loud"}))
	assert.Error(t, Configure(Config{Format: "xml"}))
}

type plainError struct{}

func (plainError) Error() string { return "plain" }
