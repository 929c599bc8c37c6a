package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestStartupCompleteChecker(t *testing.T) {
	checker := NewStartupCompleteChecker()
	assert.Error(t, checker.Check())
	checker.MarkComplete()
	assert.NoError(t, checker.Check())
}

func TestMultiChecker(t *testing.T) {
	healthy := CheckerFunc(func() error { return nil })
	tests := map[string]struct {
		checkers []Checker
		expected []string
	}{
		"no checkers": {},
		"all healthy": {checkers: []Checker{healthy, healthy}},
		"some unhealthy": {
			checkers: []Checker{
				healthy,
				CheckerFunc(func() error { return errors.New("redis down") }),
				CheckerFunc(func() error { return errors.New("pulsar down") }),
			},
			expected: []string{"redis down", "pulsar down"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := NewMultiChecker(tc.checkers...).Check()
			if len(tc.expected) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			for _, msg := range tc.expected {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestHttpMux(t *testing.T) {
	checker := NewStartupCompleteChecker()
	mux := http.NewServeMux()
	SetupHttpMux(mux, checker)

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Equal(t, "startup is not complete", recorder.Body.String())

	checker.MarkComplete()
	recorder = httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}
