package health

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// HttpHandler answers 204 while checker is healthy and 503, with the reason in the body, when it is not.
type HttpHandler struct {
	checker Checker
}

func NewHttpHandler(checker Checker) *HttpHandler {
	return &HttpHandler{checker: checker}
}

func (h *HttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	err := h.checker.Check()
	if err == nil {
		log.Debug("Health check passed")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	log.Warnf("Health check failed: %v", err)
	w.WriteHeader(http.StatusServiceUnavailable)
	if _, err := w.Write([]byte(err.Error())); err != nil {
		log.Errorf("Failed to write health check response: %v", err)
	}
}
