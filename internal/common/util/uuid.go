package util

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

var (
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	m       sync.Mutex
)

// NewULID returns a lower-cased, monotonically increasing ULID.
func NewULID() string {
	m.Lock()
	defer m.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), entropy).String())
}

// NewWorkerName returns a unique name for a worker process, e.g. "scale-scheduler-<uuid>".
func NewWorkerName(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
