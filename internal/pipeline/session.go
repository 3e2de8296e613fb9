package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/prepdash/pkg/store"
)

// Session is one user's preprocessing workspace: a working dataset that
// steps replace, and a baseline dataset used for analysis that only uploads
// replace. All Controller calls on a session are serialized by its mutex.
type Session struct {
	ID string

	mu       sync.Mutex
	working  store.Handle
	baseline store.Handle
	steps    int
	closed   bool

	createdAt time.Time
	lastUsed  atomic.Int64
}

func newSession(working, baseline store.Handle) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		working:   working,
		baseline:  baseline,
		createdAt: time.Now(),
	}
	s.touch()
	return s
}

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixNano()) }

// CreatedAt returns when the session was started.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastUsed returns the time of the last Controller call on the session.
func (s *Session) LastUsed() time.Time { return time.Unix(0, s.lastUsed.Load()) }

// Steps returns the number of steps committed since the session started or
// since the last upload.
func (s *Session) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}
