package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/internal/pipeline"
	"github.com/ajitpratap0/prepdash/pkg/errors"
)

// Sessions tracks the live sessions of a server and expires idle ones.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*pipeline.Session
	ctrl     *pipeline.Controller
	ttl      time.Duration
	logger   *zap.Logger
}

// NewSessions creates a registry whose sessions expire after ttl of
// inactivity. A zero ttl disables expiry.
func NewSessions(ctrl *pipeline.Controller, ttl time.Duration, logger *zap.Logger) *Sessions {
	return &Sessions{
		sessions: make(map[string]*pipeline.Session),
		ctrl:     ctrl,
		ttl:      ttl,
		logger:   logger,
	}
}

// Add registers s.
func (r *Sessions) Add(s *pipeline.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get returns the session with the given ID.
func (r *Sessions) Get(id string) (*pipeline.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "session %s not found", id).WithDetail("session_id", id)
	}
	return s, nil
}

// Remove unregisters and closes the session with the given ID.
func (r *Sessions) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "session %s not found", id).WithDetail("session_id", id)
	}
	return r.ctrl.Close(ctx, s)
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions last used more than ttl before now and returns how
// many were removed.
func (r *Sessions) Sweep(ctx context.Context, now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	var expired []*pipeline.Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastUsed()) > r.ttl {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		if err := r.ctrl.Close(ctx, s); err != nil {
			r.logger.Warn("failed to close expired session", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		r.logger.Info("session expired",
			zap.String("session_id", s.ID),
			zap.Duration("idle", now.Sub(s.LastUsed())))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// CloseAll closes every session, returning the first error.
func (r *Sessions) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*pipeline.Session)
	r.mu.Unlock()

	var first error
	for _, s := range all {
		if err := r.ctrl.Close(ctx, s); err != nil && first == nil {
			first = err
		}
	}
	return first
}
