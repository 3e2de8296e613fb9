package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prepdash/internal/pipeline"
	"github.com/ajitpratap0/prepdash/pkg/logger"
)

type sessionKey struct{}

// requestLogger logs every request with method, path, status and latency.
// The chi request ID is copied into the logger context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = context.WithValue(ctx, logger.RequestIDKey, id)
		}
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		s.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Int64("bytes", sw.bytes),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote", r.RemoteAddr))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(p []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(p)
	sw.bytes += int64(n)
	return n, err
}

// withSession resolves the {id} URL parameter to a live session.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := logger.ContextWithSession(r.Context(), sess.ID)
		ctx = context.WithValue(ctx, sessionKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *pipeline.Session {
	sess, _ := r.Context().Value(sessionKey{}).(*pipeline.Session)
	return sess
}
