package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campspots/internal/metrics"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

type ctxKey int

const (
	ctxKeyLogger ctxKey = iota
	ctxKeyPrincipal
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger tags each request with an id, makes a request-scoped logger
// available to handlers and logs the outcome.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		logger := s.log.With().Str("request_id", requestID).Logger()
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyLogger, &logger))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// requestLogger returns the logger attached by the middleware.
func requestLogger(r *http.Request) *zerolog.Logger {
	if l, ok := r.Context().Value(ctxKeyLogger).(*zerolog.Logger); ok {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

// instrument counts responses per route pattern.
func instrument(route string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		recorder, ok := w.(*statusRecorder)
		if !ok {
			recorder = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		}
		h(recorder, r, ps)
		metrics.IncHTTP(route, strconv.Itoa(recorder.status))
	}
}

func (s *HTTPServer) recoverPanic(w http.ResponseWriter, r *http.Request, v interface{}) {
	requestLogger(r).Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panic")
	writeError(w, http.StatusInternalServerError, "internal error")
}
