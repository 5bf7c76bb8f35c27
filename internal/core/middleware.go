package core

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// ResponseWriterWrapper is a wrapper around the default http.ResponseWriter.
// It intercepts the WriteHeader call and saves the response status code, and
// counts the body bytes written.
type ResponseWriterWrapper struct {
	http.ResponseWriter
	WrittenResponseCode int
	BytesWritten        int64
}

// WriteHeader intercepts the status code and stores it, then calls the original WriteHeader.
func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write calls the underlying ResponseWriter's Write method.
func (w *ResponseWriterWrapper) Write(b []byte) (int, error) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.BytesWritten += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *ResponseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type LogEntry struct {
	ID         string
	IP         string
	Method     string
	URL        string
	Proto      string
	DurationMS float64
	StatusCode int
	Bytes      int64
}

func (e LogEntry) User() slog.Attr {
	return slog.Group("user", "ip", e.IP)
}

func (e LogEntry) Request() slog.Attr {
	return slog.Group("request",
		"id", e.ID,
		"proto", e.Proto,
		"method", e.Method,
		"url", e.URL,
		"duration_ms", e.DurationMS,
		"status_code", e.StatusCode,
		"bytes", e.Bytes,
	)
}

// LogRequest is middleware that tags each request with an ID, logs it, and
// records its metrics.
func (s *Server) LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		entry := LogEntry{
			ID:     id,
			IP:     r.RemoteAddr,
			Method: r.Method,
			URL:    r.URL.String(),
			Proto:  r.Proto,
		}

		writer := ResponseWriterWrapper{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(&writer, r)
		elapsed := time.Since(start)

		if writer.WrittenResponseCode == 0 {
			writer.WrittenResponseCode = http.StatusOK
		}

		entry.DurationMS = float64(elapsed.Nanoseconds()) / float64(time.Millisecond)
		entry.StatusCode = writer.WrittenResponseCode
		entry.Bytes = writer.BytesWritten

		// The mux fills in the matched pattern on the way through.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(entry.StatusCode)).Inc()
		s.metrics.duration.WithLabelValues(route).Observe(elapsed.Seconds())

		switch {
		case entry.StatusCode >= 500:
			slog.Error("Request", entry.User(), entry.Request())
		case entry.StatusCode >= 400:
			slog.Warn("Request", entry.User(), entry.Request())
		default:
			slog.Info("Request", entry.User(), entry.Request())
		}
	})
}

// Recoverer is middleware that turns a panicking handler into a 500.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					// we don't recover http.ErrAbortHandler so the response
					// to the client is aborted, this should not be logged
					panic(rvr)
				}

				slog.Error("Internal Error in HTTP handler", "error", rvr)

				if r.Header.Get("Connection") != "Upgrade" {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(w, r)
	})
}
