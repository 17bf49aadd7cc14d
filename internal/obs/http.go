package obs

import (
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// statusWriter remembers the status and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// RequestContextMiddleware puts a request id in the context and in the
// X-Request-Id response header. An incoming X-Request-Id wins, then the
// trace id of a W3C traceparent, then a fresh id.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
		corr := Correlation{
			RequestID:   strings.TrimSpace(r.Header.Get("X-Request-Id")),
			TraceID:     traceIDOf(traceparent),
			Traceparent: traceparent,
		}
		if corr.RequestID == "" {
			corr.RequestID = corr.TraceID
		}
		if corr.RequestID == "" {
			corr.RequestID = NewID()
		}
		w.Header().Set("X-Request-Id", corr.RequestID)
		next.ServeHTTP(w, r.WithContext(WithCorrelation(r.Context(), corr)))
	})
}

// AccessLogMiddleware logs one http_access event per request at Debug.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		From(r.Context()).With("pkg", pkg).Debug("http_access",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"dur_ms", float64(time.Since(start).Microseconds())/1000,
			"resp_bytes", sw.bytes,
		)
	})
}

// traceIDOf returns the lowercase trace id of a version-00 style
// traceparent, or "" when it is malformed or all zeros.
func traceIDOf(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return ""
	}
	id := strings.ToLower(parts[1])
	raw, err := hex.DecodeString(id)
	if err != nil {
		return ""
	}
	for _, b := range raw {
		if b != 0 {
			return id
		}
	}
	return ""
}
