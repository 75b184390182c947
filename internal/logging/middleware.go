package logging

import (
	"net/http"
	"time"
)

// ResponseRecorder captures the status code and body size written through it.
type ResponseRecorder struct {
	http.ResponseWriter
	status       int
	bytesWritten int
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *ResponseRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

func (w *ResponseRecorder) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *ResponseRecorder) Status() int { return w.status }

func (w *ResponseRecorder) BytesWritten() int { return w.bytesWritten }

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *ResponseRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// AccessLog logs one record per request with the redacted path, status,
// bytes written and duration, using the contextual logger.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := NewResponseRecorder(w)

		next.ServeHTTP(rec, r)

		FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", RedactURL(r.URL),
			"status", rec.Status(),
			"bytes", rec.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
