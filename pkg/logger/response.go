package logger

import "net/http"

// StatusRecorder wraps a ResponseWriter and remembers the status code written
// through it, for access logging on the serving side.
type StatusRecorder struct {
	w      http.ResponseWriter
	status int
}

// NewStatusRecorder starts out at 200, which is what net/http sends when a
// handler writes a body without calling WriteHeader.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{w, http.StatusOK}
}

func (r *StatusRecorder) WriteHeader(code int) {
	r.status = code
	r.w.WriteHeader(code)
}

func (r *StatusRecorder) Write(b []byte) (int, error) {
	return r.w.Write(b)
}

func (r *StatusRecorder) Header() http.Header {
	return r.w.Header()
}

// Status is the code the handler answered with.
func (r *StatusRecorder) Status() int {
	return r.status
}
