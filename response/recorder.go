package response

import (
	"bytes"
	"net/http"
)

// Recorder is an in-memory http.ResponseWriter for transports that are not a
// network connection, such as Lambda events.
type Recorder struct {
	Code   int
	header http.Header
	Body   bytes.Buffer
	wrote  bool
}

func NewRecorder() *Recorder {
	return &Recorder{Code: http.StatusOK, header: make(http.Header)}
}

func (r *Recorder) Header() http.Header { return r.header }

func (r *Recorder) WriteHeader(code int) {
	if r.wrote {
		return
	}
	r.wrote = true
	r.Code = code
}

func (r *Recorder) Write(b []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.Body.Write(b)
}

func (r *Recorder) Flush() { r.WriteHeader(http.StatusOK) }
