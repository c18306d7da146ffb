// Package response completes each HTTP response exactly once, whichever of
// handler return, callback, error or timeout gets there first.
package response

import (
	"bytes"
	"errors"
	"net/http"
	"sync"
)

// ErrSealed is returned to handlers that write after the response has been
// finalized, for example after a timeout.
var ErrSealed = errors.New("response: write after response was finalized")

// Writer is the ResponseWriter handed to http handlers. Output is buffered
// until the response is finalized or the handler flushes, so a timeout can
// still replace an unfinished response. After finalization every write fails
// with ErrSealed and never reaches the connection.
type Writer struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	header    http.Header
	buf       bytes.Buffer
	status    int
	touched   bool
	committed bool
	sealed    bool
}

func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, header: make(http.Header)}
}

func (w *Writer) Header() http.Header { return w.header }

func (w *Writer) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed || w.status != 0 {
		return
	}
	w.touched = true
	w.status = code
}

func (w *Writer) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return 0, ErrSealed
	}
	w.touched = true
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.committed {
		return w.w.Write(b)
	}
	return w.buf.Write(b)
}

// Flush sends everything written so far. From then on the response belongs to
// the handler and can no longer be replaced by an error or timeout.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return
	}
	w.commitLocked()
	if f, ok := w.w.(http.Flusher); ok {
		f.Flush()
	}
}

// Touched reports whether the handler wrote a status or body.
func (w *Writer) Touched() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.touched
}

func (w *Writer) commitLocked() {
	if w.committed {
		return
	}
	w.committed = true
	dst := w.w.Header()
	for k, vs := range w.header {
		dst[k] = append([]string(nil), vs...)
	}
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	w.w.WriteHeader(status)
	if w.buf.Len() > 0 {
		_, _ = w.w.Write(w.buf.Bytes())
		w.buf.Reset()
	}
}

// complete sends the handler's own output and seals the writer.
func (w *Writer) complete() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return
	}
	w.commitLocked()
	w.sealed = true
}

// replace discards buffered handler output, sends status, header and body
// instead, and seals the writer. It reports false when the handler already
// flushed, in which case the response is only sealed.
func (w *Writer) replace(status int, header http.Header, body []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return false
	}
	w.sealed = true
	if w.committed {
		return false
	}
	w.committed = true
	w.buf.Reset()

	dst := w.w.Header()
	for k, vs := range header {
		dst[k] = append([]string(nil), vs...)
	}
	w.w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.w.Write(body)
	}
	return true
}
