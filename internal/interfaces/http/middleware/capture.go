// Package middleware implements the OAuth 2 provider as gin middleware: a
// dispatcher that claims the two protocol endpoints and gates every other
// path behind bearer-token validation, talking to the host application
// through request-scoped context keys and sentinel response headers.
package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

// sentinelHeaders never reach the wire; they are the host application's side
// of the handshake and are consumed or stripped here.
var sentinelHeaders = []string{
	constants.CtxAuthorization,
	constants.HeaderNoAccess,
	constants.HeaderNoScope,
}

// captureWriter buffers a host-application response in full: status, headers
// and body. The dispatcher inspects the buffered response for sentinel
// headers and either replaces it or flushes it verbatim. Nothing reaches the
// underlying writer until flush.
type captureWriter struct {
	gin.ResponseWriter
	header http.Header
	body   *bytes.Buffer
	status int
}

func newCaptureWriter(w gin.ResponseWriter) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		header:         make(http.Header),
		body:           &bytes.Buffer{},
		status:         http.StatusOK,
	}
}

// Header returns the staged header map, kept separate from the real writer
// so a replaced response does not inherit host-application headers.
func (w *captureWriter) Header() http.Header { return w.header }

func (w *captureWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
	}
}

// WriteHeaderNow is deferred until flush; handlers that force header writes
// must not bypass the buffer.
func (w *captureWriter) WriteHeaderNow() {}

func (w *captureWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *captureWriter) Status() int { return w.status }

func (w *captureWriter) Size() int { return w.body.Len() }

func (w *captureWriter) Written() bool {
	return w.status != http.StatusOK || w.body.Len() > 0 || len(w.header) > 0
}

// sentinel returns the first value of a sentinel header on the buffered
// response.
func (w *captureWriter) sentinel(name string) string {
	return w.header.Get(name)
}

// sentinelValues returns every value of a sentinel header.
func (w *captureWriter) sentinelValues(name string) []string {
	return w.header.Values(name)
}

// flush writes the buffered response to the real writer, minus the sentinel
// headers.
func (w *captureWriter) flush() {
	real := w.ResponseWriter
	for name, values := range w.header {
		if isSentinel(name) {
			continue
		}
		for _, value := range values {
			real.Header().Add(name, value)
		}
	}
	real.WriteHeader(w.status)
	if w.body.Len() > 0 {
		_, _ = real.Write(w.body.Bytes())
	} else {
		real.WriteHeaderNow()
	}
}

func isSentinel(name string) bool {
	for _, sentinel := range sentinelHeaders {
		if http.CanonicalHeaderKey(sentinel) == name || sentinel == name {
			return true
		}
	}
	return false
}
