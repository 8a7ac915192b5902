package protocol

import (
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// Response is what a Router (or the core's own 404/500/parse-error paths)
// produces. KeepAlive is decided by Frame, not set by the router — it gets
// re-evaluated against the final status code at framing time.
type Response struct {
	Status    int
	Reason    string
	Header    Header
	Body      []byte
	KeepAlive bool
}

// NewResponse builds a Response with the standard reason phrase for status
// filled in if this core has one.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Reason: ReasonPhrase(status), Header: NewHeader(), Body: body}
}

// Frame serializes resp to a single contiguous byte slice: status line,
// headers in insertion order, blank line, body. Content-Length is set from
// len(Body) if the router didn't set one; Connection, if the router didn't
// set one, is set from the final Keep-Alive decision, which forces close
// whenever Status >= 400 regardless of what the request asked for.
//
// requestKeepAlive is the decision recorded on the Request that produced
// this response; it is honored only for Status < 400.
func Frame(resp *Response, requestKeepAlive bool) []byte {
	keepAlive := requestKeepAlive && resp.Status < 400
	resp.KeepAlive = keepAlive

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	reason := resp.Reason
	if reason == "" {
		reason = ReasonPhrase(resp.Status)
	}
	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(resp.Status))
	buf.WriteByte(' ')
	buf.WriteString(reason)
	buf.Write(crlf)

	wroteContentLength := false
	wroteConnection := false
	for _, f := range resp.Header.Fields() {
		buf.WriteString(f.Name)
		buf.WriteString(": ")
		buf.WriteString(f.Value)
		buf.Write(crlf)
		if equalFoldTrim(f.Name, "content-length") {
			wroteContentLength = true
		}
		if equalFoldTrim(f.Name, "connection") {
			wroteConnection = true
		}
	}
	if !wroteContentLength {
		buf.WriteString("Content-Length: ")
		buf.WriteString(strconv.Itoa(len(resp.Body)))
		buf.Write(crlf)
	}
	if !wroteConnection {
		buf.WriteString("Connection: ")
		if keepAlive {
			buf.WriteString("keep-alive")
		} else {
			buf.WriteString("close")
		}
		buf.Write(crlf)
	}
	buf.Write(crlf)
	buf.Write(resp.Body)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// NotFound builds the core's canned 404, used when the router yields nil.
func NotFound() *Response {
	return NewResponse(404, []byte("not found"))
}

// InternalError builds the core's canned 500, used when the router's
// completion resolves to an error.
func InternalError() *Response {
	return NewResponse(500, []byte("internal server error"))
}

// FromParseError builds the response a *ParseError dictates.
func FromParseError(pe *ParseError) *Response {
	return NewResponse(pe.Status, []byte(pe.Message))
}
