package protocol

import (
	"bytes"
	"strconv"
	"strings"
)

// ParseRequest attempts to parse one HTTP/1.1 request from the front of
// buf, which must be a contiguous materialized view of a connection's
// chunk chain (for parser input only).
//
// On success it returns the parsed Request and the number of bytes
// consumed from buf. If buf does not yet contain a complete request, it
// returns ErrIncomplete and callers should wait for more bytes and retry
// with the same (possibly longer) buf — re-parsing a longer prefix of the
// same stream always reproduces the same result for the part already
// present. Any other returned error is a *ParseError carrying the status
// code to respond with.
func ParseRequest(buf []byte) (*Request, int, error) {
	headerEnd := bytes.Index(buf, crlfcrlf)
	if headerEnd < 0 {
		if len(buf) > MaxRequestSize {
			return nil, 0, ErrTooLarge()
		}
		return nil, 0, ErrIncomplete
	}
	headerEnd += len(crlfcrlf) // index now points just past the blank line

	if headerEnd > MaxRequestSize {
		return nil, 0, ErrTooLarge()
	}

	head := buf[:headerEnd]
	lineEnd := bytes.Index(head, crlf)
	if lineEnd < 0 {
		return nil, 0, ErrMalformed("missing request line terminator")
	}

	req := &Request{Header: NewHeader()}
	if err := parseRequestLine(req, string(head[:lineEnd])); err != nil {
		return nil, 0, err
	}
	if err := parseHeaderLines(req, head[lineEnd+len(crlf):len(head)-len(crlfcrlf)]); err != nil {
		return nil, 0, err
	}

	bodyLen, err := bodyLength(req)
	if err != nil {
		return nil, 0, err
	}
	if bodyLen == 0 {
		req.KeepAlive = keepAliveFor(req.Proto, &req.Header)
		return req, headerEnd, nil
	}

	total := headerEnd + bodyLen
	if total > MaxRequestSize {
		return nil, 0, ErrTooLarge()
	}
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}
	req.Body = append([]byte(nil), buf[headerEnd:total]...)
	req.KeepAlive = keepAliveFor(req.Proto, &req.Header)
	return req, total, nil
}

// parseRequestLine splits "METHOD SP target SP version": exactly three
// space-separated tokens, method must be a known token.
func parseRequestLine(req *Request, line string) error {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return ErrMalformed("request line must have exactly three tokens")
	}
	m, ok := ParseMethod(parts[0])
	if !ok {
		return ErrUnsupportedMethod(parts[0])
	}
	req.Method = m
	req.Target = parts[1]
	req.Proto = parts[2]
	return nil
}

// parseHeaderLines splits the header block on CRLF and each line on the
// first colon, trimming optional whitespace (OWS) around the value.
// Duplicate names are preserved in arrival order.
func parseHeaderLines(req *Request, block []byte) error {
	if len(block) == 0 {
		return nil
	}
	for _, line := range bytes.Split(block, crlf) {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return ErrMalformed("header line missing colon")
		}
		name := string(line[:colon])
		value := trimOWS(string(line[colon+1:]))
		req.Header.Add(name, value)
	}
	return nil
}

// bodyLength applies the core's body policy: an explicit positive
// Content-Length is honored exactly; chunked Transfer-Encoding is refused;
// otherwise the body is empty.
func bodyLength(req *Request) (int, error) {
	if req.Header.Has("Transfer-Encoding") {
		te := strings.ToLower(trimOWS(req.Header.Get("Transfer-Encoding")))
		if te == "chunked" {
			return 0, ErrUnsupportedEncoding()
		}
	}
	cl := req.Header.Get("Content-Length")
	if cl == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(trimOWS(cl))
	if err != nil || n < 0 {
		return 0, ErrInvalidContentLength()
	}
	if n == 0 {
		return 0, nil
	}
	return n, nil
}
