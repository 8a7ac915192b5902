// Package protocol implements incremental HTTP/1.1 request parsing and
// response framing. Parsing never blocks: callers hand it whatever bytes a
// non-blocking read produced, and it reports either a parsed Request, a
// definite error, or ErrIncomplete ("not yet enough bytes").
package protocol

import "time"

// MaxRequestSize caps one request's bytes: buffered bytes with no header
// terminator yet, the header block, and header block plus body. Exceeding
// it fails the connection with 413.
const MaxRequestSize = 1 << 20 // 1 MiB

// Method enumerates the HTTP/1.1 methods this core understands. Unknown
// tokens in the request line are a parse error, not a method value.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGET
	MethodHEAD
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodOPTIONS
	MethodTRACE
	MethodPATCH
)

var methodNames = map[string]Method{
	"GET":     MethodGET,
	"HEAD":    MethodHEAD,
	"POST":    MethodPOST,
	"PUT":     MethodPUT,
	"DELETE":  MethodDELETE,
	"OPTIONS": MethodOPTIONS,
	"TRACE":   MethodTRACE,
	"PATCH":   MethodPATCH,
}

var methodStrings = map[Method]string{
	MethodGET:     "GET",
	MethodHEAD:    "HEAD",
	MethodPOST:    "POST",
	MethodPUT:     "PUT",
	MethodDELETE:  "DELETE",
	MethodOPTIONS: "OPTIONS",
	MethodTRACE:   "TRACE",
	MethodPATCH:   "PATCH",
}

// String returns the wire token for m, or "" for MethodUnknown.
func (m Method) String() string { return methodStrings[m] }

// ParseMethod maps a request-line token to a Method. ok is false for any
// token outside the known set (callers treat that as a 400).
func ParseMethod(tok string) (m Method, ok bool) {
	m, ok = methodNames[tok]
	return
}

// crlfcrlf is the header-terminator byte sequence.
var crlfcrlf = []byte("\r\n\r\n")
var crlf = []byte("\r\n")

// reasonPhrases covers the status codes this core itself ever emits;
// routers emitting other codes should set Reason explicitly.
var reasonPhrases = map[int]string{
	200: "OK",
	204: "No Content",
	400: "Bad Request",
	404: "Not Found",
	413: "Payload Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
}

// ReasonPhrase returns the standard reason phrase for code, or "" if this
// core has no canned phrase for it.
func ReasonPhrase(code int) string { return reasonPhrases[code] }

// idleDefault is for documentation purposes only; the effective value
// always comes from control.Config.
const idleDefault = 30 * time.Second
