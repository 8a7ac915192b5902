package protocol

// Request is a fully parsed HTTP/1.1 request. It is immutable once returned
// by ParseRequest: handlers and the router must treat it as read-only.
type Request struct {
	Method    Method
	Target    string
	Proto     string
	Header    Header
	Body      []byte
	KeepAlive bool
}

// keepAliveFor applies the Keep-Alive decision table: HTTP/1.1 keeps alive
// unless Connection: close; HTTP/1.0 closes unless Connection: keep-alive.
func keepAliveFor(proto string, h *Header) bool {
	conn := h.Get("Connection")
	switch proto {
	case "HTTP/1.1":
		return !equalFoldTrim(conn, "close")
	case "HTTP/1.0":
		return equalFoldTrim(conn, "keep-alive")
	default:
		return false
	}
}

func equalFoldTrim(s, target string) bool {
	s = trimOWS(s)
	if len(s) != len(target) {
		return false
	}
	for i := 0; i < len(s); i++ {
		a, b := s[i], target[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

func trimOWS(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
