package chromium

import (
	"strings"

	"github.com/ThuyDang88/webview/internal/engine"
)

// classifyNav folds a playwright navigation failure into the shared error
// code space. Playwright surfaces Chromium net errors as text, so matching
// is on the error string.
func classifyNav(err error) (code int, domain, description string) {
	if err == nil {
		return engine.CodeUnknown, engine.DomainEngine, "load failed"
	}
	msg := err.Error()
	has := func(frag string) bool { return strings.Contains(msg, frag) }

	switch {
	case has("ERR_NAME_NOT_RESOLVED"), has("ERR_NAME_RESOLUTION_FAILED"):
		return engine.CodeHostLookup, engine.DomainNetwork, "host lookup failed"
	case has("ERR_CERT_"), has("ERR_SSL_"), has("ERR_BAD_SSL_"):
		return engine.CodeFailedSSL, engine.DomainTLS, "TLS handshake failed"
	case has("ERR_CONNECTION_REFUSED"), has("ERR_CONNECTION_RESET"), has("ERR_CONNECTION_FAILED"):
		return engine.CodeConnect, engine.DomainNetwork, "connection failed"
	case has("ERR_TIMED_OUT"), has("ERR_CONNECTION_TIMED_OUT"), has("Timeout"):
		return engine.CodeTimeout, engine.DomainNetwork, "load timed out"
	case has("ERR_TOO_MANY_REDIRECTS"):
		return engine.CodeRedirectLoop, engine.DomainNetwork, "too many redirects"
	case has("ERR_UNKNOWN_URL_SCHEME"), has("ERR_DISALLOWED_URL_SCHEME"):
		return engine.CodeUnsupportedScheme, engine.DomainNetwork, "unsupported scheme"
	case has("ERR_INVALID_URL"), has("Cannot navigate to invalid URL"):
		return engine.CodeBadURL, engine.DomainNetwork, "malformed URL"
	case has("ERR_FILE_NOT_FOUND"):
		return engine.CodeFileNotFound, engine.DomainNetwork, "file not found"
	case has("ERR_EMPTY_RESPONSE"), has("ERR_CONNECTION_CLOSED"), has("ERR_CONTENT_LENGTH_MISMATCH"), has("ERR_INCOMPLETE_CHUNKED_ENCODING"):
		return engine.CodeIO, engine.DomainNetwork, "connection interrupted"
	case has("ERR_ABORTED"):
		return engine.CodeUnknown, engine.DomainEngine, "navigation aborted"
	case has("ERR_BLOCKED_BY_CLIENT"), has("ERR_BLOCKED_BY_RESPONSE"):
		return engine.CodeUnknown, engine.DomainEngine, "request blocked"
	default:
		return engine.CodeUnknown, engine.DomainNetwork, firstLine(msg)
	}
}

// firstLine trims a playwright error to something presentable in an event
// description. Driver errors often carry multi-line call logs.
func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return "load failed"
	}
	return msg
}
