package engine

// Load-error codes, following the Android WebViewClient numbering that the
// wider ecosystem already matches on. Engines map their native failures to
// the closest code; CodeUnknown covers the rest.
const (
	CodeUnknown           = -1
	CodeHostLookup        = -2
	CodeAuthentication    = -4
	CodeConnect           = -6
	CodeIO                = -7
	CodeTimeout           = -8
	CodeRedirectLoop      = -9
	CodeUnsupportedScheme = -10
	CodeFailedSSL         = -11
	CodeBadURL            = -12
	CodeFileNotFound      = -14
	CodeTooManyRequests   = -15
)

// Error domains for the optional Domain field. Present where an engine can
// attribute the failure; host code must treat the field as informational.
const (
	DomainNetwork = "network"
	DomainTLS     = "tls"
	DomainHTTP    = "http"
	DomainContent = "content"
	DomainEngine  = "engine"
)
