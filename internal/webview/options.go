package webview

// DefaultBridgeName is the page-global object exposing postMessage when a
// message handler is registered. The name matches what existing page
// content already feature-detects.
const DefaultBridgeName = "ReactNativeWebView"

// Source selects what a view loads: by reference (SourceURL) or by value
// (SourceHTML). Exactly one concrete type exists per view.
type Source interface {
	isSource()
}

// SourceURL loads content by reference.
type SourceURL struct {
	URL     string
	Method  string // defaults to GET
	Headers map[string]string
	Body    []byte
}

func (SourceURL) isSource() {}

// SourceHTML loads inline markup. BaseURL anchors relative resolution.
// Requires the origin allow-list to carry the universal "*" pattern;
// Load fails loudly otherwise.
type SourceHTML struct {
	HTML    string
	BaseURL string
}

func (SourceHTML) isSource() {}

// Props configures a view. Callback fields may be nil; a nil ShouldAllow
// admits every navigation the allow-list admits, and a nil OnMessage keeps
// the bridge uninstalled.
type Props struct {
	// Source is required.
	Source Source

	// ShouldAllow gates every navigation attempt, including the initial
	// load. Invoked synchronously on the engine's loading path: keep it
	// fast and non-blocking. Its verdict is never cached.
	ShouldAllow func(NavigationRequest) bool

	// OriginAllowList holds wildcard scheme+host patterns; nil means
	// {http://*, https://*}. Main-frame targets matching no pattern are
	// handed to OpenExternal instead of loading in-component.
	OriginAllowList []string

	// InjectedScript runs exactly once, immediately after the first
	// successful load. Changing it via SetInjectedScript re-arms the shot.
	InjectedScript string

	// BridgeName overrides DefaultBridgeName.
	BridgeName string

	// OnMessage receives bridge deliveries. Its presence installs the
	// page-global bridge object; when nil the page sees no bridge at all.
	OnMessage func(MessageEvent)

	// Lifecycle callbacks. All are delivered on the view's dispatch
	// goroutine, one at a time, in emission order.
	OnLoadStart             func(LoadEvent)
	OnLoadProgress          func(LoadEvent)
	OnLoadEnd               func(LoadEvent)
	OnError                 func(LoadEvent)
	OnHTTPError             func(LoadEvent)
	OnTerminated            func(LoadEvent)
	OnNavigationStateChange func(NavigationState)

	// OpenExternal receives main-frame targets rejected by the allow-list.
	// Nil leaves the handoff at a log line; embedders plug in their
	// platform opener.
	OpenExternal func(url string)

	// Engine passthroughs.
	UserAgent         string
	Incognito         bool
	DisableJavaScript bool
}

// bridgeName resolves the configured or default page-global name.
func (p *Props) bridgeName() string {
	if p.BridgeName != "" {
		return p.BridgeName
	}
	return DefaultBridgeName
}
