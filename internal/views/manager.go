// Package views is the daemon registry of live webview instances: ULID-keyed
// lookup, a hard cap on concurrent views, idle reaping, and per-view event
// fanout for stream subscribers.
package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/infrastructure/monitoring"
	"github.com/ThuyDang88/webview/internal/shared/id"
	"github.com/ThuyDang88/webview/internal/webview"
)

var (
	// ErrNotFound is returned for operations on unknown view IDs.
	ErrNotFound = errors.New("views: view not found")

	// ErrCapacity is returned when the concurrent-view cap is reached.
	ErrCapacity = errors.New("views: view capacity reached")
)

// Config tunes the registry.
type Config struct {
	Engine engine.Engine
	// MaxViews caps concurrent instances. Defaults to 32.
	MaxViews int64
	// IdleTimeout reaps views untouched for this long. Zero disables
	// reaping. Views with live stream subscribers are never reaped.
	IdleTimeout time.Duration
	Logger      *logging.Logger
	Metrics     *monitoring.Metrics
}

// Manager owns every view the daemon serves.
type Manager struct {
	eng     engine.Engine
	log     *logging.Logger
	metrics *monitoring.Metrics
	sem     *semaphore.Weighted
	idle    time.Duration

	mu    sync.RWMutex
	views map[id.ViewID]*Entry

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager builds the registry and starts the idle reaper when configured.
func NewManager(cfg Config) *Manager {
	if cfg.MaxViews <= 0 {
		cfg.MaxViews = 32
	}
	m := &Manager{
		eng:     cfg.Engine,
		log:     logging.OrNop(cfg.Logger),
		metrics: cfg.Metrics,
		sem:     semaphore.NewWeighted(cfg.MaxViews),
		idle:    cfg.IdleTimeout,
		views:   make(map[id.ViewID]*Entry),
		stop:    make(chan struct{}),
	}
	if m.idle > 0 {
		m.wg.Add(1)
		go m.reap()
	}
	return m
}

// CreateRequest carries view creation parameters over the wire. URL and HTML
// sources are mutually exclusive; exactly one is required.
type CreateRequest struct {
	Name string `json:"name,omitempty"`

	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	HTML    string `json:"html,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`

	OriginAllowList []string `json:"originAllowList,omitempty"`
	InjectedScript  string   `json:"injectedScript,omitempty"`

	// EnableBridge registers the daemon as message handler, which installs
	// the page-global bridge; deliveries flow to stream subscribers.
	EnableBridge bool   `json:"enableBridge,omitempty"`
	BridgeName   string `json:"bridgeName,omitempty"`

	UserAgent         string `json:"userAgent,omitempty"`
	Incognito         bool   `json:"incognito,omitempty"`
	DisableJavaScript bool   `json:"disableJavaScript,omitempty"`
}

func (r *CreateRequest) source() (webview.Source, error) {
	switch {
	case r.URL != "" && r.HTML != "":
		return nil, fmt.Errorf("url and html sources are mutually exclusive")
	case r.URL != "":
		var body []byte
		if r.Body != "" {
			body = []byte(r.Body)
		}
		return webview.SourceURL{URL: r.URL, Method: r.Method, Headers: r.Headers, Body: body}, nil
	case r.HTML != "":
		return webview.SourceHTML{HTML: r.HTML, BaseURL: r.BaseURL}, nil
	default:
		return nil, fmt.Errorf("a url or html source is required")
	}
}

// Create builds a view, registers it and starts its initial load. Creation
// is atomic from the caller's side: a load that fails synchronously (inline
// markup without the universal origin pattern, closed engine) tears the view
// back down.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Entry, error) {
	src, err := req.source()
	if err != nil {
		return nil, fmt.Errorf("views: %w", err)
	}
	if !m.sem.TryAcquire(1) {
		return nil, ErrCapacity
	}

	e := &Entry{
		name:      req.Name,
		hub:       newHub(m.log),
		engine:    m.eng.Name(),
		metrics:   m.metrics,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
	}

	props := webview.Props{
		Source:                  src,
		OriginAllowList:         req.OriginAllowList,
		InjectedScript:          req.InjectedScript,
		BridgeName:              req.BridgeName,
		UserAgent:               req.UserAgent,
		Incognito:               req.Incognito,
		DisableJavaScript:       req.DisableJavaScript,
		OnLoadStart:             e.publishLoad,
		OnLoadProgress:          e.publishLoad,
		OnLoadEnd:               e.publishLoad,
		OnError:                 e.publishLoad,
		OnHTTPError:             e.publishLoad,
		OnTerminated:            e.publishLoad,
		OnNavigationStateChange: e.publishState,
		OpenExternal:            e.publishHandoff,
	}
	if req.EnableBridge {
		props.OnMessage = e.publishMessage
	}

	view, err := webview.New(ctx, m.eng, props, m.log)
	if err != nil {
		m.sem.Release(1)
		return nil, err
	}
	e.view = view

	m.mu.Lock()
	m.views[view.ID()] = e
	count := len(m.views)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncViewsTotal(m.eng.Name())
		m.metrics.SetViewsActive(count)
	}
	m.log.Info("view registered",
		zap.String("view_id", view.ID().String()),
		zap.String("name", req.Name),
		zap.Int("active", count),
	)

	if err := view.Load(); err != nil {
		_ = m.Delete(view.ID())
		return nil, err
	}
	return e, nil
}

// Get looks a view up.
func (m *Manager) Get(viewID id.ViewID) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.views[viewID]
	return e, ok
}

// List returns all entries, oldest first.
func (m *Manager) List() []*Entry {
	m.mu.RLock()
	out := make([]*Entry, 0, len(m.views))
	for _, e := range m.views {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

// Len reports the number of live views.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}

// EngineName reports the backend engine the registry runs on.
func (m *Manager) EngineName() string { return m.eng.Name() }

// Delete closes a view and frees its capacity slot.
func (m *Manager) Delete(viewID id.ViewID) error {
	m.mu.Lock()
	e, ok := m.views[viewID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.views, viewID)
	count := len(m.views)
	m.mu.Unlock()

	e.hub.close()
	err := e.view.Close()
	m.sem.Release(1)
	if m.metrics != nil {
		m.metrics.SetViewsActive(count)
	}
	m.log.Info("view removed",
		zap.String("view_id", viewID.String()),
		zap.Int("active", count),
	)
	return err
}

// Stop shuts the registry down, closing every view.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
	for _, e := range m.List() {
		_ = m.Delete(e.ID())
	}
}

// reap closes views idle past the deadline. Subscribed views are exempt: a
// connected stream client counts as use.
func (m *Manager) reap() {
	defer m.wg.Done()
	interval := m.idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.idle)
			for _, e := range m.List() {
				if e.hub.count() > 0 {
					continue
				}
				if e.LastUsed().Before(cutoff) {
					m.log.Info("reaping idle view", zap.String("view_id", e.ID().String()))
					_ = m.Delete(e.ID())
				}
			}
		}
	}
}

// Entry is one registered view plus its stream fanout and idle bookkeeping.
type Entry struct {
	name      string
	view      *webview.View
	hub       *hub
	engine    string
	metrics   *monitoring.Metrics
	createdAt time.Time

	mu       sync.Mutex
	lastUsed time.Time
}

// Info is the wire snapshot of an entry.
type Info struct {
	ID           id.ViewID `json:"id"`
	Name         string    `json:"name,omitempty"`
	Engine       string    `json:"engine"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Loading      bool      `json:"loading"`
	CanGoBack    bool      `json:"canGoBack"`
	CanGoForward bool      `json:"canGoForward"`
	CreatedAt    time.Time `json:"createdAt"`
	LastUsedAt   time.Time `json:"lastUsedAt"`
}

func (e *Entry) ID() id.ViewID { return e.view.ID() }

func (e *Entry) Name() string { return e.name }

// View exposes the underlying component.
func (e *Entry) View() *webview.View { return e.view }

// Info snapshots current state for the REST surface.
func (e *Entry) Info() Info {
	st := e.view.State()
	return Info{
		ID:           e.view.ID(),
		Name:         e.name,
		Engine:       e.view.EngineName(),
		URL:          st.URL,
		Title:        st.Title,
		Loading:      st.Loading,
		CanGoBack:    st.CanGoBack,
		CanGoForward: st.CanGoForward,
		CreatedAt:    e.createdAt,
		LastUsedAt:   e.LastUsed(),
	}
}

// Subscribe attaches a stream consumer and counts as use.
func (e *Entry) Subscribe() (<-chan Frame, func()) {
	e.touch()
	return e.hub.subscribe()
}

func (e *Entry) Navigate(url string) {
	e.touch()
	e.view.Navigate(url)
}

func (e *Entry) Back() {
	e.touch()
	e.view.GoBack()
}

func (e *Entry) Forward() {
	e.touch()
	e.view.GoForward()
}

func (e *Entry) Reload() {
	e.touch()
	e.view.Reload()
}

func (e *Entry) StopLoading() {
	e.touch()
	e.view.StopLoading()
}

// Inject queues script into the page, fire-and-forget.
func (e *Entry) Inject(script string) {
	e.touch()
	if e.metrics != nil {
		e.metrics.RecordInjection(e.engine, "demand")
	}
	e.view.InjectScript(script)
}

// Post delivers a host-to-page message through an eval hook: pages either
// define window.onWebviewMessage or listen for standard "message" events.
func (e *Entry) Post(data string) {
	e.touch()
	if e.metrics != nil {
		e.metrics.RecordBridgeMessage("out")
	}
	e.view.InjectScript(postMessageScript(data))
}

func (e *Entry) LastUsed() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

func (e *Entry) touch() {
	e.mu.Lock()
	e.lastUsed = time.Now()
	e.mu.Unlock()
}

func (e *Entry) publishLoad(ev webview.LoadEvent) {
	e.hub.publish(Frame{Type: FrameEvent, Event: &ev})
}

func (e *Entry) publishState(st webview.NavigationState) {
	e.hub.publish(Frame{Type: FrameState, State: &st})
}

func (e *Entry) publishMessage(ev webview.MessageEvent) {
	e.hub.publish(Frame{Type: FrameMessage, Message: &ev})
}

// publishHandoff relays targets the allow-list routed outside the view.
func (e *Entry) publishHandoff(url string) {
	if e.metrics != nil {
		e.metrics.RecordHandoff()
	}
	e.hub.publish(Frame{Type: FrameHandoff, Handoff: &Handoff{URL: url}})
}

// postMessageScript builds the host-to-page delivery snippet. The callback
// branch keeps it quiet on minimal script runtimes without MessageEvent.
func postMessageScript(data string) string {
	quoted, _ := json.Marshal(data)
	return fmt.Sprintf(`(function (data) {
  if (typeof window.onWebviewMessage === "function") { window.onWebviewMessage(data); return; }
  if (typeof MessageEvent === "function") {
    var ev = new MessageEvent("message", {data: data});
    document.dispatchEvent(ev);
    window.dispatchEvent(ev);
  }
})(%s);`, quoted)
}
