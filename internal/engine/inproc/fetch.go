package inproc

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/infrastructure/monitoring"
	"github.com/ThuyDang88/webview/internal/infrastructure/resilience"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

const (
	maxRedirects    = 10
	acceptEncodings = "gzip, deflate, zstd"
	acceptTypes     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// zstdDecoder is safe for concurrent DecodeAll use.
var zstdDecoder, _ = zstd.NewReader(nil)

// fetched is a fully decoded main-resource response.
type fetched struct {
	url         string // final URL after redirects
	status      int
	contentType string // normalized media type, e.g. "text/html"
	body        []byte // decompressed, UTF-8 body
}

// loadError carries the platform error code triad for a failed load.
type loadError struct {
	Code        int
	Domain      string
	Description string
}

func (e *loadError) Error() string { return e.Description }

// fetcher retrieves main resources and page subresources. The breaker,
// limiter, and transport are shared across all pages of an engine; cookie
// jars stay per page.
type fetcher struct {
	transport http.RoundTripper
	breaker   *resilience.Breaker
	limiter   *rate.Limiter
	timeout   time.Duration
	maxBody   int64
	log       *logging.Logger
	metrics   *monitoring.Metrics
}

func newFetcher(cfg Config, log *logging.Logger) *fetcher {
	transport := cfg.Transport
	if transport == nil {
		retryClient := retryablehttp.NewClient()
		retryClient.RetryMax = 2
		retryClient.RetryWaitMin = 500 * time.Millisecond
		retryClient.RetryWaitMax = 5 * time.Second
		retryClient.Logger = nil
		transport = &retryablehttp.RoundTripper{Client: retryClient}
	}

	f := &fetcher{
		transport: transport,
		limiter:   rate.NewLimiter(rate.Inf, 0),
		timeout:   cfg.FetchTimeout,
		maxBody:   cfg.MaxBodyBytes,
		log:       log,
		metrics:   cfg.Metrics,
	}
	if cfg.MaxFetchRPS > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.MaxFetchRPS), int(cfg.MaxFetchRPS)+1)
	}

	f.breaker = resilience.New("fetch", resilience.Settings{
		MaxProbes: 5,
		Interval:  60 * time.Second,
		Timeout:   30 * time.Second,
		TripAfter: func(counts resilience.Counts) bool {
			// Pages point at arbitrary hosts, so stay lenient: trip on a
			// long failure run or a sustained high failure rate.
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("fetch breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if f.metrics != nil {
				f.metrics.SetBreakerState(name, int(to))
			}
		},
	})

	return f
}

// newClient builds the per-page resty client. The jar carries the page's
// cookies; incognito pages get their own and drop it on close.
func (f *fetcher) newClient(jar http.CookieJar, userAgent string) *resty.Client {
	client := resty.New().
		SetTimeout(f.timeout).
		SetTransport(f.transport).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects)).
		SetDoNotParseResponse(true).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", acceptTypes).
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetHeader("Accept-Encoding", acceptEncodings).
		SetHeader("Upgrade-Insecure-Requests", "1")

	if jar != nil {
		client.SetCookieJar(jar)
	}
	return client
}

// do executes one main-resource request and returns the decoded response.
// Responses with 4xx/5xx status are returned, not turned into errors; the
// caller reports them as http-error events.
func (f *fetcher) do(ctx context.Context, client *resty.Client, req engine.Request, referer string) (*fetched, *loadError) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, classify(err)
	}

	r := client.R().SetContext(ctx)
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if referer != "" && r.Header.Get("Referer") == "" {
		r.SetHeader("Referer", referer)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	resp, err := resilience.Do(f.breaker, func() (*resty.Response, error) {
		return r.Execute(method, req.URL)
	})
	if err != nil {
		return nil, classify(err)
	}

	raw := resp.RawBody()
	defer raw.Close()

	body, err := io.ReadAll(io.LimitReader(raw, f.maxBody+1))
	if err != nil {
		return nil, classify(err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, &loadError{
			Code:        engine.CodeIO,
			Domain:      engine.DomainContent,
			Description: fmt.Sprintf("response body exceeds %d bytes", f.maxBody),
		}
	}

	body, err = decompress(body, resp.Header().Get("Content-Encoding"))
	if err != nil {
		return nil, &loadError{
			Code:        engine.CodeIO,
			Domain:      engine.DomainContent,
			Description: fmt.Sprintf("decode response body: %v", err),
		}
	}

	mediaType, params := splitContentType(resp.Header().Get("Content-Type"), body)
	if strings.HasPrefix(mediaType, "text/") || strings.Contains(mediaType, "xml") {
		body = toUTF8(body, params["charset"], f.log)
	}

	if f.metrics != nil {
		f.metrics.RecordFetchSize(len(body))
	}

	finalURL := req.URL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	return &fetched{
		url:         finalURL,
		status:      resp.StatusCode(),
		contentType: mediaType,
		body:        body,
	}, nil
}

// fetchText retrieves a subresource (external script) as text. Failures are
// soft: the page keeps loading without it.
func (f *fetcher) fetchText(ctx context.Context, client *resty.Client, rawURL, referer string) (string, error) {
	res, lerr := f.do(ctx, client, engine.Request{URL: rawURL}, referer)
	if lerr != nil {
		return "", lerr
	}
	if res.status < 200 || res.status >= 300 {
		return "", fmt.Errorf("HTTP %d fetching %s", res.status, rawURL)
	}
	return string(res.body), nil
}

// decompress reverses the Content-Encoding applied by the server. Transparent
// decompression is off because the client advertises encodings explicitly.
func decompress(body []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		return io.ReadAll(fr)
	case "zstd":
		return zstdDecoder.DecodeAll(body, nil)
	default:
		// Unknown encoding: hand the bytes through and let parsing cope.
		return body, nil
	}
}

// splitContentType normalizes the media type, sniffing the body when the
// server sent no usable Content-Type header.
func splitContentType(header string, body []byte) (string, map[string]string) {
	if header == "" {
		header = mimetype.Detect(body).String()
	}
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "application/octet-stream", nil
	}
	return mediaType, params
}

// toUTF8 converts a text body to UTF-8. Charset comes from the Content-Type
// parameter when declared, otherwise from statistical detection.
func toUTF8(body []byte, declared string, log *logging.Logger) []byte {
	name := strings.ToLower(strings.TrimSpace(declared))
	if name == "" {
		det, err := chardet.NewTextDetector().DetectBest(body)
		if err != nil || det == nil {
			return body
		}
		name = strings.ToLower(det.Charset)
	}
	if name == "utf-8" || name == "utf8" || name == "us-ascii" || name == "ascii" {
		return body
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		log.Debug("unknown charset, keeping raw body", zap.String("charset", name))
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		log.Debug("charset decode failed, keeping raw body",
			zap.String("charset", name), zap.Error(err))
		return body
	}
	return decoded
}

// classify maps a transport failure onto the platform error code triad.
func classify(err error) *loadError {
	le := &loadError{
		Code:        engine.CodeUnknown,
		Domain:      engine.DomainNetwork,
		Description: err.Error(),
	}

	switch {
	case errors.Is(err, context.Canceled):
		le.Domain = engine.DomainEngine
		le.Description = "load cancelled"
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrProbeLimit):
		le.Code = engine.CodeTooManyRequests
		le.Domain = engine.DomainEngine
		le.Description = "fetch suppressed: too many recent failures"
	case errors.Is(err, context.DeadlineExceeded):
		le.Code = engine.CodeTimeout
	case isDNSError(err):
		le.Code = engine.CodeHostLookup
	case isTLSError(err):
		le.Code = engine.CodeFailedSSL
		le.Domain = engine.DomainTLS
	case isTimeout(err):
		le.Code = engine.CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		le.Code = engine.CodeConnect
	case strings.Contains(err.Error(), "stopped after"):
		le.Code = engine.CodeRedirectLoop
	case strings.Contains(err.Error(), "unsupported protocol scheme"):
		le.Code = engine.CodeUnsupportedScheme
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		le.Code = engine.CodeIO
	}

	return le
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:")
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
