package inproc

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// snippetPolicy strips every tag, leaving only text content.
var snippetPolicy = bluemonday.StrictPolicy()

// errorSnippet distills an HTTP error page into a short plain-text fragment
// for the event description. Whitespace is collapsed and the result capped.
func errorSnippet(body []byte, max int) string {
	text := html.UnescapeString(snippetPolicy.Sanitize(string(body)))
	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > max {
		text = string(runes[:max])
	}
	return text
}

// document is the parsed state of a loaded page. It owns the DOM the script
// host binds against; all access is serialized by the page.
type document struct {
	loc   *url.URL // document location, final URL after redirects
	base  *url.URL // resolution base, honors <base href>
	dom   *goquery.Document
	title string
}

// pageScript is one <script> element in document order.
type pageScript struct {
	src  string // absolute URL for external scripts
	code string // inline body when src is empty
}

// newBlankDocument is the initial about:blank state of every page.
func newBlankDocument() *document {
	d, err := parseDocument("about:blank", "text/html", []byte("<html><head></head><body></body></html>"))
	if err != nil {
		// The blank shell is constant; failing to parse it is a programming error.
		panic(err)
	}
	d.title = ""
	return d
}

// parseDocument builds a document from a decoded response body. Non-HTML
// bodies are wrapped so every load lands on a renderable DOM.
func parseDocument(rawURL, mediaType string, body []byte) (*document, error) {
	loc, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.Contains(mediaType, "html") || strings.Contains(mediaType, "xml"):
		// Parsed as-is below.
	case strings.HasPrefix(mediaType, "text/"):
		var buf bytes.Buffer
		buf.WriteString("<html><head></head><body><pre>")
		buf.WriteString(html.EscapeString(string(body)))
		buf.WriteString("</pre></body></html>")
		body = buf.Bytes()
	default:
		// Binary content: an empty shell titled after the resource name.
		name := path.Base(loc.Path)
		body = []byte("<html><head><title>" + html.EscapeString(name) + "</title></head><body></body></html>")
	}

	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	d := &document{
		loc: loc,
		dom: dom,
	}

	d.base = loc
	if href, ok := dom.Find("base[href]").First().Attr("href"); ok {
		if rel, err := url.Parse(href); err == nil {
			d.base = loc.ResolveReference(rel)
		}
	}

	d.title = strings.TrimSpace(dom.Find("title").First().Text())

	return d, nil
}

// setTitle updates the document title, keeping the DOM node in sync.
func (d *document) setTitle(title string) {
	d.title = title
	d.dom.Find("title").First().SetText(title)
}

// resolve turns a candidate href into an absolute URL. Pseudo schemes that
// cannot be navigated are rejected.
func (d *document) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "vbscript:", "data:", "blob:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	rel, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if rel.IsAbs() {
		return rel.String(), true
	}
	if d.base == nil || !d.base.IsAbs() {
		return "", false
	}
	return d.base.ResolveReference(rel).String(), true
}

// scripts returns the page's <script> elements in document order. Elements
// with a non-JavaScript type attribute are skipped.
func (d *document) scripts() []pageScript {
	var out []pageScript
	d.dom.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		switch strings.ToLower(strings.TrimSpace(typ)) {
		case "", "text/javascript", "application/javascript", "module":
		default:
			return
		}

		if src, ok := s.Attr("src"); ok && src != "" {
			if abs, ok := d.resolve(src); ok {
				out = append(out, pageScript{src: abs})
			}
			return
		}
		if code := s.Text(); strings.TrimSpace(code) != "" {
			out = append(out, pageScript{code: code})
		}
	})
	return out
}

// formRequest serializes a form element into a navigable request following
// the usual GET/POST submission rules.
func (d *document) formRequest(form *goquery.Selection) (engine.Request, bool) {
	action := d.loc.String()
	if raw, ok := form.Attr("action"); ok && strings.TrimSpace(raw) != "" {
		abs, ok := d.resolve(raw)
		if !ok {
			return engine.Request{}, false
		}
		action = abs
	}

	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, field *goquery.Selection) {
		name, _ := field.Attr("name")
		if name == "" {
			return
		}

		switch goquery.NodeName(field) {
		case "input":
			typ, _ := field.Attr("type")
			switch strings.ToLower(typ) {
			case "submit", "button", "reset", "image", "file":
				return
			case "checkbox", "radio":
				if _, checked := field.Attr("checked"); !checked {
					return
				}
			}
			values.Add(name, field.AttrOr("value", ""))
		case "textarea":
			values.Add(name, field.Text())
		case "select":
			option := field.Find("option[selected]").First()
			if option.Length() == 0 {
				option = field.Find("option").First()
			}
			if option.Length() > 0 {
				values.Add(name, option.AttrOr("value", strings.TrimSpace(option.Text())))
			}
		}
	})

	method := strings.ToUpper(form.AttrOr("method", "GET"))
	if method == "POST" {
		return engine.Request{
			URL:     action,
			Method:  "POST",
			Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			Body:    []byte(values.Encode()),
		}, true
	}

	target, err := url.Parse(action)
	if err != nil {
		return engine.Request{}, false
	}
	target.RawQuery = values.Encode()
	return engine.Request{URL: target.String(), Method: "GET"}, true
}
