package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/marsdata/config"
	"github.com/use-agent/marsdata/pipeline"
	"golang.org/x/net/html"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps a fetched page at 10 MB.
const maxBody = 10 << 20

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1, since http.Transport cannot speak h2 over a utls conn.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// newChromeTransport returns a transport whose TLS handshakes carry a
// Chrome fingerprint.
func newChromeTransport(proxy string) *http.Transport {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http session: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

// page is one entry of the HTTP session history.
type page struct {
	url    *url.URL
	status int
	body   []byte
}

// HTTPSession is a pipeline.Session that fetches pages without running
// JavaScript. Activating an element follows its link; elements without a
// link cannot be activated and report pipeline.ErrNotFound.
type HTTPSession struct {
	client  *http.Client
	current *page
	history []*page
}

// NewHTTPSession creates a session with its own cookie jar.
func NewHTTPSession(cfg config.FetchConfig, proxy string) *HTTPSession {
	jar, _ := cookiejar.New(nil)
	return &HTTPSession{
		client: &http.Client{
			Transport: newChromeTransport(proxy),
			Jar:       jar,
			Timeout:   cfg.HTTPTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

// Navigate fetches rawURL and makes it the current page. An error status
// still loads the returned page, as a browser would; only transport
// failures are errors.
func (s *HTTPSession) Navigate(ctx context.Context, rawURL string) error {
	p, err := s.fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	if s.current != nil {
		s.history = append(s.history, s.current)
	}
	s.current = p
	return nil
}

func (s *HTTPSession) fetch(ctx context.Context, rawURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("http session: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http session: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Debug("http session: error status", "url", rawURL, "status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("http session: read body: %w", err)
	}
	return &page{url: resp.Request.URL, status: resp.StatusCode, body: body}, nil
}

func (s *HTTPSession) HTML(context.Context) (string, error) {
	if s.current == nil {
		return "", fmt.Errorf("http session: no page loaded")
	}
	return string(s.current.body), nil
}

// WaitFor reports whether selector is present. A static page never
// changes, so there is nothing to wait for.
func (s *HTTPSession) WaitFor(_ context.Context, selector string, _ time.Duration) bool {
	doc, err := s.document()
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

// Find resolves loc against the current page.
func (s *HTTPSession) Find(_ context.Context, loc pipeline.Locator) (pipeline.Element, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}

	var sel *goquery.Selection
	if loc.CSS != "" {
		sel = doc.Find(loc.CSS).Eq(loc.Index)
	} else {
		needle := strings.ToLower(loc.Text)
		sel = doc.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(a.Text()), needle)
		}).First()
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", loc, pipeline.ErrNotFound)
	}

	href, ok := sel.Closest("a[href]").Attr("href")
	if !ok {
		return nil, fmt.Errorf("%s has no link to follow: %w", loc, pipeline.ErrNotFound)
	}
	target, err := s.current.url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, fmt.Errorf("%s: bad href %q: %w", loc, href, pipeline.ErrNotFound)
	}
	return &linkElement{session: s, target: target.String()}, nil
}

// Back restores the previous page from history without refetching.
func (s *HTTPSession) Back(context.Context) error {
	if len(s.history) == 0 {
		return fmt.Errorf("http session: no history")
	}
	s.current = s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	return nil
}

func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	s.current, s.history = nil, nil
	return nil
}

// document parses the current page with x/net/html.
func (s *HTTPSession) document() (*goquery.Document, error) {
	if s.current == nil {
		return nil, fmt.Errorf("http session: no page loaded")
	}
	root, err := html.Parse(bytes.NewReader(s.current.body))
	if err != nil {
		return nil, fmt.Errorf("http session: parse %s: %w", s.current.url, err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

type linkElement struct {
	session *HTTPSession
	target  string
}

func (e *linkElement) Activate(ctx context.Context) error {
	return e.session.Navigate(ctx, e.target)
}
