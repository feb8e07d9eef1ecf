// Package crawler walks a website breadth-first and extracts readable text.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// ErrStop can be returned by a VisitFunc to end a crawl early without failing it.
var ErrStop = errors.New("crawler: stop")

const (
	DefaultUserAgent    = "botstudio-crawler/1.0"
	DefaultMaxPageBytes = 2 << 20
	DefaultRequestDelay = 250 * time.Millisecond
)

// Options bounds a single crawl.
type Options struct {
	MaxPages int
	MaxDepth int
}

// Page is one fetched HTML page.
type Page struct {
	URL   string
	Title string
	Text  string
	Depth int
	Links []string
}

// VisitFunc receives every page with readable content, in breadth-first order.
type VisitFunc func(ctx context.Context, page Page) error

// Crawler fetches same-host pages over HTTP.
type Crawler struct {
	client       *http.Client
	userAgent    string
	maxPageBytes int64
	delay        time.Duration
	log          logrus.FieldLogger
}

type Option func(*Crawler)

func WithUserAgent(ua string) Option {
	return func(c *Crawler) { c.userAgent = ua }
}

// WithRequestDelay sets the minimum spacing between two requests of one crawl.
func WithRequestDelay(d time.Duration) Option {
	return func(c *Crawler) { c.delay = d }
}

func WithMaxPageBytes(n int64) Option {
	return func(c *Crawler) { c.maxPageBytes = n }
}

func New(client *http.Client, log logrus.FieldLogger, opts ...Option) *Crawler {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	c := &Crawler{
		client:       client,
		userAgent:    DefaultUserAgent,
		maxPageBytes: DefaultMaxPageBytes,
		delay:        DefaultRequestDelay,
		log:          log.WithField("component", "crawler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queued struct {
	url   string
	depth int
}

// Crawl visits rootURL and the pages it links to on the same host. Pages deeper
// than opts.MaxDepth are not fetched and at most opts.MaxPages pages are visited.
// A failure to fetch the root page fails the crawl; later fetch failures are skipped.
func (c *Crawler) Crawl(ctx context.Context, rootURL string, opts Options, visit VisitFunc) error {
	root, err := url.Parse(rootURL)
	if err != nil || (root.Scheme != "http" && root.Scheme != "https") || root.Host == "" {
		return fmt.Errorf("invalid root url %q", rootURL)
	}
	root.Fragment = ""
	if opts.MaxPages <= 0 {
		return nil
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if c.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(c.delay), 1)
	}

	seen := map[string]bool{root.String(): true}
	queue := []queued{{url: root.String()}}
	visited := 0

	for len(queue) > 0 && visited < opts.MaxPages {
		next := queue[0]
		queue = queue[1:]

		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		page, err := c.fetch(ctx, next.url)
		if err != nil {
			if next.depth == 0 {
				return err
			}
			c.log.WithError(err).WithField("url", next.url).Debug("skipping page")
			continue
		}
		if page == nil {
			continue
		}
		page.Depth = next.depth
		visited++

		if err := visit(ctx, *page); err != nil {
			return err
		}

		if next.depth >= opts.MaxDepth {
			continue
		}
		for _, link := range page.Links {
			u, ok := sameHost(root, page.URL, link)
			if !ok || seen[u] {
				continue
			}
			seen[u] = true
			queue = append(queue, queued{url: u, depth: next.depth + 1})
		}
	}
	return nil
}

// fetch returns nil without error for responses that are not HTML.
func (c *Crawler) fetch(ctx context.Context, target string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return nil, nil
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, c.maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", target, err)
	}
	page, err := ExtractText(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target, err)
	}
	page.URL = resp.Request.URL.String()
	return page, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// sameHost resolves href against base and keeps it only when it stays on root's host.
func sameHost(root *url.URL, base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := b.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(u.Host, root.Host) {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
