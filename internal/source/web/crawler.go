// Package web implements the crawling source connector. A breadth-first
// crawl starts from the configured seed URLs and stays within each
// seed's host; every fetched page becomes one indexable item.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/answerdeck/answerdeck/internal/normalize"
	"github.com/answerdeck/answerdeck/internal/source"
)

// maxPageSize bounds a single page body (5 MB).
const maxPageSize = 5 * 1024 * 1024

const userAgent = "answerdeck-crawler/1.0"

// Config configures a Crawler.
type Config struct {
	// Seeds are the starting URLs. The crawl never leaves a seed's host.
	Seeds []string

	// MaxPages caps the number of pages fetched per crawl.
	MaxPages int

	// Budget is the soft time limit for one crawl. When it elapses the
	// crawl stops and returns the pages collected so far.
	Budget time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero means 2/s.
	RequestsPerSecond float64

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Crawler crawls seed sites breadth-first and serves fetched pages as
// source items. Pages collected during List are cached so Fetch does
// not re-download them within the same sync run.
type Crawler struct {
	seeds    []string
	maxPages int
	budget   time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string][]byte
}

// New creates a Crawler from cfg.
func New(cfg Config, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 25
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = 120 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Crawler{
		seeds:    cfg.Seeds,
		maxPages: maxPages,
		budget:   budget,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		logger:   logger,
		cache:    make(map[string][]byte),
	}
}

// Name implements source.Connector.
func (c *Crawler) Name() string { return "web" }

// List crawls the seed sites and returns one item per fetched page.
// The crawl degrades gracefully: unreachable pages are skipped, and an
// exhausted time budget returns the partial result instead of failing.
func (c *Crawler) List(ctx context.Context) ([]source.Item, error) {
	deadline := time.Now().Add(c.budget)

	queue := make([]string, 0, 2*c.maxPages)
	seen := make(map[string]bool)
	hosts := make(map[string]bool)

	for _, seed := range c.seeds {
		u, err := url.Parse(seed)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			c.logger.Warn("skipping invalid crawl seed", "seed", seed)
			continue
		}
		hosts[u.Host] = true
		canon := canonicalURL(u)
		if !seen[canon] {
			seen[canon] = true
			queue = append(queue, canon)
		}
	}
	if len(queue) == 0 {
		if len(c.seeds) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: no valid crawl seeds", source.ErrUnavailable)
	}

	var items []source.Item
	fetched := 0
	for len(queue) > 0 && fetched < c.maxPages {
		if time.Now().After(deadline) {
			c.logger.Warn("crawl budget exhausted", "pages", fetched, "pending", len(queue))
			break
		}
		if err := ctx.Err(); err != nil {
			return items, err
		}

		pageURL := queue[0]
		queue = queue[1:]

		if err := c.limiter.Wait(ctx); err != nil {
			return items, err
		}

		body, fetchedAt, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			c.logger.Warn("crawl fetch failed", "url", pageURL, "error", err)
			continue
		}
		fetched++

		c.mu.Lock()
		c.cache[pageURL] = body
		c.mu.Unlock()

		items = append(items, source.Item{
			ID:       pageURL,
			Name:     pageURL,
			Format:   normalize.FormatHTML,
			Modified: fetchedAt,
		})

		for _, link := range extractLinks(pageURL, body) {
			if len(queue) >= 2*c.maxPages {
				break
			}
			u, err := url.Parse(link)
			if err != nil || !hosts[u.Host] {
				continue
			}
			if !seen[link] {
				seen[link] = true
				queue = append(queue, link)
			}
		}
	}

	// All seeds down: the source is unavailable, not empty.
	if fetched == 0 {
		return nil, fmt.Errorf("%w: none of the crawl seeds responded", source.ErrUnavailable)
	}

	c.logger.Info("crawl complete", "pages", fetched)
	return items, nil
}

// Fetch returns a crawled page, from the List cache when available.
func (c *Crawler) Fetch(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	body, ok := c.cache[id]
	c.mu.Unlock()
	if ok {
		return body, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, _, err := c.fetchPage(ctx, id)
	if err != nil {
		// Only a definitive 404/410 means the page is gone; anything
		// else (timeout, 5xx) must not look like a vanished item.
		if errors.Is(err, source.ErrNotFound) {
			return nil, fmt.Errorf("fetching page %q: %w", id, err)
		}
		return nil, fmt.Errorf("%w: fetching page %q: %v", source.ErrUnavailable, id, err)
	}
	return body, nil
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string) ([]byte, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, time.Time{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, time.Time{}, fmt.Errorf("%w: status %d", source.ErrNotFound, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") {
		return nil, time.Time{}, fmt.Errorf("unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, time.Time{}, err
	}
	return body, time.Now(), nil
}

// extractLinks pulls same-document anchors out of an HTML page and
// resolves them against the page URL. Fragments are dropped so that
// "/faq" and "/faq#pricing" dedupe to one page.
func extractLinks(pageURL string, body []byte) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		links = append(links, canonicalURL(abs))
	})
	return links
}

// canonicalURL strips the fragment so every page has one identity.
func canonicalURL(u *url.URL) string {
	cp := *u
	cp.Fragment = ""
	if cp.Path == "" {
		cp.Path = "/"
	}
	return cp.String()
}
