package normalize

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/answerdeck/answerdeck/internal/knowledge"
)

// html extracts the readable article body from an HTML page.
// Readability strips navigation, ads and boilerplate; when it cannot
// identify an article (e.g. landing pages), the whole body text is used
// as a fallback.
func (n *Normalizer) html(name string, data []byte) ([]knowledge.Document, error) {
	pageURL, err := url.Parse(name)
	if err != nil || pageURL.Scheme == "" {
		// name is a bare file name, not a URL; readability tolerates nil.
		pageURL = nil
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		doc := knowledge.Document{Content: article.TextContent}
		if article.Title != "" {
			doc.Metadata = map[string]string{"title": article.Title}
		}
		return []knowledge.Document{doc}, nil
	}
	if err != nil {
		n.logger.Debug("readability extraction failed, falling back to body text",
			"name", name, "error", err)
	}

	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	gq.Find("script, style, noscript").Remove()

	body := gq.Find("body").Text()
	if strings.TrimSpace(body) == "" {
		body = gq.Text()
	}

	doc := knowledge.Document{Content: body}
	if title := strings.TrimSpace(gq.Find("title").First().Text()); title != "" {
		doc.Metadata = map[string]string{"title": title}
	}
	return []knowledge.Document{doc}, nil
}
