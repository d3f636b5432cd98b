package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// descriptionSelector routes extraction to the item's own description
// instead of fetching the article page.
const descriptionSelector = "description"

// Extractor produces cleaned article text for raw items. Items that cannot
// be extracted are omitted from the result map; the pipeline treats missing
// indices as per-article failures, never as a whole-batch failure.
type Extractor struct {
	client    *http.Client
	userAgent string
}

func NewExtractor(client *http.Client, userAgent string) *Extractor {
	return &Extractor{
		client:    client,
		userAgent: userAgent,
	}
}

// Extract returns the cleaned article for each item index it could process.
// articleSelector picks the article section of the fetched page;
// filterSelector removes ad/boilerplate fragments inside it; charset names
// the page encoding (empty means UTF-8). The special selector "description"
// uses the feed-provided description as the body without fetching anything.
func (e *Extractor) Extract(ctx context.Context, items []RawItem, articleSelector, filterSelector, charset string) map[int]ExtractedArticle {
	result := make(map[int]ExtractedArticle, len(items))

	for i, item := range items {
		text, err := e.extractItem(ctx, item, articleSelector, filterSelector, charset)
		if err != nil {
			slog.Warn("Article extraction failed", "index", i, "url", item.Link, "error", err)
			continue
		}
		if text == "" {
			slog.Warn("Article extraction yielded no text", "index", i, "url", item.Link)
			continue
		}

		result[i] = ExtractedArticle{
			Title:     item.Title,
			Text:      text,
			AudioURI:  item.Audio,
			SourceURI: item.Link,
		}
	}

	return result
}

func (e *Extractor) extractItem(ctx context.Context, item RawItem, articleSelector, filterSelector, charset string) (string, error) {
	if strings.HasPrefix(articleSelector, descriptionSelector) || (articleSelector == "" && item.Description != "") {
		return e.extractFromFragment(item.Description, filterSelector)
	}

	if item.Link == "" {
		return "", fmt.Errorf("item has no link")
	}

	data, err := e.fetchPage(ctx, item.Link, charset)
	if err != nil {
		return "", err
	}

	if articleSelector == "" {
		return e.extractReadable(data, item.Link)
	}

	return e.extractWithSelector(data, articleSelector, filterSelector)
}

func (e *Extractor) extractFromFragment(fragment, filterSelector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("failed to parse description: %w", err)
	}

	if filterSelector != "" {
		doc.Find(filterSelector).Remove()
	}

	return normalizeText(doc.Text()), nil
}

func (e *Extractor) extractWithSelector(data []byte, articleSelector, filterSelector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse article page: %w", err)
	}

	section := doc.Find(articleSelector)
	if section.Length() == 0 {
		return "", fmt.Errorf("selector %q matched nothing", articleSelector)
	}

	if filterSelector != "" {
		section.Find(filterSelector).Remove()
	}

	return normalizeText(section.Text()), nil
}

func (e *Extractor) extractReadable(data []byte, pageURL string) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(data), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.TextContent == "" {
		return "", fmt.Errorf("no content extracted from %s", pageURL)
	}

	return normalizeText(article.TextContent), nil
}

func (e *Extractor) fetchPage(ctx context.Context, url, charset string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var reader io.Reader = resp.Body
	if charset != "" && !strings.EqualFold(charset, "utf-8") {
		encoding, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
		}
		reader = transform.NewReader(reader, encoding.NewDecoder())
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// normalizeText collapses whitespace runs and blank lines left behind by
// stripped markup.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}
