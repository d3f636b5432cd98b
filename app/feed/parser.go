package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// Parser fetches a feed URL and yields raw items. A fetch or parse problem
// is reported as an error; a feed that parses but contains no entries is a
// successful empty result, so callers can tell the two apart.
type Parser struct {
	gofeedParser *gofeed.Parser
	client       *http.Client
	userAgent    string
}

func NewParser(client *http.Client, userAgent string) *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		client:       client,
		userAgent:    userAgent,
	}
}

// Parse fetches url and returns its raw items. RSS/Atom/JSON documents are
// parsed structurally. A plain HTML page is treated as an article index when
// articleSelector is set: each matched element contributes one item from its
// first link. An HTML page where the selector matches nothing is an error,
// not an empty feed.
func (p *Parser) Parse(ctx context.Context, feedURL, articleSelector string) ([]RawItem, error) {
	data, err := p.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err == nil {
		return p.normalizeItems(feed), nil
	}

	if articleSelector == "" {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items, scrapeErr := p.scrapeIndexPage(data, feedURL, articleSelector)
	if scrapeErr != nil {
		return nil, scrapeErr
	}
	return items, nil
}

// DetectAndParse is used when selectors are unknown (the feed wizard). It
// parses url directly when it is a feed; for an HTML page it follows the
// advertised alternate feed link. Returns the items plus the feed's own
// title and description.
func (p *Parser) DetectAndParse(ctx context.Context, pageURL string) ([]RawItem, string, string, error) {
	data, err := p.fetch(ctx, pageURL)
	if err != nil {
		return nil, "", "", err
	}

	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err == nil {
		return p.normalizeItems(feed), feed.Title, feed.Description, nil
	}

	feedURL, discoverErr := p.discoverFeedLink(data, pageURL)
	if discoverErr != nil {
		return nil, "", "", fmt.Errorf("failed to detect feed at %s: %w", pageURL, discoverErr)
	}

	data, err = p.fetch(ctx, feedURL)
	if err != nil {
		return nil, "", "", err
	}

	feed, err = p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to parse discovered feed %s: %w", feedURL, err)
	}

	return p.normalizeItems(feed), feed.Title, feed.Description, nil
}

func (p *Parser) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	return data, nil
}

func (p *Parser) normalizeItems(feed *gofeed.Feed) []RawItem {
	items := make([]RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		raw := RawItem{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: item.Description,
			Date:        item.Published,
		}
		if raw.Description == "" {
			raw.Description = item.Content
		}
		if raw.Link == "" {
			raw.Link = strings.TrimSpace(item.GUID)
		}

		for _, enclosure := range item.Enclosures {
			if enclosure != nil && strings.HasPrefix(enclosure.Type, "audio/") {
				raw.Audio = enclosure.URL
				break
			}
		}

		items = append(items, raw)
	}
	return items
}

// discoverFeedLink finds the advertised feed URL in an HTML page's head,
// resolved against the page URL.
func (p *Parser) discoverFeedLink(data []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL: %w", err)
	}

	var feedURL string
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		linkType, _ := sel.Attr("type")
		switch linkType {
		case "application/rss+xml", "application/atom+xml", "application/feed+json", "application/json":
		default:
			return true
		}

		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}

		resolved, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}

		feedURL = resolved.String()
		return false
	})

	if feedURL == "" {
		return "", fmt.Errorf("no feed link advertised on page")
	}

	return feedURL, nil
}

// scrapeIndexPage yields one item per articleSelector match on an HTML page,
// taking the first anchor inside (or on) the matched element.
func (p *Parser) scrapeIndexPage(data []byte, pageURL, articleSelector string) ([]RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	var items []RawItem
	doc.Find(articleSelector).Each(func(_ int, sel *goquery.Selection) {
		anchor := sel
		if !sel.Is("a") {
			anchor = sel.Find("a").First()
		}

		href, ok := anchor.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		link, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}

		title := strings.TrimSpace(anchor.Text())
		if title == "" {
			title = strings.TrimSpace(sel.Text())
		}

		items = append(items, RawItem{
			Title: title,
			Link:  link.String(),
		})
	})

	if len(items) == 0 {
		return nil, fmt.Errorf("no items matched selector %q on %s", articleSelector, pageURL)
	}

	return items, nil
}
