package ingestion

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/STRATINT/alertwatch/internal/models"
)

// RSSConnector reads an account through an RSS rendering of its timeline,
// such as the feeds served by Nitter or RSS-Bridge.
type RSSConnector struct {
	feedURL string
	logger  *slog.Logger
	client  *http.Client
	policy  *bluemonday.Policy
}

// NewRSSConnector creates a connector for feedURL. The URL may contain
// "{account}", which is replaced by the polled account on each fetch.
func NewRSSConnector(feedURL string, logger *slog.Logger) *RSSConnector {
	return &RSSConnector{
		feedURL: feedURL,
		logger:  logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		policy: bluemonday.StrictPolicy(),
	}
}

// Name implements PostSource.
func (c *RSSConnector) Name() string {
	return string(models.SourceKindRSS)
}

// RSS represents the RSS 2.0 feed structure.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []RSSItem `xml:"item"`
	} `xml:"channel"`
}

// RSSItem represents a single RSS 2.0 item.
type RSSItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

var (
	statusIDRE = regexp.MustCompile(`/status(?:es)?/(\d+)`)
	blockTagRE = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>`)
)

// RecentPosts implements PostSource.
func (c *RSSConnector) RecentPosts(ctx context.Context, account string, limit int) ([]models.RawPost, error) {
	feedURL := strings.ReplaceAll(c.feedURL, "{account}", strings.TrimPrefix(account, "@"))

	body, err := c.fetchFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	var feed RSS
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse RSS: %w", err)
	}

	posts := make([]models.RawPost, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		if limit > 0 && len(posts) >= limit {
			break
		}

		id := itemID(item)
		if id == "" {
			c.logger.Debug("skipping rss item without identifier", "title", item.Title)
			continue
		}

		text := c.flatten(item.Description)
		if text == "" {
			text = c.flatten(item.Title)
		}

		posts = append(posts, models.RawPost{
			ID:        models.PostID(id),
			Timestamp: parsePubDate(item.PubDate),
			Text:      text,
		})
	}

	return posts, nil
}

// flatten converts an HTML description to plain text, one line per block.
func (c *RSSConnector) flatten(s string) string {
	s = blockTagRE.ReplaceAllString(s, "\n")
	s = c.policy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}

// itemID prefers the numeric status id found in the link or guid.
func itemID(item RSSItem) string {
	for _, candidate := range []string{item.Link, item.GUID} {
		if m := statusIDRE.FindStringSubmatch(candidate); m != nil {
			return m[1]
		}
	}
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}
	return strings.TrimSpace(item.Link)
}

// parsePubDate attempts to parse RSS pubDate and Atom date formats.
func parsePubDate(dateStr string) time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return time.Now().UTC()
	}

	formats := []string{
		time.RFC1123Z, // Mon, 02 Jan 2006 15:04:05 -0700
		time.RFC1123,  // Mon, 02 Jan 2006 15:04:05 MST
		time.RFC3339,
		time.RFC822Z,
		time.RFC822,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.UTC()
		}
	}

	return time.Now().UTC()
}

func (c *RSSConnector) fetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, NewRetryableError(fmt.Errorf("http get failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, NewRetryableError(statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return body, nil
}
