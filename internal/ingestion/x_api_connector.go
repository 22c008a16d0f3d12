package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/STRATINT/alertwatch/internal/models"
)

// XAPIConnector reads an account's timeline through the X (Twitter) API v2.
type XAPIConnector struct {
	baseURL     string
	bearerToken string
	logger      *slog.Logger
	client      *http.Client

	mu      sync.Mutex
	userIDs map[string]string
}

// NewXAPIConnector creates an API v2 connector. baseURL is normally
// https://api.twitter.com.
func NewXAPIConnector(baseURL, bearerToken string, logger *slog.Logger) *XAPIConnector {
	return &XAPIConnector{
		baseURL:     strings.TrimRight(baseURL, "/"),
		bearerToken: bearerToken,
		logger:      logger,
		userIDs:     make(map[string]string),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements PostSource.
func (c *XAPIConnector) Name() string {
	return string(models.SourceKindXAPI)
}

// apiTweet represents a tweet from the API
type apiTweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type apiTimeline struct {
	Data   []apiTweet `json:"data"`
	Errors []apiError `json:"errors,omitempty"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// RecentPosts implements PostSource.
func (c *XAPIConnector) RecentPosts(ctx context.Context, account string, limit int) ([]models.RawPost, error) {
	username := strings.TrimPrefix(account, "@")

	userID, err := c.userID(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user ID: %w", err)
	}

	tweets, err := c.userTweets(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tweets: %w", err)
	}

	posts := make([]models.RawPost, 0, len(tweets))
	for _, tweet := range tweets {
		posts = append(posts, models.RawPost{
			ID:        models.PostID(tweet.ID),
			Timestamp: tweet.CreatedAt,
			Text:      tweet.Text,
		})
	}

	return posts, nil
}

// userID resolves and caches the numeric id of username.
func (c *XAPIConnector) userID(ctx context.Context, username string) (string, error) {
	c.mu.Lock()
	id, ok := c.userIDs[username]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var result struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
		Errors []apiError `json:"errors,omitempty"`
	}

	endpoint := fmt.Sprintf("%s/2/users/by/username/%s", c.baseURL, url.PathEscape(username))
	if err := c.get(ctx, endpoint, &result); err != nil {
		return "", err
	}

	if result.Data.ID == "" {
		if len(result.Errors) > 0 {
			return "", fmt.Errorf("user %s: %s", username, result.Errors[0].Detail)
		}
		return "", fmt.Errorf("user %s: empty id in response", username)
	}

	c.mu.Lock()
	c.userIDs[username] = result.Data.ID
	c.mu.Unlock()

	c.logger.Info("resolved account", "username", username, "user_id", result.Data.ID)
	return result.Data.ID, nil
}

func (c *XAPIConnector) userTweets(ctx context.Context, userID string, limit int) ([]apiTweet, error) {
	// The endpoint only accepts 5..100.
	maxResults := limit
	if maxResults < 5 {
		maxResults = 5
	}
	if maxResults > 100 {
		maxResults = 100
	}

	params := url.Values{}
	params.Set("tweet.fields", "created_at")
	params.Set("max_results", strconv.Itoa(maxResults))

	endpoint := fmt.Sprintf("%s/2/users/%s/tweets?%s", c.baseURL, url.PathEscape(userID), params.Encode())

	var result apiTimeline
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}

	if len(result.Data) == 0 && len(result.Errors) > 0 {
		return nil, fmt.Errorf("twitter API error: %s", result.Errors[0].Detail)
	}

	if len(result.Data) > limit {
		result.Data = result.Data[:limit]
	}
	return result.Data, nil
}

func (c *XAPIConnector) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return NewRetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("twitter API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return NewRetryableErrorWithDelay(apiErr, rateLimitDelay(resp.Header, time.Now()))
		case resp.StatusCode >= 500:
			return NewRetryableError(apiErr)
		default:
			return apiErr
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// rateLimitDelay reads x-rate-limit-reset (unix seconds) into a wait time.
func rateLimitDelay(h http.Header, now time.Time) time.Duration {
	reset, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if err != nil {
		return 0
	}
	wait := time.Unix(reset, 0).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
