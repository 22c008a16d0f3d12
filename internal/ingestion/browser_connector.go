package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/STRATINT/alertwatch/internal/models"
)

// BrowserConfig configures the headless browser source.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome.
	RemoteURL string

	// CookieFile holds the session cookies as JSON. Loaded on Start and
	// written back on Close. Empty disables session persistence.
	CookieFile string

	Headless bool

	// ProfileURL is the page to read; "{account}" is replaced.
	// Default: https://x.com/{account}.
	ProfileURL string

	// NavigationTimeout bounds page load and timeline rendering. Default: 45s.
	NavigationTimeout time.Duration

	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.ProfileURL == "" {
		c.ProfileURL = "https://x.com/{account}"
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserConnector reads the public profile page of an account with a
// stealth headless Chrome. The browser and its session are acquired once in
// Start and released in Close; each fetch only opens and closes a tab.
type BrowserConnector struct {
	cfg     BrowserConfig
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewBrowserConnector creates a browser source. Call Start before use.
func NewBrowserConnector(cfg BrowserConfig) *BrowserConnector {
	cfg.defaults()
	return &BrowserConnector{cfg: cfg}
}

// Name implements PostSource.
func (c *BrowserConnector) Name() string {
	return string(models.SourceKindBrowser)
}

// Start launches (or connects to) Chrome and restores session cookies.
func (c *BrowserConnector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.cfg.Logger

	wsURL := c.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(c.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		c.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "headless", c.cfg.Headless)
	} else {
		log.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		c.killLauncher()
		return fmt.Errorf("browser: connect: %w", err)
	}
	// Detach from the startup context so later fetches are not cancelled by it.
	c.browser = b.Context(context.Background())

	if c.cfg.CookieFile != "" {
		cookies, err := LoadCookies(c.cfg.CookieFile)
		switch {
		case err != nil:
			log.Warn("browser: cookie file unreadable, starting without session", "path", c.cfg.CookieFile, "error", err)
		case len(cookies) > 0:
			if err := c.browser.SetCookies(proto.CookiesToParams(cookies)); err != nil {
				log.Warn("browser: restore cookies failed", "error", err)
			} else {
				log.Info("browser: session restored", "cookies", len(cookies))
			}
		}
	}

	return nil
}

// Close saves session cookies and shuts Chrome down.
func (c *BrowserConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser == nil {
		return nil
	}

	var errs []error
	if c.cfg.CookieFile != "" {
		cookies, err := c.browser.GetCookies()
		if err != nil {
			errs = append(errs, fmt.Errorf("browser: read cookies: %w", err))
		} else if err := SaveCookies(c.cfg.CookieFile, cookies); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("browser: close: %w", err))
	}
	c.browser = nil
	c.killLauncher()

	return errors.Join(errs...)
}

func (c *BrowserConnector) killLauncher() {
	if c.lnch != nil {
		c.lnch.Kill()
		c.lnch.Cleanup()
		c.lnch = nil
	}
}

// timelineScript collects the rendered posts of a profile timeline.
const timelineScript = `() => {
	const out = [];
	for (const article of document.querySelectorAll('article[data-testid="tweet"]')) {
		const time = article.querySelector('time');
		const link = time ? time.closest('a') : null;
		const text = article.querySelector('div[data-testid="tweetText"]');
		out.push({
			href: link ? link.getAttribute('href') : '',
			datetime: time ? time.getAttribute('datetime') : '',
			text: text ? text.innerText : '',
		});
	}
	return JSON.stringify(out);
}`

// RecentPosts implements PostSource.
func (c *BrowserConnector) RecentPosts(ctx context.Context, account string, limit int) ([]models.RawPost, error) {
	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()

	page, err := stealth.Page(b)
	if err != nil {
		return nil, NewRetryableError(fmt.Errorf("browser: create tab: %w", err))
	}
	defer page.Close()

	profileURL := strings.ReplaceAll(c.cfg.ProfileURL, "{account}", strings.TrimPrefix(account, "@"))
	p := page.Context(navCtx)

	if err := p.Navigate(profileURL); err != nil {
		return nil, NewRetryableError(fmt.Errorf("browser: navigate %s: %w", profileURL, err))
	}
	if err := p.WaitLoad(); err != nil {
		c.cfg.Logger.Warn("browser: wait load timeout", "url", profileURL, "error", err)
	}

	// The timeline is rendered client side.
	if _, err := p.Element(`article[data-testid="tweet"]`); err != nil {
		return nil, fmt.Errorf("browser: timeline did not render: %w", err)
	}

	res, err := p.Eval(timelineScript)
	if err != nil {
		return nil, fmt.Errorf("browser: read timeline: %w", err)
	}

	return parseTimeline(res.Value.Str(), limit)
}

type timelineEntry struct {
	Href     string `json:"href"`
	Datetime string `json:"datetime"`
	Text     string `json:"text"`
}

// parseTimeline decodes the timeline script output. Entries without a status
// link (promoted content, placeholders) are dropped; a repeated status keeps
// its first position.
func parseTimeline(raw string, limit int) ([]models.RawPost, error) {
	var entries []timelineEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("browser: decode timeline: %w", err)
	}

	posts := make([]models.RawPost, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		if limit > 0 && len(posts) >= limit {
			break
		}

		m := statusIDRE.FindStringSubmatch(e.Href)
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true

		ts, err := time.Parse(time.RFC3339, e.Datetime)
		if err != nil {
			ts = time.Now()
		}

		posts = append(posts, models.RawPost{
			ID:        models.PostID(m[1]),
			Timestamp: ts.UTC(),
			Text:      e.Text,
		})
	}

	return posts, nil
}

// LoadCookies reads a cookie file written by SaveCookies. A missing file
// yields no cookies and no error.
func LoadCookies(path string) ([]*proto.NetworkCookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	return cookies, nil
}

// SaveCookies writes cookies to path atomically with owner-only permissions.
func SaveCookies(path string, cookies []*proto.NetworkCookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cookies-*")
	if err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save cookies: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("save cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}
