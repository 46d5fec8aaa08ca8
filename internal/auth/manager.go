// Package auth manages the x.com session the feed filter runs under: an
// interactive login flow through a visible browser, and cookie persistence
// between runs.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/cleanfeed/internal/browser"
)

// loginTimeout is how long the user gets to complete the interactive login.
const loginTimeout = 5 * time.Minute

// Manager handles X.com authentication
type Manager struct {
	cookieStore *CookieStore
	log         *slog.Logger
}

// NewManager creates a new auth manager
func NewManager(cookieStore *CookieStore, log *slog.Logger) *Manager {
	return &Manager{cookieStore: cookieStore, log: log}
}

// IsAuthenticated checks if valid session cookies are stored.
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid()
}

// Login opens a visible browser window for the user to log in to X.com
// and persists the resulting session cookies.
func (m *Manager) Login(ctx context.Context) error {
	opts := browser.Options(false) // headful; the user drives this

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate("https://x.com/login")); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}

	m.log.Info("waiting for login to complete in the browser window")
	if err := m.waitForLogin(browserCtx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cookies, err := extractCookies(browserCtx)
	if err != nil {
		return fmt.Errorf("failed to extract cookies: %w", err)
	}

	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}

	m.log.Info("login successful, session cookies saved")
	return nil
}

// waitForLogin polls until the browser lands on the home page with an
// auth_token cookie present.
func (m *Manager) waitForLogin(ctx context.Context) error {
	timeout := time.After(loginTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("login timeout exceeded")
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if url != "https://x.com/home" && url != "https://twitter.com/home" {
				continue
			}
			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			for _, c := range cookies {
				if c.Name == "auth_token" && c.Value != "" {
					return nil
				}
			}
		}
	}
}

// extractCookies gets all cookies from the browser
func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie

	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)

	return cookies, err
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// Cookies returns the stored x.com cookies for the feed session.
func (m *Manager) Cookies() ([]*network.Cookie, error) {
	return m.cookieStore.SiteCookies()
}
