// Package feed binds the classification pipeline to a live x.com timeline
// rendered in a chromedp-driven browser. It is the only package that knows
// the page's markup: candidate discovery, text extraction, the concealment
// overlay, and the mutation counter all live here.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/cleanfeed/internal/browser"
	"github.com/ibeckermayer/cleanfeed/internal/types"
)

const homeURL = "https://x.com/home"

// navigateTimeout bounds the initial load of the home timeline.
const navigateTimeout = 2 * time.Minute

// Session is a long-lived browser session on the home timeline. It
// implements the tracker's Surface and Extractor interfaces and the
// watcher's mutation source.
type Session struct {
	browserCtx context.Context
	cancels    []context.CancelFunc
	log        *slog.Logger
}

// NewSession launches a browser, injects the stored session cookies,
// navigates to the home timeline, and installs the overlay styles and the
// mutation observer. The caller owns Close.
func NewSession(ctx context.Context, headless bool, cookies []*network.Cookie, log *slog.Logger) (*Session, error) {
	opts := browser.Options(headless)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{browserCancel, allocCancel},
		log:        log,
	}

	if err := s.injectCookies(cookies); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to inject cookies: %w", err)
	}

	navCtx, cancel := context.WithTimeout(browserCtx, navigateTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(homeURL),
		chromedp.WaitVisible(WaitForFeed, chromedp.ByQuery),
	); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load home timeline (session expired?): %w", err)
	}

	if err := chromedp.Run(browserCtx, chromedp.Evaluate(installJS, nil)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to install page hooks: %w", err)
	}

	log.Info("feed session ready", "url", homeURL)
	return s, nil
}

// Close tears down the browser.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}

// injectCookies sets cookies in the browser context
func (s *Session) injectCookies(cookies []*network.Cookie) error {
	return chromedp.Run(s.browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		}),
	)
}

// rawCandidate is the JSON bridge for one visible post.
type rawCandidate struct {
	ID       string `json:"id"`
	Revealed bool   `json:"revealed"`
	Overlay  bool   `json:"overlay"`
}

// Candidates returns every post currently in the document, with its
// browser-side reveal and overlay state.
func (s *Session) Candidates(ctx context.Context) ([]types.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []rawCandidate
	if err := chromedp.Run(s.browserCtx, chromedp.Evaluate(scanJS, &raw)); err != nil {
		return nil, fmt.Errorf("failed to scan timeline: %w", err)
	}

	candidates := make([]types.Candidate, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			continue
		}
		candidates = append(candidates, types.Candidate{
			ID:         r.ID,
			Revealed:   r.Revealed,
			HasOverlay: r.Overlay,
		})
	}
	return candidates, nil
}

// extractResult is the JSON bridge for a text extraction.
type extractResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

// ExtractText pulls the visible text out of a post, excluding hyperlink
// text. ok is false when the post or its text container is gone.
func (s *Session) ExtractText(ctx context.Context, id string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}

	var res extractResult
	if err := chromedp.Run(s.browserCtx, chromedp.Evaluate(extractTextJS(id), &res)); err != nil {
		s.log.Warn("text extraction failed", "post", id, "error", err)
		return "", false
	}
	return res.Text, res.Found
}

// ApplyOverlay conceals a post behind the reveal overlay. It is
// idempotent: a post that is already covered, already revealed by the
// user, or no longer in the document is left alone.
func (s *Session) ApplyOverlay(ctx context.Context, id string) error {
	return s.runEffect(ctx, id, applyOverlayJS(id))
}

// RemoveOverlay removes the overlay (if any) and clears the browser-side
// reveal flag.
func (s *Session) RemoveOverlay(ctx context.Context, id string) error {
	return s.runEffect(ctx, id, removeOverlayJS(id))
}

// MarkAPIKeyMissing applies the missing-credential border marker.
func (s *Session) MarkAPIKeyMissing(ctx context.Context, id string) error {
	return s.runEffect(ctx, id, markJS(id, "1px solid orange"))
}

// MarkInvalidResponse applies the no-usable-answer border marker.
func (s *Session) MarkInvalidResponse(ctx context.Context, id string) error {
	return s.runEffect(ctx, id, markJS(id, "1px solid purple"))
}

// ClearMarkers removes any border marker.
func (s *Session) ClearMarkers(ctx context.Context, id string) error {
	return s.runEffect(ctx, id, markJS(id, "none"))
}

func (s *Session) runEffect(ctx context.Context, id, js string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var outcome string
	if err := chromedp.Run(s.browserCtx, chromedp.Evaluate(js, &outcome)); err != nil {
		return fmt.Errorf("effect on post %s failed: %w", id, err)
	}
	if outcome == "gone" {
		// The element was removed while a verdict was in flight. Nothing
		// to do; the next scan forgets the post.
		s.log.Debug("post element gone, skipping effect", "post", id)
	}
	return nil
}

// MutationCount returns the page's structural-change counter, maintained
// by the installed MutationObserver.
func (s *Session) MutationCount(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64
	if err := chromedp.Run(s.browserCtx, chromedp.Evaluate(`window.__cleanfeedMutations || 0`, &count)); err != nil {
		return 0, fmt.Errorf("failed to read mutation counter: %w", err)
	}
	return count, nil
}
