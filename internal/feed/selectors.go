package feed

// X.com DOM selectors
// These are isolated here because X changes their DOM frequently
// Update these when scanning breaks

const (
	// Feed selectors
	FeedContainer = `[data-testid="primaryColumn"]`
	PostArticle   = `article[data-testid="tweet"]`

	// Post content selectors
	PostText = `[data-testid="tweetText"]`
	PostLink = `a[href*="/status/"]`

	// Overlay markup owned by this process
	OverlayClass      = `cleanfeed-overlay`
	RevealedAttr      = `cleanfeedRevealed` // element dataset key
	RevealButtonClass = `cleanfeed-reveal-button`
)

// Common wait conditions
const (
	WaitForFeed = FeedContainer
)
