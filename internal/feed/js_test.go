package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindArticleJSInterpolatesID(t *testing.T) {
	js := findArticleJS("1234567890")
	assert.Contains(t, js, `/status/1234567890`)
	assert.Contains(t, js, `article[data-testid="tweet"]`)
}

func TestExtractTextJSExcludesLinks(t *testing.T) {
	js := extractTextJS("1")
	assert.Contains(t, js, `tweetText`)
	assert.Contains(t, js, `node.tagName !== 'A'`)
	assert.Contains(t, js, `found: false`)
}

func TestApplyOverlayJSRespectsRevealFlag(t *testing.T) {
	js := applyOverlayJS("1")
	assert.Contains(t, js, `cleanfeedRevealed === 'true'`)
	assert.Contains(t, js, `return 'revealed'`)
	assert.Contains(t, js, `return 'present'`)
	assert.Contains(t, js, OverlayClass)
	assert.Contains(t, js, "Show post anyway")
}

func TestRemoveOverlayJSClearsRevealFlag(t *testing.T) {
	js := removeOverlayJS("1")
	assert.Contains(t, js, `delete el.dataset.cleanfeedRevealed`)
}

func TestMarkJS(t *testing.T) {
	js := markJS("1", "1px solid orange")
	assert.Contains(t, js, "el.style.border = '1px solid orange'")

	cleared := markJS("1", "none")
	assert.Contains(t, cleared, "el.style.border = 'none'")
}

func TestScriptsUseSharedSelectors(t *testing.T) {
	assert.Contains(t, scanJS, PostArticle)
	assert.Contains(t, scanJS, PostLink)
	assert.Contains(t, scanJS, "dataset."+RevealedAttr)
	assert.Contains(t, extractTextJS("1"), PostText)
	assert.Contains(t, installJS, RevealButtonClass)
}

func TestInstallJSIsIdempotent(t *testing.T) {
	assert.Contains(t, installJS, "__cleanfeedInstalled")
	assert.Contains(t, installJS, "__cleanfeedMutations")
	assert.Equal(t, 1, strings.Count(installJS, "new MutationObserver"))
}
