package feed

import "fmt"

// installJS runs once after navigation: overlay styles plus a
// MutationObserver that bumps a counter whenever nodes are added anywhere
// under body. The watcher polls that counter instead of receiving DOM
// events, which keeps the observation mechanism entirely in the page.
var installJS = fmt.Sprintf(`
	(function() {
		if (window.__cleanfeedInstalled) { return; }
		window.__cleanfeedInstalled = true;
		window.__cleanfeedMutations = 0;

		const style = document.createElement('style');
		style.textContent =
			'.%[1]s { position: absolute; inset: 0; z-index: 10;' +
			' background: rgba(15, 20, 25, 0.97); color: #e7e9ea; display: flex;' +
			' flex-direction: column; align-items: center; justify-content: center;' +
			' gap: 12px; text-align: center; padding: 16px; }' +
			'.%[2]s { background: #1d9bf0; color: #fff; border: none;' +
			' border-radius: 9999px; padding: 8px 16px; font-weight: 700; cursor: pointer; }';
		document.head.appendChild(style);

		const observer = new MutationObserver((mutations) => {
			for (const m of mutations) {
				if (m.type === 'childList' && m.addedNodes.length > 0) {
					window.__cleanfeedMutations++;
					break;
				}
			}
		});
		observer.observe(document.body, { childList: true, subtree: true });
	})()
`, OverlayClass, RevealButtonClass)

// scanJS lists every post article currently in the document with its
// browser-side state.
var scanJS = fmt.Sprintf(`
	(function() {
		const articles = document.querySelectorAll('%[1]s');
		const results = [];

		articles.forEach(el => {
			const statusLink = el.querySelector('%[2]s');
			const id = statusLink?.href?.match(/status\/(\d+)/)?.[1];
			if (!id) return;

			results.push({
				id,
				revealed: el.dataset.%[3]s === 'true',
				overlay: el.querySelector('.%[4]s') !== null,
			});
		});

		return results;
	})()
`, PostArticle, PostLink, RevealedAttr, OverlayClass)

// findArticleJS locates a post's article element by status ID. Post IDs
// come out of scanJS's \d+ match, so interpolating them is safe.
func findArticleJS(id string) string {
	return fmt.Sprintf(`
		const link = document.querySelector('a[href*="/status/%s"]');
		const el = link ? link.closest('%s') : null;
	`, id, PostArticle)
}

// extractTextJS pulls visible text from the post's text container,
// concatenating text nodes and non-link element text. Hyperlink text is
// excluded so t.co noise and mentions don't skew classification.
func extractTextJS(id string) string {
	return fmt.Sprintf(`
		(function() {
			%s
			if (!el) return { found: false, text: '' };

			const textEl = el.querySelector('%s');
			if (!textEl) return { found: false, text: '' };

			let visible = '';
			textEl.childNodes.forEach((node) => {
				if (node.nodeType === Node.TEXT_NODE) {
					visible += node.textContent;
				} else if (node.nodeType === Node.ELEMENT_NODE && node.tagName !== 'A') {
					visible += node.textContent;
				}
			});

			return { found: true, text: visible.trim() };
		})()
	`, findArticleJS(id), PostText)
}

// applyOverlayJS conceals the post. The reveal handler lives in the page:
// clicking it marks the element revealed and removes the overlay without a
// round trip, and the tracker picks the flag up on the next scan.
func applyOverlayJS(id string) string {
	return fmt.Sprintf(`
		(function() {
			%[1]s
			if (!el) return 'gone';
			if (el.dataset.%[2]s === 'true') return 'revealed';
			if (el.querySelector('.%[3]s')) return 'present';

			el.style.position = 'relative';

			const overlay = document.createElement('div');
			overlay.classList.add('%[3]s');

			const message = document.createElement('p');
			message.textContent = 'This post was hidden by cleanfeed as it matched one of your exclusion criteria.';

			const reveal = document.createElement('button');
			reveal.classList.add('%[4]s');
			reveal.textContent = 'Show post anyway';
			reveal.addEventListener('click', (event) => {
				event.stopPropagation();
				el.dataset.%[2]s = 'true';
				overlay.remove();
				el.style.position = '';
			});

			overlay.appendChild(message);
			overlay.appendChild(reveal);
			el.appendChild(overlay);
			return 'added';
		})()
	`, findArticleJS(id), RevealedAttr, OverlayClass, RevealButtonClass)
}

// removeOverlayJS uncovers the post and clears the reveal flag, so a
// future reclassification as excluded would cover it again.
func removeOverlayJS(id string) string {
	return fmt.Sprintf(`
		(function() {
			%[1]s
			if (!el) return 'gone';

			const overlay = el.querySelector('.%[2]s');
			if (overlay) {
				overlay.remove();
				el.style.position = '';
			}
			delete el.dataset.%[3]s;
			return 'removed';
		})()
	`, findArticleJS(id), OverlayClass, RevealedAttr)
}

// markJS sets the post's border, used for the two error markers and for
// clearing them.
func markJS(id, border string) string {
	return fmt.Sprintf(`
		(function() {
			%s
			if (!el) return 'gone';
			el.style.border = '%s';
			return 'marked';
		})()
	`, findArticleJS(id), border)
}
