package types

// Candidate is one visible post as reported by a document scan. Revealed
// and HasOverlay reflect browser-side state so the tracker can resynchronize
// with reveal actions that happened in the page.
type Candidate struct {
	ID         string
	Revealed   bool
	HasOverlay bool
}

// Classification is the terminal state of a post's classification pass.
type Classification int

const (
	// Unprocessed means the post has not completed a pass yet.
	Unprocessed Classification = iota
	// ExcludedCovered means the post matched an exclusion prompt and is
	// concealed behind an overlay.
	ExcludedCovered
	// NotExcluded means the post matched no exclusion prompt.
	NotExcluded
	// ErrorAPIKey means classification was impossible because no
	// credential is configured.
	ErrorAPIKey
	// ErrorInvalidResponse means the analyzer gave no usable answer.
	ErrorInvalidResponse
)

func (c Classification) String() string {
	switch c {
	case Unprocessed:
		return "unprocessed"
	case ExcludedCovered:
		return "excluded-covered"
	case NotExcluded:
		return "not-excluded"
	case ErrorAPIKey:
		return "error-api-key"
	case ErrorInvalidResponse:
		return "error-invalid-response"
	default:
		return "unknown"
	}
}
