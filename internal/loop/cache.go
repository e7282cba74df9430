package loop

import "github.com/andresmejia3/guardian/internal/types"

// ResultCache holds the last analysis outcome drawn on every frame.
// The zero value is ready to use and holds the empty result.
type ResultCache struct {
	last types.AnalysisResult
}

// Apply stores the outcome of one analyzer call. A failed call clears the
// cache so stale boxes are never drawn; a successful call replaces it, even
// when no faces were found.
func (c *ResultCache) Apply(res types.AnalysisResult, err error) {
	switch {
	case err != nil:
		c.last = types.Empty()
	case res == nil:
		c.last = types.Empty()
	default:
		c.last = res
	}
}

// Current returns the cached result, never nil.
func (c *ResultCache) Current() types.AnalysisResult {
	if c.last == nil {
		return types.Empty()
	}
	return c.last
}
