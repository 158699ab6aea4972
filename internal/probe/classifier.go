package probe

import (
	"net/http"
	"strings"

	"github.com/zulandar/flightcheck/internal/models"
)

// ResponseClassifier maps a raw probe result to a build status. Classifiers
// must be pure: same input, same status, no side effects. A nil result means
// the exchange did not complete.
type ResponseClassifier interface {
	Classify(res *Result) string
}

// redirectKeywords flag redirect targets that mean the invite is gone.
var redirectKeywords = []string{"expired", "unavailable"}

// KeywordClassifier is the primary strategy: it inspects the page body of a
// 200 response for availability keywords. More fragile than a structured
// check (it depends on upstream page text) but it is the only signal the
// invite page exposes.
type KeywordClassifier struct{}

// Classify implements the decision table, first match wins:
//
//	no exchange                  -> ERROR
//	200 + expired keywords       -> EXPIRED
//	200 + availability keywords  -> ACTIVE
//	200 + capacity keywords      -> ACTIVE (full but still live)
//	200, nothing matched         -> NOT_FOUND (status unclear)
//	404                          -> NOT_FOUND
//	3xx                          -> EXPIRED if Location names expiry, else ACTIVE
//	anything else                -> ERROR
func (KeywordClassifier) Classify(res *Result) string {
	if res == nil {
		return models.StatusError
	}

	switch {
	case res.StatusCode == http.StatusOK:
		body := strings.ToLower(res.Body)
		switch {
		// Expiry wording beats availability wording: an expired page can
		// still carry TestFlight boilerplate mentioning the app name.
		case strings.Contains(body, "expired") || strings.Contains(body, "no longer available"):
			return models.StatusExpired
		case strings.Contains(body, "start testing") || strings.Contains(body, "open in testflight"):
			return models.StatusActive
		case strings.Contains(body, "full") || strings.Contains(body, "capacity"):
			return models.StatusActive
		default:
			// Page loaded but said nothing recognizable. Low confidence,
			// not an assertion the build was removed.
			return models.StatusNotFound
		}
	case res.StatusCode == http.StatusNotFound:
		return models.StatusNotFound
	case res.StatusCode >= 300 && res.StatusCode < 400:
		return classifyRedirect(res.RedirectLocation)
	default:
		return models.StatusError
	}
}

// RedirectClassifier is the fallback strategy for deployments that must not
// download page bodies: it decides on status code and Location header alone.
// Less precise than KeywordClassifier — a 200 is taken as ACTIVE on faith.
type RedirectClassifier struct{}

// Classify maps status code and redirect target to a build status.
func (RedirectClassifier) Classify(res *Result) string {
	if res == nil {
		return models.StatusError
	}

	switch {
	case res.StatusCode == http.StatusOK:
		return models.StatusActive
	case res.StatusCode == http.StatusNotFound:
		return models.StatusNotFound
	case res.StatusCode >= 300 && res.StatusCode < 400:
		return classifyRedirect(res.RedirectLocation)
	default:
		return models.StatusError
	}
}

// classifyRedirect treats a redirect to an expiry page as EXPIRED and any
// other redirect as presumptively ACTIVE.
func classifyRedirect(location string) string {
	loc := strings.ToLower(location)
	for _, kw := range redirectKeywords {
		if strings.Contains(loc, kw) {
			return models.StatusExpired
		}
	}
	return models.StatusActive
}

// ForName returns the classifier registered under name, defaulting to the
// keyword strategy.
func ForName(name string) ResponseClassifier {
	if name == "redirect" {
		return RedirectClassifier{}
	}
	return KeywordClassifier{}
}
