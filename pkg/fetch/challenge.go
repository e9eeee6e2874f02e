package fetch

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	challengeFormSelector = `form[name="request_limiter_captcha"]`
	challengeTextMarker   = "Каптча"
)

var challengeRawMarker = []byte("captcha")

// IsChallenge reports whether a page is the site's anti-bot interstitial rather than content.
// Text signatures only: false positives and negatives are possible.
func IsChallenge(doc *goquery.Document, raw []byte) bool {
	if doc != nil {
		if doc.Find(challengeFormSelector).Length() > 0 {
			return true
		}
		if strings.Contains(doc.Text(), challengeTextMarker) {
			return true
		}
	}
	return bytes.Contains(raw, challengeRawMarker)
}
