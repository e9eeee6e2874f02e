package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"reformagkh/pkg/utils"
)

// transientMarkers are gateway error pages served with a 200 status.
var transientMarkers = []string{"Time-out", "502 Bad Gateway"}

// CheckPage rejects empty documents and transient gateway error pages.
func CheckPage(doc *goquery.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: empty page", utils.ErrExtractionFailed)
	}
	text := doc.Text()
	if strings.TrimSpace(text) == "" && doc.Find("body").Children().Length() == 0 {
		return fmt.Errorf("%w: empty page", utils.ErrExtractionFailed)
	}
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return fmt.Errorf("%w: transient error page (%s)", utils.ErrExtractionFailed, marker)
		}
	}
	return nil
}
