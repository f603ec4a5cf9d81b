package register

import (
	"regexp"
	"strings"

	"github.com/coolbeans/lagen/pkg/sfs"
)

// ExtractionStrategy pulls base act identifiers out of a change-register page.
// An empty result means "this layout did not match", never an error.
type ExtractionStrategy struct {
	Name    string
	Extract func(page string, requested sfs.Identifier) []sfs.Identifier
}

// ChainStrategies is the ordered list tried against change-register pages;
// the first non-empty result wins. The register has served three layouts over
// the years without exposing a version, so each layout gets one strategy:
// the single-hit form field, then the multi-hit link list, then a raw scan of
// the page text.
var ChainStrategies = []ExtractionStrategy{
	{Name: "hidden-field", Extract: extractHiddenField},
	{Name: "anchor-text", Extract: extractAnchorText},
	{Name: "raw-scan", Extract: extractRawScan},
}

const hiddenFieldMarker = `<input type="hidden" name="BET" value="`

// extractHiddenField reads the base act from the search form the register
// embeds on single-hit pages: value="1998:204$".
func extractHiddenField(page string, _ sfs.Identifier) []sfs.Identifier {
	start := strings.Index(page, hiddenFieldMarker)
	if start < 0 {
		return nil
	}
	rest := page[start+len(hiddenFieldMarker):]
	end := strings.Index(rest, "$")
	if end < 0 {
		return nil
	}
	identifier, err := sfs.Parse(rest[:end])
	if err != nil {
		return nil
	}
	return []sfs.Identifier{identifier}
}

var reAnchorIdentifier = regexp.MustCompile(`>(\d+:[\d\w\. ]+)</a>`)

// extractAnchorText collects the link texts of multi-hit result lists. Acts
// amending several base acts at once (e.g. 2008:605) produce one link each.
func extractAnchorText(page string, _ sfs.Identifier) []sfs.Identifier {
	var found []sfs.Identifier
	for _, match := range reAnchorIdentifier.FindAllStringSubmatch(page, -1) {
		identifier, err := sfs.Parse(match[1])
		if err != nil {
			continue
		}
		found = appendUnique(found, identifier)
	}
	return found
}

var reBareIdentifier = regexp.MustCompile(`\b(\d{4}:\d+)\b`)

// extractRawScan is the last resort: every SFS number in the page text other
// than the one asked about.
func extractRawScan(page string, requested sfs.Identifier) []sfs.Identifier {
	text := sfs.PlainText([]byte(page))
	var found []sfs.Identifier
	for _, match := range reBareIdentifier.FindAllStringSubmatch(text, -1) {
		identifier, err := sfs.Parse(match[1])
		if err != nil || identifier.Compare(requested) == 0 {
			continue
		}
		found = appendUnique(found, identifier)
	}
	return found
}

// runStrategies applies strategies in order and reports which one matched.
func runStrategies(strategies []ExtractionStrategy, page string, requested sfs.Identifier) ([]sfs.Identifier, string) {
	for _, strategy := range strategies {
		if found := strategy.Extract(page, requested); len(found) > 0 {
			return found, strategy.Name
		}
	}
	return nil, ""
}

func appendUnique(identifiers []sfs.Identifier, candidate sfs.Identifier) []sfs.Identifier {
	for _, existing := range identifiers {
		if existing == candidate {
			return identifiers
		}
	}
	return append(identifiers, candidate)
}
