package consolidate

import (
	"time"

	"github.com/coolbeans/lagen/pkg/register"
	"github.com/coolbeans/lagen/pkg/storage"
)

// resolveIssued picks the issuance date of a consolidated act. The rules are
// tried in order and the first that applies wins:
//
//  1. a chain of exactly one row (the unamended act) and a declared
//     enactment date: that date;
//  2. the chronologically last chain row declares an issued date: that date;
//  3. the date the fetched text last changed, from the document entry.
//
// The third rule is an approximation. When there is no document entry either,
// fallback is used and the caller is told so by the false result.
func resolveIssued(chain []register.ChainEntry, enactedOn *time.Time, entry *storage.DocumentEntry, fallback time.Time) (time.Time, IssuedMethod, bool) {
	if len(chain) == 1 && enactedOn != nil {
		return dateOnly(*enactedOn), IssuedFromEnactment, true
	}

	if last := lastChainEntry(chain); last != nil && last.Issued != nil {
		return dateOnly(*last.Issued), IssuedFromLastAmendment, true
	}

	if entry != nil && !entry.OrigUpdated.IsZero() {
		return dateOnly(entry.OrigUpdated), IssuedFromFetchDate, true
	}
	return dateOnly(fallback), IssuedFromFetchDate, false
}

func lastChainEntry(chain []register.ChainEntry) *register.ChainEntry {
	var last *register.ChainEntry
	for index := range chain {
		if last == nil || last.Identifier.Before(chain[index].Identifier) {
			last = &chain[index]
		}
	}
	return last
}

func dateOnly(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}
