package discovery

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coolbeans/lagen/pkg/resolver"
	"github.com/coolbeans/lagen/pkg/sfs"
)

// Pass names the part of a run an identifier was visited in.
type Pass string

const (
	// PassRevisit is the retry of identifiers queued by earlier runs.
	PassRevisit Pass = "revisit"
	// PassForward is the forward scan from the cursor.
	PassForward Pass = "forward"
)

// ReportItem is the outcome for one visited identifier.
type ReportItem struct {
	Identifier sfs.Identifier   `json:"sfs"`
	Pass       Pass             `json:"pass"`
	Status     resolver.Status  `json:"status"`
	BaseActs   []sfs.Identifier `json:"base_acts,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Report contains the results and statistics of one discovery run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// FinalPhase is the phase the forward scan ended in.
	FinalPhase Phase `json:"final_phase"`

	TotalResolved int `json:"total_resolved"`
	TotalStale    int `json:"total_stale"`
	TotalNotFound int `json:"total_not_found"`
	TotalFailed   int `json:"total_failed"`
	TotalSkipped  int `json:"total_skipped"`

	// NextIdentifier and Revisit mirror the state returned by the run.
	NextIdentifier sfs.Identifier   `json:"next_sfsnr"`
	Revisit        []sfs.Identifier `json:"revisit"`

	Items []*ReportItem `json:"items"`
}

// NewReport creates an empty report for a run.
func NewReport(runID string, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: startedAt,
		Items:     make([]*ReportItem, 0),
	}
}

// Record adds the outcome of one identifier to the report.
func (report *Report) Record(pass Pass, outcome resolver.Outcome) {
	item := &ReportItem{
		Identifier: outcome.Identifier,
		Pass:       pass,
		Status:     outcome.Status,
		BaseActs:   outcome.BaseActs,
	}
	if outcome.Err != nil {
		item.Error = outcome.Err.Error()
	}
	report.Items = append(report.Items, item)

	switch outcome.Status {
	case resolver.StatusResolved:
		report.TotalResolved++
	case resolver.StatusStale:
		report.TotalStale++
	case resolver.StatusNotFound:
		report.TotalNotFound++
	case resolver.StatusNonCanonical:
		report.TotalSkipped++
	default:
		report.TotalFailed++
	}
}

// Finish records how the run ended.
func (report *Report) Finish(phase Phase, state State, finishedAt time.Time) {
	report.FinalPhase = phase
	report.NextIdentifier = state.NextIdentifier
	report.Revisit = state.Revisit
	report.FinishedAt = finishedAt
}

// Identifiers returns the identifiers visited in pass with the given status,
// in visiting order.
func (report *Report) Identifiers(pass Pass, status resolver.Status) []sfs.Identifier {
	var identifiers []sfs.Identifier
	for _, item := range report.Items {
		if item.Pass == pass && item.Status == status {
			identifiers = append(identifiers, item.Identifier)
		}
	}
	return identifiers
}

// Format returns the report in the specified format (table or json).
func (report *Report) Format(outputFormat string) string {
	switch strings.ToLower(outputFormat) {
	case "json":
		return report.formatJSON()
	default:
		return report.formatTable()
	}
}

func (report *Report) formatTable() string {
	var builder strings.Builder

	builder.WriteString("=== Discovery Report ===\n\n")
	builder.WriteString(fmt.Sprintf("Run:        %s\n", report.RunID))
	builder.WriteString(fmt.Sprintf("Ended in:   %s\n", report.FinalPhase))
	builder.WriteString(fmt.Sprintf("Resolved:   %d\n", report.TotalResolved))
	builder.WriteString(fmt.Sprintf("Stale:      %d\n", report.TotalStale))
	builder.WriteString(fmt.Sprintf("Not found:  %d\n", report.TotalNotFound))
	builder.WriteString(fmt.Sprintf("Failed:     %d\n", report.TotalFailed))
	builder.WriteString(fmt.Sprintf("Skipped:    %d\n", report.TotalSkipped))
	builder.WriteString(fmt.Sprintf("Next:       %s\n", report.NextIdentifier))
	builder.WriteString(fmt.Sprintf("Revisit:    %d queued\n", len(report.Revisit)))

	if len(report.Items) > 0 {
		builder.WriteString("\nIdentifiers:\n")
		builder.WriteString(fmt.Sprintf("  %-14s %-8s %-14s %s\n", "SFS", "Pass", "Status", "Detail"))
		builder.WriteString(fmt.Sprintf("  %-14s %-8s %-14s %s\n", "---", "----", "------", "------"))
		for _, item := range report.Items {
			detail := item.Error
			if detail == "" && len(item.BaseActs) > 0 {
				baseTexts := make([]string, len(item.BaseActs))
				for index, base := range item.BaseActs {
					baseTexts[index] = base.String()
				}
				detail = "base " + strings.Join(baseTexts, ", ")
			}
			builder.WriteString(fmt.Sprintf("  %-14s %-8s %-14s %s\n", item.Identifier, item.Pass, item.Status, detail))
		}
	}

	return builder.String()
}

func (report *Report) formatJSON() string {
	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(reportJSON)
}
