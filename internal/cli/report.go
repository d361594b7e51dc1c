package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/orderproof/internal/model"
)

// FormatSummary renders the end-of-run report.
func FormatSummary(summary *model.RunSummary) string {
	if summary == nil {
		return FormatWarning("No run summary available")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Orders seen:     %d\n", summary.Seen)
	fmt.Fprintf(&b, "Matched:         %d\n", summary.Matched)
	fmt.Fprintf(&b, "Skipped:         %d\n", summary.Skipped)
	fmt.Fprintf(&b, "Captured:        %d\n", summary.Captured)
	fmt.Fprintf(&b, "Published:       %d (%d uploaded, %d reused)\n",
		summary.Published, summary.Uploaded, summary.Published-summary.Uploaded)
	fmt.Fprintf(&b, "Reconciled:      %d (%d inserted, %d updated, %d unchanged)",
		summary.Reconciled, summary.Inserted, summary.Updated, summary.Unchanged)

	if !summary.FinishedAt.IsZero() {
		elapsed := summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second)
		b.WriteString("\n" + SubtleStyle.Render(fmt.Sprintf("Run %s took %s", summary.RunID, elapsed)))
	}

	if failed := summary.Failed(); failed > 0 {
		b.WriteString("\n\n" + FormatError(fmt.Sprintf("%d order(s) failed", failed)))
		for _, stage := range model.Stages() {
			if n := summary.FailedByStage[stage]; n > 0 {
				fmt.Fprintf(&b, "\n  %s: %d", stage, n)
			}
		}
		for _, f := range summary.Failures {
			id := f.OrderID
			if id == "" {
				id = "(unknown)"
			}
			b.WriteString("\n" + SubtleStyle.Render(fmt.Sprintf("  %s [%s] %s", id, f.Stage, f.Error)))
		}
	}

	return RenderBox(ChartIcon+" Run Summary", b.String())
}

// FormatLedger renders ledger rows as a table, header first.
func FormatLedger(rows [][]string) string {
	if len(rows) == 0 {
		return FormatInfo("Ledger is empty")
	}
	header, body := rows[0], rows[1:]
	if len(body) == 0 {
		return RenderBox(LedgerIcon+" Ledger", renderTable(header, nil)+"\n"+SubtleStyle.Render("no rows"))
	}
	return RenderBox(LedgerIcon+" Ledger", renderTable(header, body))
}

// FormatRuns renders the run history, newest first as given.
func FormatRuns(runs []model.RunRecord) string {
	if len(runs) == 0 {
		return FormatInfo("No runs recorded yet")
	}

	header := []string{"started", "status", "matched", "reconciled", "failed", "duration", "run"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			styleStatus(run.Status),
			fmt.Sprint(run.Matched),
			fmt.Sprint(run.Reconciled),
			fmt.Sprint(run.Failed),
			duration,
			run.ID,
		})
	}

	return RenderBox(ChartIcon+" Recent Runs", renderTable(header, rows))
}

// FormatOrderEvents renders the per-order journal of one run.
func FormatOrderEvents(events []model.OrderEvent) string {
	if len(events) == 0 {
		return FormatInfo("No orders recorded for this run")
	}

	sorted := make([]model.OrderEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
	})

	header := []string{"order", "stage", "outcome", "detail"}
	rows := make([][]string, 0, len(sorted))
	for _, e := range sorted {
		detail := e.RemoteURL
		if e.Error != "" {
			detail = e.Error
		}
		rows = append(rows, []string{e.OrderID, string(e.Stage), e.Outcome, detail})
	}
	return renderTable(header, rows)
}

func styleStatus(status model.RunStatus) string {
	switch status {
	case model.RunCompleted:
		return SuccessStyle.Render(string(status))
	case model.RunFailed:
		return ErrorStyle.Render(string(status))
	default:
		return WarningStyle.Render(string(status))
	}
}
