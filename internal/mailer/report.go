package mailer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jobtrack-engine/internal/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RunSummary is what a finished cycle reports to the recipient.
type RunSummary struct {
	When    time.Time
	Fetched int // alert emails scanned
	Added   int // new postings this cycle
	Total   int // postings tracked overall
	ByTier  map[int]int
}

// Subject formats the report subject with the cycle timestamp.
func Subject(prefix string, when time.Time) string {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Job Tracker"
	}
	return fmt.Sprintf("%s - %s", prefix, when.Format("2006-01-02 15:04"))
}

// BuildReportBodies renders the plain and HTML variants of the summary.
func BuildReportBodies(sum RunSummary) (textBody, htmlBody string) {
	t1 := sum.ByTier[domain.TierHigh]
	t2 := sum.ByTier[domain.TierMedium]
	t3 := sum.ByTier[domain.TierDefault]

	var text strings.Builder
	fmt.Fprintf(&text, "New postings this cycle: %d\n", sum.Added)
	fmt.Fprintf(&text, "Alert emails scanned: %d\n", sum.Fetched)
	fmt.Fprintf(&text, "Tracked overall: %d\n\n", sum.Total)
	fmt.Fprintf(&text, "Tier 1 (high priority): %d\n", t1)
	fmt.Fprintf(&text, "Tier 2: %d\n", t2)
	fmt.Fprintf(&text, "Tier 3: %d\n\n", t3)
	text.WriteString("The full spreadsheet is attached.\n")

	var html strings.Builder
	html.WriteString("<html><body>")
	fmt.Fprintf(&html, "<p>New postings this cycle: <b>%d</b><br>", sum.Added)
	fmt.Fprintf(&html, "Alert emails scanned: %d<br>", sum.Fetched)
	fmt.Fprintf(&html, "Tracked overall: %d</p>", sum.Total)
	html.WriteString(`<table border="1" cellpadding="4" cellspacing="0">`)
	html.WriteString("<tr><th>Tier</th><th>Tracked</th></tr>")
	fmt.Fprintf(&html, "<tr><td>1 (high priority)</td><td>%d</td></tr>", t1)
	fmt.Fprintf(&html, "<tr><td>2</td><td>%d</td></tr>", t2)
	fmt.Fprintf(&html, "<tr><td>3</td><td>%d</td></tr>", t3)
	html.WriteString("</table>")
	html.WriteString("<p>The full spreadsheet is attached.</p>")
	html.WriteString("</body></html>")

	return text.String(), html.String()
}

// SendRunReport mails the workbook with the cycle summary attached.
func (s *Service) SendRunReport(ctx context.Context, prefix, workbookPath string, sum RunSummary) error {
	content, err := os.ReadFile(workbookPath)
	if err != nil {
		return fmt.Errorf("mailer: read workbook: %w", err)
	}

	textBody, htmlBody := BuildReportBodies(sum)
	att := Attachment{
		Filename:    filepath.Base(workbookPath),
		ContentType: xlsxContentType,
		Content:     content,
	}

	return s.Send(ctx, Subject(prefix, sum.When), htmlBody, textBody, []Attachment{att})
}
