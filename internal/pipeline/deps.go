package pipeline

import (
	"context"
	"time"

	"github.com/emersion/go-imap/v2"

	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/mailbox"
	"jobtrack-engine/internal/mailer"
)

// One mailbox session, dial to ack, gets this much wall clock. The dial
// watchdog closes the connection when the deadline hits.
const imapSessionTimeout = 2 * time.Minute

// AlertSource is one mailbox read. Open buys a live session; the batch
// stays open until Close so acks land on the same connection that
// fetched the messages.
type AlertSource interface {
	Open(ctx context.Context) (AlertBatch, error)
}

type AlertBatch interface {
	Alerts(ctx context.Context) ([]mailbox.Alert, error)
	Ack(uids []imap.UID) error
	Close()
}

// NewIMAPSource wraps the IMAP reader as an AlertSource.
func NewIMAPSource(r *mailbox.Reader) AlertSource {
	return imapSource{r: r}
}

type imapSource struct {
	r *mailbox.Reader
}

func (s imapSource) Open(ctx context.Context) (AlertBatch, error) {
	// The deadline context must outlive Open: Connect ties the
	// connection to it, and the batch keeps using that connection.
	sctx, cancel := context.WithTimeout(ctx, imapSessionTimeout)
	sess, err := s.r.Connect(sctx)
	if err != nil {
		cancel()
		return nil, err
	}
	return imapBatch{s: sess, cancel: cancel}, nil
}

type imapBatch struct {
	s      *mailbox.Session
	cancel context.CancelFunc
}

func (b imapBatch) Alerts(ctx context.Context) ([]mailbox.Alert, error) {
	return b.s.FetchAlerts(ctx)
}

func (b imapBatch) Ack(uids []imap.UID) error { return b.s.MarkProcessed(uids) }

func (b imapBatch) Close() {
	b.s.Close()
	b.cancel()
}

// JobEnricher fills missing posting fields from the public job page.
// *scrape.Enricher satisfies it.
type JobEnricher interface {
	Hydrate(ctx context.Context, p *domain.JobPosting) error
}

// SheetWriter regenerates the workbook file from the full ledger.
type SheetWriter interface {
	Write(path string, jobs []domain.JobPosting) error
}

// SheetWriterFunc adapts a plain function, http.HandlerFunc style.
type SheetWriterFunc func(path string, jobs []domain.JobPosting) error

func (f SheetWriterFunc) Write(path string, jobs []domain.JobPosting) error {
	return f(path, jobs)
}

// ReportSender mails the cycle report. *mailer.Service satisfies it.
type ReportSender interface {
	SendRunReport(ctx context.Context, prefix, workbookPath string, sum mailer.RunSummary) error
}
