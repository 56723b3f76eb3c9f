package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/phuslu/log"

	"jobtrack-engine/internal/config"
)

// linkedinFromFilter narrows the server-side search so we never touch (or
// mark) mail from anyone else. Alert detection proper happens per message.
const linkedinFromFilter = "linkedin.com"

// Reader holds everything needed to open a mailbox session.
type Reader struct {
	Addr         string // host:port, 993 assumed when port missing
	Username     string
	Password     string
	Folder       string
	LookbackDays int
	MaxMessages  int
	MarkSeen     bool
}

// NewReader builds a Reader from config plus the env contract.
func NewReader(cfg config.Config, e config.Env, password string) (*Reader, error) {
	if strings.TrimSpace(e.EmailAddress) == "" {
		return nil, fmt.Errorf("mailbox: EMAIL_ADDRESS not set")
	}
	if strings.TrimSpace(e.IMAPServer) == "" {
		return nil, fmt.Errorf("mailbox: IMAP_SERVER not set")
	}
	if password == "" {
		return nil, fmt.Errorf("mailbox: no password for %s", e.EmailAddress)
	}

	addr := strings.TrimSpace(e.IMAPServer)
	if !strings.Contains(addr, ":") {
		addr += ":993"
	}

	return &Reader{
		Addr:         addr,
		Username:     strings.TrimSpace(e.EmailAddress),
		Password:     password,
		Folder:       cfg.Mailbox.Folder,
		LookbackDays: cfg.Mailbox.LookbackDays,
		MaxMessages:  cfg.Mailbox.MaxMessages,
		MarkSeen:     cfg.Mailbox.MarkSeen,
	}, nil
}

// Alert is one job alert email plus the postings extracted from it.
type Alert struct {
	UID     imap.UID
	Subject string
	From    string
	Date    time.Time
	Jobs    []LinkedInJob
}

// Session is an open, selected IMAP connection. Callers must Close it.
type Session struct {
	client *imapclient.Client
	r      *Reader
}

// Connect dials, logs in, and selects the configured folder.
func (r *Reader) Connect(ctx context.Context) (*Session, error) {
	c, err := DialAndLogin(ctx, r.Addr, r.Username, r.Password, TLSConfigFor(r.Addr))
	if err != nil {
		return nil, err
	}
	if err := SelectFolder(c, r.Folder); err != nil {
		LogoutAndClose(c)
		return nil, err
	}
	return &Session{client: c, r: r}, nil
}

// FetchAlerts pulls unseen LinkedIn mail, keeps only job alerts, and parses
// posting candidates out of each one. Messages that fail to parse yield an
// alert with zero jobs rather than an error; a broken email should never
// abort the whole run.
func (s *Session) FetchAlerts(ctx context.Context) ([]Alert, error) {
	var since time.Time
	if s.r.LookbackDays > 0 {
		since = time.Now().AddDate(0, 0, -s.r.LookbackDays)
	}

	msgs, err := FetchUnseenFrom(ctx, s.client, linkedinFromFilter, since, s.r.MaxMessages)
	if err != nil {
		return nil, fmt.Errorf("mailbox: fetch: %w", err)
	}

	var alerts []Alert
	for _, m := range msgs {
		_, bodyText, htmlBody, subject := ParseMessage(m.RawMessage, m.Subject)

		if !LooksLikeJobAlert(m.From, subject, bodyText+"\n"+htmlToText(htmlBody)) {
			log.Debug().
				Int("uid", int(m.UID)).
				Str("from", m.From).
				Str("subject", subject).
				Msg("skipping non-alert message")
			continue
		}

		var jobs []LinkedInJob
		if htmlBody != "" {
			jobs, err = ParseLinkedInJobAlertHTML(htmlBody)
			if err != nil {
				log.Warn().
					Err(err).
					Int("uid", int(m.UID)).
					Msg("alert html did not parse")
				jobs = nil
			}
		}
		if len(jobs) == 0 {
			// Plaintext alert, or a template goquery got nothing out of.
			jobs = ExtractTextJobURLs(bodyText)
			if len(jobs) == 0 && htmlBody != "" {
				jobs = ExtractTextJobURLs(htmlBody)
			}
		}

		log.Debug().
			Int("uid", int(m.UID)).
			Str("subject", subject).
			Int("jobs", len(jobs)).
			Msg("parsed job alert")

		alerts = append(alerts, Alert{
			UID:     m.UID,
			Subject: subject,
			From:    m.From,
			Date:    m.Date,
			Jobs:    jobs,
		})
	}

	return alerts, nil
}

// MarkProcessed flags the given messages seen, if configured to.
func (s *Session) MarkProcessed(uids []imap.UID) error {
	if !s.r.MarkSeen || len(uids) == 0 {
		return nil
	}
	return MarkSeen(s.client, uids)
}

// Close logs out and drops the connection.
func (s *Session) Close() {
	LogoutAndClose(s.client)
}
