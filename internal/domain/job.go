package domain

import "time"

// Priority tiers. Lower is hotter; TierDefault is the catch-all.
const (
	TierHigh    = 1
	TierMedium  = 2
	TierDefault = 3
)

// JobPosting is one extracted job. Key is stable across runs so the
// ledger can dedupe: "linkedin:<numeric id>" when the URL carries one,
// otherwise a hash of title+company.
type JobPosting struct {
	Key         string
	Title       string
	Company     string
	Location    string
	Salary      string
	URL         string
	Tier        int
	Tags        []string
	DateAdded   string // YYYY-MM-DD in the tracker zone
	FirstSeenAt time.Time
	Source      string // email/page
}
