package config

import (
	"errors"
	"os"
	"path/filepath"
)

// Default returns the stock config written on first run. The tier rules
// mirror the keyword lists the tracker started with; edit the user file
// (or PUT /api/config) to change them.
func Default() Config {
	var cfg Config

	cfg.App.DataDir = "data"
	cfg.App.HTTPAddr = "127.0.0.1:8787"
	cfg.App.LogLevel = "info"

	cfg.Schedule.Times = []string{"09:00", "12:00", "15:00", "18:00"}
	cfg.Schedule.Timezone = "America/Chicago"
	cfg.Schedule.CatchupMinutes = 5

	cfg.Mailbox.Folder = "INBOX"
	cfg.Mailbox.LookbackDays = 30
	cfg.Mailbox.MaxMessages = 50
	cfg.Mailbox.MarkSeen = true

	cfg.Rules.Tier1 = []Rule{
		{Name: "target-role", Any: []string{
			"oracle erp", "oracle epm", "technical sales", "fusion",
			"netsuite", "manager", "senior manager",
		}},
		{Name: "target-company", Any: []string{
			"pwc", "pricewaterhousecoopers",
		}},
	}
	cfg.Rules.Tier2 = []Rule{
		{Name: "oracle-adjacent", Any: []string{
			"oracle cloud", "oracle application", "oracle consultant",
			"oracle developer", "oracle hcm", "oracle scm",
		}},
	}

	cfg.Scrape.Enabled = true
	cfg.Scrape.TimeoutSeconds = 20
	cfg.Scrape.DelaySeconds = 2

	cfg.Mail.SMTPHost = "smtp.gmail.com"
	cfg.Mail.SMTPPort = 587
	cfg.Mail.SubjectPrefix = "LinkedIn Job Tracker"

	cfg.Workbook.Filename = "linkedin_jobs.xlsx"

	return cfg
}

// EnsureUserConfig writes the default config into dataDir when no user
// config exists yet, and returns the user config path either way.
func EnsureUserConfig(dataDir string) (string, error) {
	userPath := filepath.Join(dataDir, "config.yml")

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := SaveAtomic(userPath, Default()); err != nil {
		return "", err
	}
	return userPath, nil
}
