package config

import (
	"fmt"
	"strings"
	"time"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy plus everything wrong
// or suspicious about it. Callers persist the normalized copy only when
// the validation is OK.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	normRules := func(name string, rules []Rule) []Rule {
		var ys []Rule
		for i, r := range rules {
			r.Name = strings.TrimSpace(r.Name)
			r.Any = trimList(r.Any)
			if r.Name == "" {
				res.addErr("rules.%s[%d].name is required", name, i)
			}
			if len(r.Any) == 0 {
				res.addErr("rules.%s[%d].any must have at least 1 term", name, i)
			}
			ys = append(ys, r)
		}
		return ys
	}

	// ---- Normalization ----

	out.App.DataDir = strings.TrimSpace(out.App.DataDir)
	out.App.HTTPAddr = strings.TrimSpace(out.App.HTTPAddr)
	out.App.LogLevel = strings.ToLower(strings.TrimSpace(out.App.LogLevel))
	out.Schedule.Times = trimList(out.Schedule.Times)
	out.Schedule.Timezone = strings.TrimSpace(out.Schedule.Timezone)
	out.Mailbox.Folder = strings.TrimSpace(out.Mailbox.Folder)
	out.Mail.SMTPHost = strings.TrimSpace(out.Mail.SMTPHost)
	out.Mail.SubjectPrefix = strings.TrimSpace(out.Mail.SubjectPrefix)
	out.Workbook.Filename = strings.TrimSpace(out.Workbook.Filename)
	out.Rules.Tier1 = normRules("tier1", out.Rules.Tier1)
	out.Rules.Tier2 = normRules("tier2", out.Rules.Tier2)

	// ---- Validation rules ----

	if out.App.DataDir == "" {
		res.addErr("app.data_dir is required")
	}

	if len(out.Schedule.Times) == 0 {
		res.addErr("schedule.times must have at least 1 entry")
	}
	for _, t := range out.Schedule.Times {
		if _, _, err := ParseClock(t); err != nil {
			res.addErr("schedule.times: %v", err)
		}
	}
	if len(out.Schedule.Times) > 12 {
		res.addWarn("schedule.times has %d entries; the mailbox will be hammered.", len(out.Schedule.Times))
	}
	if out.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(out.Schedule.Timezone); err != nil {
			res.addErr("schedule.timezone %q is not a known zone", out.Schedule.Timezone)
		}
	}
	if out.Schedule.CatchupMinutes < 0 {
		res.addErr("schedule.catchup_minutes must be >= 0")
	}

	if out.Mailbox.LookbackDays <= 0 {
		res.addErr("mailbox.lookback_days must be > 0")
	}
	if out.Mailbox.MaxMessages <= 0 {
		res.addErr("mailbox.max_messages must be > 0")
	} else if out.Mailbox.MaxMessages > 500 {
		res.addWarn("mailbox.max_messages is very high (%d); runs may be slow.", out.Mailbox.MaxMessages)
	}
	if out.Mailbox.Folder == "" {
		res.addErr("mailbox.folder is required")
	}

	if len(out.Rules.Tier1) == 0 && len(out.Rules.Tier2) == 0 {
		res.addWarn("no tier rules configured; every posting lands in the default tier.")
	}

	if out.Scrape.Enabled {
		if out.Scrape.TimeoutSeconds <= 0 {
			res.addErr("scrape.timeout_seconds must be > 0 when scrape.enabled=true")
		}
		if out.Scrape.DelaySeconds < 0 {
			res.addErr("scrape.delay_seconds must be >= 0")
		} else if out.Scrape.DelaySeconds == 0 {
			res.addWarn("scrape.delay_seconds is 0; job pages will be fetched back to back.")
		}
	}

	if out.Mail.SMTPHost == "" {
		res.addErr("mail.smtp_host is required")
	}
	if out.Mail.SMTPPort <= 0 || out.Mail.SMTPPort > 65535 {
		res.addErr("mail.smtp_port must be 1..65535")
	}
	if out.Mail.SubjectPrefix == "" {
		res.addWarn("mail.subject_prefix is empty; reports will use the stock subject.")
	}

	if out.Workbook.Filename == "" {
		res.addErr("workbook.filename is required")
	} else if !strings.HasSuffix(strings.ToLower(out.Workbook.Filename), ".xlsx") {
		res.addWarn("workbook.filename %q does not end in .xlsx", out.Workbook.Filename)
	}

	return out, res
}
