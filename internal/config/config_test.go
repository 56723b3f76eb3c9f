package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	_, vr := NormalizeAndValidate(Default())
	assert.True(t, vr.OK(), "default config should validate, got errors: %v", vr.Errors)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{in: "09:00", hour: 9, minute: 0},
		{in: "18:30", hour: 18, minute: 30},
		{in: " 12:15 ", hour: 12, minute: 15},
		{in: "24:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "0900", wantErr: true},
		{in: "nine", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, h)
			assert.Equal(t, tt.minute, m)
		})
	}
}

func TestNormalizeAndValidateCatchesBadSchedule(t *testing.T) {
	cfg := Default()
	cfg.Schedule.Times = []string{"09:00", "25:00"}
	_, vr := NormalizeAndValidate(cfg)
	assert.False(t, vr.OK())

	cfg = Default()
	cfg.Schedule.Timezone = "Mars/Olympus_Mons"
	_, vr = NormalizeAndValidate(cfg)
	assert.False(t, vr.OK())

	cfg = Default()
	cfg.Schedule.Times = nil
	_, vr = NormalizeAndValidate(cfg)
	assert.False(t, vr.OK())
}

func TestNormalizeAndValidateRules(t *testing.T) {
	cfg := Default()
	cfg.Rules.Tier1 = []Rule{{Name: "", Any: []string{"x"}}}
	_, vr := NormalizeAndValidate(cfg)
	assert.False(t, vr.OK())

	cfg = Default()
	cfg.Rules.Tier1 = []Rule{{Name: "empty", Any: []string{"  ", ""}}}
	_, vr = NormalizeAndValidate(cfg)
	assert.False(t, vr.OK())

	// duplicate needles collapse
	cfg = Default()
	cfg.Rules.Tier1 = []Rule{{Name: "dup", Any: []string{"PwC", "pwc", " pwc "}}}
	out, vr := NormalizeAndValidate(cfg)
	require.True(t, vr.OK(), "errors: %v", vr.Errors)
	assert.Len(t, out.Rules.Tier1[0].Any, 1)
}

func TestNormalizeAndValidateWarnsWithoutRules(t *testing.T) {
	cfg := Default()
	cfg.Rules.Tier1 = nil
	cfg.Rules.Tier2 = nil
	_, vr := NormalizeAndValidate(cfg)
	assert.True(t, vr.OK())
	assert.NotEmpty(t, vr.Warnings)
}

func TestEnsureUserConfigWritesDefaults(t *testing.T) {
	dir := t.TempDir()

	path, err := EnsureUserConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yml"), path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "12:00", "15:00", "18:00"}, cfg.Schedule.Times)
	assert.Equal(t, "America/Chicago", cfg.Schedule.Timezone)
	assert.NotEmpty(t, cfg.Rules.Tier1)

	// second call leaves the existing file alone
	cfg.Schedule.Timezone = "UTC"
	require.NoError(t, SaveAtomic(path, cfg))
	_, err = EnsureUserConfig(dir)
	require.NoError(t, err)
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "UTC", again.Schedule.Timezone)
}

func TestSaveAtomicKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	require.NoError(t, SaveAtomic(path, Default()))

	cfg := Default()
	cfg.Mailbox.MaxMessages = 99
	require.NoError(t, SaveAtomic(path, cfg))

	_, err := os.Stat(path + ".bak")
	assert.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 99, loaded.Mailbox.MaxMessages)
}

func TestSaveAtomicRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg := Default()
	cfg.Schedule.Times = []string{"nope"}
	err := SaveAtomic(path, cfg)
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "invalid config must not be written")
}

func TestEnvSanitizeDefaultsRecipient(t *testing.T) {
	e := Env{EmailAddress: " me@example.com ", RecipientEmail: ""}
	e.Sanitize()
	assert.Equal(t, "me@example.com", e.EmailAddress)
	assert.Equal(t, "me@example.com", e.RecipientEmail)

	e = Env{EmailAddress: "me@example.com", RecipientEmail: "you@example.com"}
	e.Sanitize()
	assert.Equal(t, "you@example.com", e.RecipientEmail)
}

func TestEnvMissingCore(t *testing.T) {
	var e Env
	e.Sanitize()
	assert.ElementsMatch(t, []string{"EMAIL_ADDRESS", "IMAP_SERVER"}, e.MissingCore())

	e = Env{EmailAddress: "a@b.c", IMAPServer: "imap.b.c"}
	e.Sanitize()
	assert.Empty(t, e.MissingCore())
}

func TestEnvSMTPHostPort(t *testing.T) {
	tests := []struct {
		name     string
		server   string
		wantHost string
		wantPort int
	}{
		{name: "unset", server: "", wantHost: "smtp.example.com", wantPort: 587},
		{name: "host only", server: "mail.example.com", wantHost: "mail.example.com", wantPort: 587},
		{name: "host and port", server: "mail.example.com:2525", wantHost: "mail.example.com", wantPort: 2525},
		{name: "bad port", server: "mail.example.com:zero", wantHost: "mail.example.com", wantPort: 587},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Env{SMTPServer: tt.server}
			host, port := e.SMTPHostPort("smtp.example.com", 587)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestOverlayEnv(t *testing.T) {
	cfg := Default()
	e := Env{DataDir: "/tmp/track", HTTPAddr: "127.0.0.1:9999", SMTPServer: "relay.local:2525"}
	e.Sanitize()

	out := OverlayEnv(cfg, e)
	assert.Equal(t, "/tmp/track", out.App.DataDir)
	assert.Equal(t, "127.0.0.1:9999", out.App.HTTPAddr)
	assert.Equal(t, "relay.local", out.Mail.SMTPHost)
	assert.Equal(t, 2525, out.Mail.SMTPPort)

	// unset env leaves file values alone
	out = OverlayEnv(cfg, Env{})
	assert.Equal(t, cfg.App.DataDir, out.App.DataDir)
	assert.Equal(t, cfg.Mail.SMTPHost, out.Mail.SMTPHost)
}
