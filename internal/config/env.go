package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env carries everything the daemon takes from the environment. The four
// EMAIL_*/IMAP_* names are the long-standing contract; the JOBTRACK_*
// names override file settings for deployments that want env-only setup.
type Env struct {
	EmailAddress   string `env:"EMAIL_ADDRESS"`
	EmailPassword  string `env:"EMAIL_PASSWORD"`
	IMAPServer     string `env:"IMAP_SERVER"`
	RecipientEmail string `env:"RECIPIENT_EMAIL"`
	SMTPServer     string `env:"SMTP_SERVER"`

	DataDir    string `env:"JOBTRACK_DATA_DIR"`
	HTTPAddr   string `env:"JOBTRACK_HTTP_ADDR"`
	ConfigPath string `env:"JOBTRACK_CONFIG"`
	LogLevel   string `env:"JOBTRACK_LOG_LEVEL"`
}

// LoadEnv reads a .env file when present, then the process environment.
func LoadEnv() (Env, error) {
	_ = godotenv.Load()

	var e Env
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse environment: %w", err)
	}
	e.Sanitize()
	return e, nil
}

func (e *Env) Sanitize() {
	e.EmailAddress = strings.TrimSpace(e.EmailAddress)
	e.EmailPassword = strings.TrimSpace(e.EmailPassword)
	e.IMAPServer = strings.TrimSpace(e.IMAPServer)
	e.RecipientEmail = strings.TrimSpace(e.RecipientEmail)
	e.SMTPServer = strings.TrimSpace(e.SMTPServer)
	e.DataDir = strings.TrimSpace(e.DataDir)
	e.HTTPAddr = strings.TrimSpace(e.HTTPAddr)
	e.ConfigPath = strings.TrimSpace(e.ConfigPath)
	e.LogLevel = strings.ToLower(strings.TrimSpace(e.LogLevel))

	if e.RecipientEmail == "" {
		e.RecipientEmail = e.EmailAddress
	}
}

// MissingCore names the contract variables a working pipeline needs.
// The daemon still starts without them; every cycle reports the gap.
func (e Env) MissingCore() []string {
	var missing []string
	if e.EmailAddress == "" {
		missing = append(missing, "EMAIL_ADDRESS")
	}
	if e.IMAPServer == "" {
		missing = append(missing, "IMAP_SERVER")
	}
	return missing
}

// SMTPHostPort splits SMTP_SERVER into host and port, falling back to
// the config file values when the variable is unset or partial.
func (e Env) SMTPHostPort(defHost string, defPort int) (string, int) {
	if e.SMTPServer == "" {
		return defHost, defPort
	}
	host, portStr, err := net.SplitHostPort(e.SMTPServer)
	if err != nil {
		return e.SMTPServer, defPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return host, defPort
	}
	return host, port
}
