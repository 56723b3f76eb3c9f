// config/overlay.go
package config

// OverlayEnv lays environment overrides on top of a loaded config.
// Env wins wherever it is set; file values survive otherwise.
func OverlayEnv(cfg Config, e Env) Config {
	if e.DataDir != "" {
		cfg.App.DataDir = e.DataDir
	}
	if e.HTTPAddr != "" {
		cfg.App.HTTPAddr = e.HTTPAddr
	}
	if e.LogLevel != "" {
		cfg.App.LogLevel = e.LogLevel
	}
	if e.SMTPServer != "" {
		cfg.Mail.SMTPHost, cfg.Mail.SMTPPort = e.SMTPHostPort(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort)
	}
	return cfg
}
