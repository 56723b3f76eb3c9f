package httpapi

import "net/http"

// NewMux returns the raw mux so main() can still attach /shutdown (needs srv+token).
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	hh := HealthHandler{}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	// Jobs
	jh := JobsHandler{DB: d.DB, Hub: d.Hub, DeleteJob: d.DeleteJob}
	mux.HandleFunc("/api/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.List,
	}))
	mux.HandleFunc("/api/jobs/", methodMux(map[string]http.HandlerFunc{
		http.MethodDelete: jh.DeleteByPath, // expects /api/jobs/{id}
	}))
	mux.HandleFunc("/api/priority/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.ByPriority, // expects /api/priority/{level}
	}))

	// Cycle
	rh := RefreshHandler{Runner: d.Runner}
	mux.HandleFunc("/api/refresh", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: rh.Run,
	}))

	sth := StatusHandler{DB: d.DB, Runner: d.Runner, NextFirings: d.NextFirings, Hub: d.Hub}
	mux.HandleFunc("/api/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sth.Get,
	}))

	// Config
	ch := ConfigHandler{
		DB:          d.DB,
		Hub:         d.Hub,
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/api/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/api/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))

	// Secrets
	sh := SecretsHandler{Account: d.KeyringAccount}
	mux.HandleFunc("/api/secrets/imap", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.SetMailPassword,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	// Workbook download
	wh := WorkbookHandler{Path: d.WorkbookPath}
	mux.HandleFunc("/api/workbook", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: wh.Download,
	}))

	// Maintenance
	dh := DBHandler{DB: d.DB}
	mux.HandleFunc("/api/db/checkpoint", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: dh.Checkpoint,
	}))

	return mux
}
