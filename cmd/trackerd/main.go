package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/httpapi"
	"jobtrack-engine/internal/mailbox"
	"jobtrack-engine/internal/mailer"
	"jobtrack-engine/internal/pipeline"
	"jobtrack-engine/internal/rank"
	"jobtrack-engine/internal/scheduler"
	"jobtrack-engine/internal/scrape"
	"jobtrack-engine/internal/secrets"
	"jobtrack-engine/internal/sheet"
	"jobtrack-engine/internal/store"
)

const dbFilename = "jobs.db"

// Maintenance slot: prune old run records once a day, off the report hours.
const pruneClock = "03:30"

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("environment")
	}

	// Data dir comes first: the user config lives inside it.
	dataDir := env.DataDir
	if dataDir == "" {
		dataDir = config.Default().App.DataDir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", dataDir).Msg("create data dir")
	}

	// One daemon per data dir. A second instance would double-send the
	// report mail and fight over the workbook.
	lock := flock.New(filepath.Join(dataDir, "trackerd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatal().Err(err).Str("lock", lock.Path()).Msg("instance lock")
	}
	if !locked {
		log.Fatal().Str("lock", lock.Path()).Msg("another trackerd owns this data dir")
	}
	defer lock.Unlock()

	userCfgPath := env.ConfigPath
	if userCfgPath == "" {
		userCfgPath, err = config.EnsureUserConfig(dataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("config bootstrap")
		}
	}

	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(userCfgPath)
		if err != nil {
			return cfg, err
		}
		cfg = config.OverlayEnv(cfg, env)
		norm, vr := config.NormalizeAndValidate(cfg)
		if !vr.OK() {
			return cfg, errors.New("config: " + strings.Join(vr.Errors, "; "))
		}
		for _, w := range vr.Warnings {
			log.Warn().Str("detail", w).Msg("config warning")
		}
		return norm, nil
	}

	cfg, err := loadCfg()
	if err != nil {
		log.Fatal().Err(err).Str("path", userCfgPath).Msg("config load")
	}
	setupLogging(cfg.App.LogLevel)

	var cfgVal atomic.Value
	cfgVal.Store(cfg)
	currentCfg := func() config.Config { return cfgVal.Load().(config.Config) }

	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.App.DataDir).Msg("create data dir")
	}
	db, err := store.Open(filepath.Join(cfg.App.DataDir, dbFilename))
	if err != nil {
		log.Fatal().Err(err).Msg("open ledger")
	}
	defer db.Close()
	if err := store.Migrate(db.Pool); err != nil {
		log.Fatal().Err(err).Msg("migrate ledger")
	}

	// Mail password: EMAIL_PASSWORD wins, the OS keychain is the fallback.
	account := ""
	if env.EmailAddress != "" && env.IMAPServer != "" {
		account = secrets.MailKeyringAccount(env.EmailAddress, env.IMAPServer)
	}
	password, err := secrets.ResolveMailPassword(env.EmailPassword, account)
	if err != nil {
		log.Warn().Err(err).Msg("mail password unresolved")
	}
	if missing := env.MissingCore(); len(missing) > 0 {
		log.Warn().Str("missing", strings.Join(missing, ",")).Msg("mailbox contract incomplete, cycles will fail until it is set")
	}

	var source pipeline.AlertSource
	if reader, rerr := mailbox.NewReader(cfg, env, password); rerr != nil {
		log.Warn().Err(rerr).Msg("mailbox reader unavailable")
		source = errSource{rerr}
	} else {
		source = pipeline.NewIMAPSource(reader)
	}

	var sender pipeline.ReportSender
	if svc, merr := mailer.FromEnv(cfg, env, password); merr != nil {
		log.Warn().Err(merr).Msg("report mailer unavailable")
		sender = errMailer{merr}
	} else {
		sender = svc
	}

	hub := events.NewHub()

	runner := &pipeline.Runner{
		DB:     db.Pool,
		Cfg:    currentCfg,
		Source: source,
		Enrich: scrape.NewEnricher(
			time.Duration(cfg.Scrape.TimeoutSeconds)*time.Second,
			time.Duration(cfg.Scrape.DelaySeconds)*time.Second,
		),
		Scorer: liveScorer{currentCfg},
		Sheet:  pipeline.SheetWriterFunc(sheet.WriteWorkbook),
		Mail:   sender,
		Hub:    hub,
	}

	sched, err := scheduler.New(cfg, runner)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}
	if err := sched.AddDaily(pruneClock, func() {
		if n, perr := store.PruneOldRuns(db.Pool); perr != nil {
			log.Warn().Err(perr).Msg("prune runs")
		} else if n > 0 {
			log.Debug().Int("deleted", int(n)).Msg("old runs pruned")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("maintenance slot")
	}
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler start")
	}

	mux := httpapi.NewMux(httpapi.Deps{
		DB:             db.Pool,
		Hub:            hub,
		CfgVal:         &cfgVal,
		UserCfgPath:    userCfgPath,
		LoadCfg:        loadCfg,
		Runner:         runner,
		NextFirings:    sched.Next,
		KeyringAccount: account,
		DeleteJob:      store.DeleteJob,
		WorkbookPath: func() string {
			c := currentCfg()
			return filepath.Join(c.App.DataDir, c.Workbook.Filename)
		},
	})

	// The UI process finds the token on disk; nothing else should.
	token, err := randomToken(16)
	if err != nil {
		log.Fatal().Err(err).Msg("shutdown token")
	}
	tokenPath := filepath.Join(dataDir, "shutdown.token")
	if err := os.WriteFile(tokenPath, []byte(token), 0o600); err != nil {
		log.Fatal().Err(err).Str("path", tokenPath).Msg("write shutdown token")
	}
	defer os.Remove(tokenPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Handler:           httpapi.Chain(mux, httpapi.Cors, httpapi.RequestID, httpapi.Recover, httpapi.AccessLog),
		ReadHeaderTimeout: 5 * time.Second,
	}
	mux.HandleFunc("/shutdown", shutdownHandler(&token, cancel))

	ln, err := net.Listen("tcp", cfg.App.HTTPAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.App.HTTPAddr).Msg("listen")
	}
	log.Info().
		Str("addr", "http://"+ln.Addr().String()).
		Str("config", userCfgPath).
		Str("db", filepath.Join(cfg.App.DataDir, dbFilename)).
		Msg("trackerd up")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("signal received")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		if serr := srv.Serve(ln); !errors.Is(serr, http.ErrServerClosed) {
			return serr
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		stopped := sched.Stop()
		select {
		case <-stopped.Done():
		case <-time.After(30 * time.Second):
			log.Warn().Msg("cycle still running, abandoning it")
		}

		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		if serr := srv.Shutdown(shutCtx); serr != nil {
			// Open SSE streams never go idle; cut them loose.
			log.Warn().Err(serr).Msg("graceful shutdown timed out, closing")
			return srv.Close()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
	log.Info().Msg("trackerd stopped")
}

// setupLogging switches the default logger to the configured level and,
// on a terminal, to the console writer.
func setupLogging(level string) {
	switch strings.ToLower(level) {
	case "debug":
		log.DefaultLogger.Level = log.DebugLevel
	case "warn":
		log.DefaultLogger.Level = log.WarnLevel
	case "error":
		log.DefaultLogger.Level = log.ErrorLevel
	default:
		log.DefaultLogger.Level = log.InfoLevel
	}
	if log.IsTerminal(os.Stderr.Fd()) {
		log.DefaultLogger.Writer = &log.ConsoleWriter{
			ColorOutput:    true,
			EndWithMessage: true,
		}
	}
}

// liveScorer re-reads the config each call so rule edits made over the
// API apply to the next cycle without a restart.
type liveScorer struct {
	cfg func() config.Config
}

func (s liveScorer) Score(job domain.JobPosting) (int, []string) {
	return rank.KeywordScorer{Cfg: s.cfg()}.Score(job)
}

// errSource stands in for the mailbox when the env contract is missing,
// so every cycle reports the gap instead of the daemon refusing to start.
type errSource struct{ err error }

func (s errSource) Open(context.Context) (pipeline.AlertBatch, error) {
	return nil, s.err
}

type errMailer struct{ err error }

func (m errMailer) SendRunReport(context.Context, string, string, mailer.RunSummary) error {
	return m.err
}
