package httpapi

import (
	"context"
	"database/sql"
	"sync/atomic"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/pipeline"
	"jobtrack-engine/internal/scheduler"
)

// CycleRunner is the slice of the pipeline the API needs.
// *pipeline.Runner satisfies it.
type CycleRunner interface {
	Run(ctx context.Context, firedBy string) (pipeline.Result, error)
	Running() bool
	Status() pipeline.Status
}

type Deps struct {
	DB *sql.DB

	Hub *events.Hub

	// Atomic store for the live config
	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Cycle entrypoint (inject for testability)
	Runner CycleRunner

	// Upcoming slots for the status payload; nil when no scheduler runs
	NextFirings func() []scheduler.Firing

	// Keyring entry the secrets endpoint writes to
	KeyringAccount string

	DeleteJob func(ctx context.Context, db *sql.DB, id int64) error

	// Current workbook location for the download endpoint
	WorkbookPath func() string
}
