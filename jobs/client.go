package jobs

import (
	"context"

	core "github.com/PaulFidika/subkit/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/sirupsen/logrus"
)

// ClientConfig configures NewClient.
type ClientConfig struct {
	// Workers on QueueFinalize; default 4.
	MaxWorkers int
	Log        logrus.FieldLogger
}

// NewClient builds a river client whose finalize worker calls finisher.
func NewClient(pool *pgxpool.Pool, finisher core.Finisher, cfg ClientConfig) (*river.Client[pgx.Tx], error) {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, &FinalizeWorker{Finisher: finisher, Log: cfg.Log}); err != nil {
		return nil, err
	}
	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  map[string]river.QueueConfig{QueueFinalize: {MaxWorkers: cfg.MaxWorkers}},
		Workers: workers,
	})
}

// Migrate installs or upgrades river's own tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	m, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return err
	}
	_, err = m.Migrate(ctx, rivermigrate.DirectionUp, nil)
	return err
}
