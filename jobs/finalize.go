// Package jobs runs subscription background work: durable transaction
// finalization on river and periodic entitlement refresh on cron.
package jobs

import (
	"context"
	"errors"
	"time"

	core "github.com/PaulFidika/subkit/core"
	"github.com/PaulFidika/subkit/entitlements"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/sirupsen/logrus"
)

// QueueFinalize is the river queue finalize jobs run on.
const QueueFinalize = "subkit_finalize"

// FinalizeArgs asks a worker to finish one transaction. Jobs are unique by
// transaction id, so enqueueing the same transaction again is a no-op.
type FinalizeArgs struct {
	TransactionID string                         `json:"transaction_id" river:"unique"`
	Record        entitlements.TransactionRecord `json:"record"`
}

func (FinalizeArgs) Kind() string { return "subkit_finalize" }

func (FinalizeArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueFinalize,
		MaxAttempts: 10,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// FinalizeWorker finishes transactions against the store; errors are retried
// by river with its default backoff.
type FinalizeWorker struct {
	river.WorkerDefaults[FinalizeArgs]
	Finisher core.Finisher
	Log      logrus.FieldLogger
}

func (w *FinalizeWorker) Timeout(*river.Job[FinalizeArgs]) time.Duration { return 30 * time.Second }

func (w *FinalizeWorker) Work(ctx context.Context, job *river.Job[FinalizeArgs]) error {
	if w.Finisher == nil {
		return errors.New("jobs: finalize worker has no finisher")
	}
	rec := job.Args.Record
	if rec.ID == "" {
		rec.ID = job.Args.TransactionID
	}
	if rec.ID == "" {
		return river.JobCancel(errors.New("jobs: finalize job without transaction id"))
	}
	if err := w.Finisher.Finish(ctx, rec); err != nil {
		w.logger().WithError(err).WithFields(logrus.Fields{
			"transaction_id": rec.ID,
			"attempt":        job.Attempt,
		}).Warn("finalize failed")
		return err
	}
	w.logger().WithField("transaction_id", rec.ID).Debug("transaction finalized")
	return nil
}

func (w *FinalizeWorker) logger() logrus.FieldLogger {
	if w.Log == nil {
		return logrus.StandardLogger()
	}
	return w.Log
}

// Inserter is the part of a river client QueueFinisher needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// QueueFinisher is a core.Finisher that enqueues a finalize job instead of
// calling the store inline, so finalization survives restarts.
type QueueFinisher struct {
	Client Inserter
	Log    logrus.FieldLogger
}

func (q QueueFinisher) Finish(ctx context.Context, rec entitlements.TransactionRecord) error {
	res, err := q.Client.Insert(ctx, FinalizeArgs{TransactionID: rec.ID, Record: rec}, nil)
	if err != nil {
		return err
	}
	if res != nil && res.UniqueSkippedAsDuplicate && q.Log != nil {
		q.Log.WithField("transaction_id", rec.ID).Debug("finalize already queued")
	}
	return nil
}
