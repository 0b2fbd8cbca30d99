package jobs

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/PaulFidika/subkit/entitlements"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFinisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *recordingFinisher) Finish(_ context.Context, rec entitlements.TransactionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, rec.ID)
	return f.err
}

func job(args FinalizeArgs) *river.Job[FinalizeArgs] {
	return &river.Job[FinalizeArgs]{JobRow: &rivertype.JobRow{Attempt: 1}, Args: args}
}

func TestFinalizeArgsUniqueByTransaction(t *testing.T) {
	args := FinalizeArgs{}
	assert.Equal(t, "subkit_finalize", args.Kind())
	opts := args.InsertOpts()
	assert.Equal(t, QueueFinalize, opts.Queue)
	assert.True(t, opts.UniqueOpts.ByArgs)

	f, ok := reflect.TypeOf(args).FieldByName("TransactionID")
	require.True(t, ok)
	assert.Equal(t, "unique", f.Tag.Get("river"))
	g, _ := reflect.TypeOf(args).FieldByName("Record")
	assert.Empty(t, g.Tag.Get("river"), "only the transaction id may drive uniqueness")
}

func TestFinalizeWorker(t *testing.T) {
	fin := &recordingFinisher{}
	w := &FinalizeWorker{Finisher: fin}
	require.NoError(t, w.Work(context.Background(), job(FinalizeArgs{TransactionID: "t1"})))
	require.NoError(t, w.Work(context.Background(), job(FinalizeArgs{TransactionID: "t2", Record: entitlements.TransactionRecord{ID: "t2", ProductID: "p"}})))
	assert.Equal(t, []string{"t1", "t2"}, fin.ids)

	fin.err = errors.New("store down")
	assert.Error(t, w.Work(context.Background(), job(FinalizeArgs{TransactionID: "t3"})), "errors must surface so river retries")

	assert.ErrorContains(t, w.Work(context.Background(), job(FinalizeArgs{})), "without transaction id")
}

type fakeInserter struct {
	args []river.JobArgs
	dup  bool
	err  error
}

func (i *fakeInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if i.err != nil {
		return nil, i.err
	}
	i.args = append(i.args, args)
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{}, UniqueSkippedAsDuplicate: i.dup}, nil
}

func TestQueueFinisherEnqueues(t *testing.T) {
	ins := &fakeInserter{}
	q := QueueFinisher{Client: ins}
	rec := entitlements.TransactionRecord{ID: "t1", ProductID: "p"}
	require.NoError(t, q.Finish(context.Background(), rec))
	require.Len(t, ins.args, 1)
	got := ins.args[0].(FinalizeArgs)
	assert.Equal(t, "t1", got.TransactionID)
	assert.Equal(t, rec, got.Record)

	ins.err = errors.New("db down")
	assert.Error(t, q.Finish(context.Background(), rec))
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return true, r.err
}

func TestRefreshScheduler(t *testing.T) {
	r := &countingRefresher{}
	s, err := NewRefreshScheduler(r, "", nil)
	require.NoError(t, err)
	s.RunOnce()
	r.err = errors.New("offline")
	s.RunOnce()
	assert.Equal(t, 2, r.calls)
	s.Start()
	s.Stop()

	_, err = NewRefreshScheduler(r, "not a spec", nil)
	assert.Error(t, err)
}
