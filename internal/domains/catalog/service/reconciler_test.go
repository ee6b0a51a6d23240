package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepRecorder ghi lại thứ tự các bước của một lượt reconcile
type stepRecorder struct {
	steps   []string
	syncErr error
}

func (r *stepRecorder) FlushPending(ctx context.Context) (*FlushReport, error) {
	r.steps = append(r.steps, "flush")
	return &FlushReport{}, nil
}

func (r *stepRecorder) Sync(ctx context.Context) (*SyncReport, error) {
	r.steps = append(r.steps, "sync")
	if r.syncErr != nil {
		return nil, r.syncErr
	}
	return &SyncReport{}, nil
}

func (r *stepRecorder) Repair(ctx context.Context) (*RepairReport, error) {
	r.steps = append(r.steps, "repair")
	return &RepairReport{}, nil
}

func (r *stepRecorder) Recalculate(ctx context.Context, names []string) (*RecalcReport, error) {
	if len(names) == 0 {
		r.steps = append(r.steps, "recalc:all")
	}
	return &RecalcReport{}, nil
}

func TestReconciler_RunsStepsInOrder(t *testing.T) {
	rec := &stepRecorder{}
	report, err := NewReconciler(rec, rec, rec, rec).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"flush", "sync", "repair", "recalc:all"}, rec.steps)
	assert.NotNil(t, report.Flush)
	assert.NotNil(t, report.Recalc)
	assert.False(t, report.StartedAt.IsZero())
}

func TestReconciler_StopsWhenSyncFails(t *testing.T) {
	rec := &stepRecorder{syncErr: errors.New("store down")}
	report, err := NewReconciler(nil, rec, rec, rec).Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"sync"}, rec.steps)
	assert.Nil(t, report.Flush)
	assert.Nil(t, report.Repair)
}

// ctxRecorder ghi lại context mà recalculation nhận được
type ctxRecorder struct {
	errs chan error
}

func (r *ctxRecorder) Recalculate(ctx context.Context, names []string) (*RecalcReport, error) {
	r.errs <- ctx.Err()
	return &RecalcReport{}, nil
}

func TestInlineDispatcher_DetachesFromCallerContext(t *testing.T) {
	rec := &ctxRecorder{errs: make(chan error, 1)}
	d := NewInlineDispatcher(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Dispatch(ctx, []string{"Fiction"}))
	d.Wait()

	select {
	case err := <-rec.errs:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("recalculation was not dispatched")
	}
}
