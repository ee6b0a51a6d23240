package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-catalog/internal/domains/catalog/service"
	"household-catalog/internal/shared"
)

type fakeSnapshot struct {
	loads int
	err   error
}

func (s *fakeSnapshot) Load(ctx context.Context) error {
	s.loads++
	return s.err
}

type fakeReconciler struct {
	runs int
	err  error
}

func (r *fakeReconciler) Run(ctx context.Context) (*service.ReconcileReport, error) {
	r.runs++
	if r.err != nil {
		return nil, r.err
	}
	return &service.ReconcileReport{}, nil
}

type fakeRecalculator struct {
	names []string
	err   error
}

func (r *fakeRecalculator) Recalculate(ctx context.Context, names []string) (*service.RecalcReport, error) {
	r.names = names
	if r.err != nil {
		return nil, r.err
	}
	return &service.RecalcReport{Checked: len(names), Updated: len(names)}, nil
}

func recalcTask(t *testing.T, names ...string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(shared.RecalculatePayload{Names: names})
	require.NoError(t, err)
	return asynq.NewTask(shared.TypeCatalogRecalculate, payload)
}

func TestReconcileHandler_ProcessTask(t *testing.T) {
	snap := &fakeSnapshot{}
	rec := &fakeReconciler{}
	h := NewReconcileHandler(rec, snap)

	// payload rỗng (cron) vẫn hợp lệ
	require.NoError(t, h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeCatalogReconcile, nil)))
	assert.Equal(t, 1, snap.loads)
	assert.Equal(t, 1, rec.runs)
}

func TestReconcileHandler_Errors(t *testing.T) {
	t.Run("bad payload is not retried", func(t *testing.T) {
		rec := &fakeReconciler{}
		h := NewReconcileHandler(rec, &fakeSnapshot{})
		err := h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeCatalogReconcile, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Zero(t, rec.runs)
	})

	t.Run("snapshot failure", func(t *testing.T) {
		rec := &fakeReconciler{}
		h := NewReconcileHandler(rec, &fakeSnapshot{err: errors.New("redis down")})
		err := h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeCatalogReconcile, nil))
		assert.ErrorContains(t, err, "redis down")
		assert.Zero(t, rec.runs)
	})

	t.Run("sync failure is retried", func(t *testing.T) {
		h := NewReconcileHandler(&fakeReconciler{err: errors.New("store unreachable")}, &fakeSnapshot{})
		err := h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeCatalogReconcile, nil))
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestRecalculateHandler_ProcessTask(t *testing.T) {
	snap := &fakeSnapshot{}
	recalc := &fakeRecalculator{}
	h := NewRecalculateHandler(recalc, snap)

	require.NoError(t, h.ProcessTask(context.Background(), recalcTask(t, "Fiction", "History")))
	assert.Equal(t, []string{"Fiction", "History"}, recalc.names)
	assert.Equal(t, 1, snap.loads)
}

func TestRecalculateHandler_BadPayload(t *testing.T) {
	recalc := &fakeRecalculator{}
	h := NewRecalculateHandler(recalc, &fakeSnapshot{})

	err := h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeCatalogRecalculate, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Nil(t, recalc.names)
}
