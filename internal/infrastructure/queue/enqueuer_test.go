package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-catalog/internal/shared"
)

// recordingClient thay asynq.Client trong test
type recordingClient struct {
	tasks []*asynq.Task
	ctxs  []context.Context
	err   error
}

func (c *recordingClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.ctxs = append(c.ctxs, ctx)
	return &asynq.TaskInfo{ID: "task-1", Queue: shared.QueueCatalog}, nil
}

func TestRecalcEnqueuer_Dispatch(t *testing.T) {
	client := &recordingClient{}
	e := NewRecalcEnqueuer(client, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Dispatch(ctx, []string{"Fiction"}))

	require.Len(t, client.tasks, 1)
	assert.Equal(t, shared.TypeCatalogRecalculate, client.tasks[0].Type())
	assert.NoError(t, client.ctxs[0].Err(), "enqueue must outlive the caller")

	var payload shared.RecalculatePayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, []string{"Fiction"}, payload.Names)
}

func TestRecalcEnqueuer_DispatchError(t *testing.T) {
	e := NewRecalcEnqueuer(&recordingClient{err: errors.New("redis down")}, 3)
	err := e.Dispatch(context.Background(), []string{"Fiction"})
	assert.ErrorContains(t, err, "redis down")
}

func TestEnqueueReconcile(t *testing.T) {
	client := &recordingClient{}
	id, err := EnqueueReconcile(context.Background(), client, "manual")
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)

	require.Len(t, client.tasks, 1)
	assert.Equal(t, shared.TypeCatalogReconcile, client.tasks[0].Type())
	assert.JSONEq(t, `{"reason":"manual"}`, string(client.tasks[0].Payload()))
}
