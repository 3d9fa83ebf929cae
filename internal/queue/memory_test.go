package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxbolgarin/hookflow/internal/model"
)

func TestMemoryQueue_EnqueueRead(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(8)

	require.NoError(t, q.Enqueue(ctx, model.NewTask(model.TaskAcceptEvent, "", nil)))
	require.NoError(t, q.Enqueue(ctx, model.NewTask(model.TaskDispatch, "p-1", nil)))

	messages, err := q.Read(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.TaskAcceptEvent, messages[0].Task.Kind)
	assert.Equal(t, "p-1", messages[1].Task.PipelineID)
	assert.NotEqual(t, messages[0].ID, messages[1].ID)
}

func TestMemoryQueue_ReadEmpty(t *testing.T) {
	q := NewMemoryQueue(8)
	messages, err := q.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMemoryQueue_RequeueIncrementsAttempt(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(8)

	require.NoError(t, q.Enqueue(ctx, model.NewTask(model.TaskExecute, "p-1", nil)))
	messages, err := q.Read(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, 1, messages[0].Task.Attempt)

	require.NoError(t, q.Requeue(ctx, messages[0]))
	messages, err = q.Read(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, 2, messages[0].Task.Attempt)
}

func TestMemoryQueue_Full(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)

	require.NoError(t, q.Enqueue(ctx, model.NewTask(model.TaskExecute, "p-1", nil)))
	assert.Error(t, q.Enqueue(ctx, model.NewTask(model.TaskExecute, "p-2", nil)))
}
