package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "1", Type: task.Type()}, nil
}

func TestDispatchEnqueuesProcessTask(t *testing.T) {
	enq := &fakeEnqueuer{}
	id := uuid.New()
	require.NoError(t, NewDispatcher(enq).Dispatch(context.Background(), id))

	require.Len(t, enq.tasks, 1)
	task := enq.tasks[0]
	assert.Equal(t, ProcessVerificationTask, task.Type())
	assert.JSONEq(t, `{"verification_id":"`+id.String()+`"}`, string(task.Payload()))

	payload, err := ParseProcessPayload(task)
	require.NoError(t, err)
	assert.Equal(t, id, payload.VerificationID)
}

func TestDispatchWrapsEnqueueError(t *testing.T) {
	boom := errors.New("redis unavailable")
	err := NewDispatcher(&fakeEnqueuer{err: boom}).Dispatch(context.Background(), uuid.New())
	require.ErrorIs(t, err, boom)
}

func TestParseProcessPayloadRejectsGarbage(t *testing.T) {
	_, err := ParseProcessPayload(asynq.NewTask(ProcessVerificationTask, []byte("{")))
	require.Error(t, err)
	_, err = ParseProcessPayload(asynq.NewTask(ProcessVerificationTask, []byte(`{}`)))
	require.Error(t, err)
}
