package eventbridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sketchroom-backend/domain/events"
	pkgerrors "sketchroom-backend/pkg/errors"
)

type putEventsFunc func(in *eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error)

type fakeAPI struct {
	mu     sync.Mutex
	calls  []*eventbridge.PutEventsInput
	handle putEventsFunc
}

func (f *fakeAPI) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	if f.handle != nil {
		return f.handle(in)
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func joined(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewMemberJoined("main", "p", "Ada", i+1, time.Unix(1700000000, 0))
	}
	return out
}

func newPublisher(api API, retries int) *Publisher {
	return NewPublisher(api, PublisherConfig{
		EventBusName:   "sketch-bus",
		Source:         "sketchroom.rooms",
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
	}, zap.NewNop())
}

func TestPublishBatchChunks(t *testing.T) {
	api := &fakeAPI{}
	p := newPublisher(api, 3)

	require.NoError(t, p.PublishBatch(context.Background(), joined(23)))
	require.Equal(t, 3, api.callCount())
	assert.Len(t, api.calls[0].Entries, 10)
	assert.Len(t, api.calls[1].Entries, 10)
	assert.Len(t, api.calls[2].Entries, 3)

	entry := api.calls[0].Entries[0]
	assert.Equal(t, "sketch-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, "sketchroom.rooms", aws.ToString(entry.Source))
	assert.Equal(t, events.TypeMemberJoined, aws.ToString(entry.DetailType))

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "main", detail["aggregate_id"])
}

func TestPublishRetriesThrottling(t *testing.T) {
	attempts := 0
	api := &fakeAPI{handle: func(*eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
		attempts++
		if attempts == 1 {
			return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Fault: smithy.FaultClient}
		}
		return &eventbridge.PutEventsOutput{}, nil
	}}
	p := newPublisher(api, 3)

	require.NoError(t, p.Publish(context.Background(), joined(1)[0]))
	assert.Equal(t, 2, api.callCount())
}

func TestPublishDoesNotRetryClientFaults(t *testing.T) {
	api := &fakeAPI{handle: func(*eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Fault: smithy.FaultClient}
	}}
	p := newPublisher(api, 3)

	err := p.Publish(context.Background(), joined(1)[0])
	require.Error(t, err)
	assert.Equal(t, "EXTERNAL", pkgerrors.CodeOf(err))
	assert.Equal(t, 1, api.callCount())
}

func TestPublishResendsOnlyRejectedEntries(t *testing.T) {
	api := &fakeAPI{}
	api.handle = func(in *eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
		if len(api.calls) == 1 {
			return &eventbridge.PutEventsOutput{
				FailedEntryCount: 1,
				Entries: []types.PutEventsResultEntry{
					{EventId: aws.String("ok")},
					{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
					{EventId: aws.String("ok")},
				},
			}, nil
		}
		return &eventbridge.PutEventsOutput{}, nil
	}
	p := newPublisher(api, 3)

	require.NoError(t, p.PublishBatch(context.Background(), joined(3)))
	require.Equal(t, 2, api.callCount())
	require.Len(t, api.calls[1].Entries, 1)

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(api.calls[1].Entries[0].Detail)), &detail))
	assert.EqualValues(t, 2, detail["member_count"])
}

func TestCircuitBreakerOpens(t *testing.T) {
	api := &fakeAPI{handle: func(*eventbridge.PutEventsInput) (*eventbridge.PutEventsOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Fault: smithy.FaultClient}
	}}
	p := newPublisher(api, 1)

	for i := 0; i < 5; i++ {
		require.Error(t, p.Publish(context.Background(), joined(1)[0]))
	}
	err := p.Publish(context.Background(), joined(1)[0])
	require.Error(t, err)
	assert.Equal(t, "UNAVAILABLE", pkgerrors.CodeOf(err))
	assert.Equal(t, 5, api.callCount())
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(context.Canceled))
	assert.True(t, isRetryableError(&smithy.GenericAPIError{Code: "InternalException", Fault: smithy.FaultServer}))
	assert.False(t, isRetryableError(&smithy.GenericAPIError{Code: "AccessDeniedException", Fault: smithy.FaultClient}))
	assert.False(t, isRetryableError(&partialFailureError{}))
}

type recordingNext struct {
	mu      sync.Mutex
	batches [][]events.DomainEvent
}

func (r *recordingNext) Publish(ctx context.Context, e events.DomainEvent) error {
	return r.PublishBatch(ctx, []events.DomainEvent{e})
}

func (r *recordingNext) PublishBatch(_ context.Context, batch []events.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]events.DomainEvent(nil), batch...))
	return nil
}

func (r *recordingNext) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) RecordPublish(status string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[status] += n
}

func (c *countingRecorder) get(status string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[status]
}

func TestAsyncPublisherDropsWhenFull(t *testing.T) {
	recorder := &countingRecorder{}
	p := NewAsyncPublisher(&recordingNext{}, AsyncConfig{QueueSize: 2}, recorder, nil)

	evs := joined(3)
	require.NoError(t, p.Publish(context.Background(), evs[0]))
	require.NoError(t, p.Publish(context.Background(), evs[1]))
	err := p.Publish(context.Background(), evs[2])
	require.Error(t, err)
	assert.Equal(t, "UNAVAILABLE", pkgerrors.CodeOf(err))
	assert.Equal(t, 1, recorder.get("dropped"))
	assert.Equal(t, 2, p.Pending())
}

func TestAsyncPublisherBatchesAndDrains(t *testing.T) {
	next := &recordingNext{}
	recorder := &countingRecorder{}
	p := NewAsyncPublisher(next, AsyncConfig{QueueSize: 64, BatchSize: 10, FlushInterval: time.Hour}, recorder, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.PublishBatch(context.Background(), joined(13)))
	require.Eventually(t, func() bool { return next.total() >= 10 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 13, next.total())
	assert.Equal(t, 13, recorder.get("published"))

	next.mu.Lock()
	defer next.mu.Unlock()
	assert.Len(t, next.batches[0], 10)
}
