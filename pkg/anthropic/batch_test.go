package anthropic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func (m *mockClient) CreateBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BatchResponse), args.Error(1)
}

func (m *mockClient) GetBatch(ctx context.Context, id string) (*BatchResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BatchResponse), args.Error(1)
}

func (m *mockClient) GetBatchResults(ctx context.Context, id string) (BatchResultIterator, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(BatchResultIterator), args.Error(1)
}

type sliceIter struct {
	items []BatchResultItem
	i     int
	err   error
}

func (s *sliceIter) Next() bool {
	if s.i >= len(s.items) {
		return false
	}
	s.i++
	return true
}
func (s *sliceIter) Item() BatchResultItem { return s.items[s.i-1] }
func (s *sliceIter) Err() error            { return s.err }
func (s *sliceIter) Close() error          { return nil }

func fastPoll() []PollOption {
	return []PollOption{WithPollInterval(time.Millisecond), WithPollCap(2 * time.Millisecond)}
}

func TestPollBatch_Ends(t *testing.T) {
	t.Parallel()

	mc := new(mockClient)
	mc.On("GetBatch", mock.Anything, "b1").Return(&BatchResponse{ID: "b1", ProcessingStatus: "in_progress"}, nil).Twice()
	mc.On("GetBatch", mock.Anything, "b1").Return(&BatchResponse{ID: "b1", ProcessingStatus: "ended"}, nil).Once()

	b, err := PollBatch(context.Background(), mc, "b1", fastPoll()...)
	require.NoError(t, err)
	assert.Equal(t, "ended", b.ProcessingStatus)
	mc.AssertNumberOfCalls(t, "GetBatch", 3)
}

func TestPollBatch_TerminalStates(t *testing.T) {
	t.Parallel()

	for _, status := range []string{"expired", "canceled", "canceling"} {
		t.Run(status, func(t *testing.T) {
			t.Parallel()
			mc := new(mockClient)
			mc.On("GetBatch", mock.Anything, "b").Return(&BatchResponse{ID: "b", ProcessingStatus: status}, nil)
			_, err := PollBatch(context.Background(), mc, "b", fastPoll()...)
			require.Error(t, err)
		})
	}
}

func TestPollBatch_APIError(t *testing.T) {
	t.Parallel()

	mc := new(mockClient)
	mc.On("GetBatch", mock.Anything, "b").Return(nil, errors.New("boom"))
	_, err := PollBatch(context.Background(), mc, "b", fastPoll()...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: poll batch b")
}

func TestPollBatch_Timeout(t *testing.T) {
	t.Parallel()

	mc := new(mockClient)
	mc.On("GetBatch", mock.Anything, "b").Return(&BatchResponse{ID: "b", ProcessingStatus: "in_progress"}, nil)
	_, err := PollBatch(context.Background(), mc, "b",
		WithPollInterval(5*time.Millisecond), WithPollTimeout(30*time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline exceeded")
}

func TestNextWait(t *testing.T) {
	t.Parallel()

	for range 50 {
		w := nextWait(4*time.Second, 15*time.Second)
		assert.GreaterOrEqual(t, w, 8*time.Second-8*time.Second/5)
		assert.LessOrEqual(t, w, 8*time.Second+8*time.Second/5)

		capped := nextWait(10*time.Second, 15*time.Second)
		assert.LessOrEqual(t, capped, 18*time.Second)
	}
	assert.Equal(t, time.Duration(0), nextWait(0, time.Second))
}

func TestCollectResults_IteratorError(t *testing.T) {
	t.Parallel()

	_, err := CollectResults(&sliceIter{err: errors.New("stream broke")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: collect batch results")
}

func TestCollectResults(t *testing.T) {
	t.Parallel()

	res, err := CollectResults(&sliceIter{items: []BatchResultItem{
		{CustomID: "a", Type: "succeeded", Message: &MessageResponse{Usage: TokenUsage{OutputTokens: 3}}},
		{CustomID: "b", Type: "succeeded", Message: &MessageResponse{Usage: TokenUsage{OutputTokens: 4}}},
		{CustomID: "c", Type: "expired"},
	}})
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)
	assert.Equal(t, "expired", res.Failed["c"])
	assert.Equal(t, int64(7), res.Usage.OutputTokens)
}
