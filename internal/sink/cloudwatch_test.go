package sink

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cwship/internal/metrics"
	"cwship/internal/model"
)

// fakeLogs 는 CloudWatchLogsAPI 의 메모리 구현이다.
// putErrs 에 넣어둔 에러를 PutLogEvents 호출 순서대로 하나씩 돌려준다.
type fakeLogs struct {
	mu sync.Mutex

	groups    []string
	streams   []string
	retention []int32
	puts      []*cloudwatchlogs.PutLogEventsInput

	groupErr error
	putErrs  []error
	seq      int
}

func (f *fakeLogs) CreateLogGroup(_ context.Context, in *cloudwatchlogs.CreateLogGroupInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, aws.ToString(in.LogGroupName))
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return &cloudwatchlogs.CreateLogGroupOutput{}, nil
}

func (f *fakeLogs) CreateLogStream(_ context.Context, in *cloudwatchlogs.CreateLogStreamInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, aws.ToString(in.LogGroupName)+"/"+aws.ToString(in.LogStreamName))
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func (f *fakeLogs) PutRetentionPolicy(_ context.Context, in *cloudwatchlogs.PutRetentionPolicyInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retention = append(f.retention, aws.ToInt32(in.RetentionInDays))
	return &cloudwatchlogs.PutRetentionPolicyOutput{}, nil
}

func (f *fakeLogs) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *in
	f.puts = append(f.puts, &cp)

	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	f.seq++
	return &cloudwatchlogs.PutLogEventsOutput{
		NextSequenceToken: aws.String("token-" + strconv.Itoa(f.seq)),
	}, nil
}

func newTestCloudWatch(client CloudWatchLogsAPI, retries int) (*CloudWatchSink, *metrics.Metrics) {
	m := metrics.New()
	nop := zerolog.Nop()
	return NewCloudWatch(client, CloudWatchOptions{
		CallTimeout: time.Second,
		Retries:     retries,
		Metrics:     m,
		Logger:      &nop,
	}), m
}

func inputs(msgs ...string) []model.InputEvent {
	out := make([]model.InputEvent, len(msgs))
	base := time.Now().UnixMilli()
	for i, m := range msgs {
		out[i] = model.InputEvent{Message: m, Timestamp: base + int64(i)}
	}
	return out
}

func TestCloudWatchCreatesGroupAndStreamOnce(t *testing.T) {
	f := &fakeLogs{}
	s, _ := newTestCloudWatch(f, 1)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "app", "web-1", inputs("a", "b"), 14))
	require.NoError(t, s.Upload(ctx, "app", "web-1", inputs("c"), 14))
	require.NoError(t, s.Upload(ctx, "app", "web-2", inputs("d"), 14))

	assert.Equal(t, []string{"app"}, f.groups)
	assert.Equal(t, []string{"app/web-1", "app/web-2"}, f.streams)
	assert.Equal(t, []int32{14}, f.retention, "retention is applied once per group")
	require.Len(t, f.puts, 3)

	assert.Nil(t, f.puts[0].SequenceToken)
	assert.Equal(t, "token-1", aws.ToString(f.puts[1].SequenceToken), "stream token carries over")
	assert.Nil(t, f.puts[2].SequenceToken, "each stream has its own token")
	assert.Len(t, f.puts[0].LogEvents, 2)
}

func TestCloudWatchRetentionChange(t *testing.T) {
	f := &fakeLogs{}
	s, _ := newTestCloudWatch(f, 1)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "app", "s", inputs("a"), 0))
	assert.Empty(t, f.retention)

	require.NoError(t, s.Upload(ctx, "app", "s", inputs("b"), 7))
	require.NoError(t, s.Upload(ctx, "app", "s", inputs("c"), 30))
	assert.Equal(t, []int32{7, 30}, f.retention)
}

func TestCloudWatchIgnoresAlreadyExists(t *testing.T) {
	f := &fakeLogs{groupErr: &cwtypes.ResourceAlreadyExistsException{Message: aws.String("exists")}}
	s, _ := newTestCloudWatch(f, 3)

	require.NoError(t, s.Upload(context.Background(), "app", "s", inputs("a"), 0))
	assert.Len(t, f.groups, 1, "already-exists is not retried")
	assert.Len(t, f.puts, 1)
}

func TestCloudWatchEmptyEvents(t *testing.T) {
	f := &fakeLogs{}
	s, _ := newTestCloudWatch(f, 1)

	require.NoError(t, s.Upload(context.Background(), "app", "s", nil, 0))
	assert.Empty(t, f.groups)
	assert.Empty(t, f.puts)
}

func TestCloudWatchRejectsEmptyDestination(t *testing.T) {
	s, _ := newTestCloudWatch(&fakeLogs{}, 1)
	assert.Error(t, s.Upload(context.Background(), "", "s", inputs("a"), 0))
}

func TestCloudWatchInvalidSequenceToken(t *testing.T) {
	f := &fakeLogs{putErrs: []error{
		&cwtypes.InvalidSequenceTokenException{ExpectedSequenceToken: aws.String("expected-7")},
	}}
	s, m := newTestCloudWatch(f, 2)

	require.NoError(t, s.Upload(context.Background(), "app", "s", inputs("a"), 0))
	require.Len(t, f.puts, 2)
	assert.Equal(t, "expected-7", aws.ToString(f.puts[1].SequenceToken))
	assert.Equal(t, int64(1), m.SinkRetriesTotal)
}

func TestCloudWatchDataAlreadyAccepted(t *testing.T) {
	f := &fakeLogs{putErrs: []error{
		&cwtypes.DataAlreadyAcceptedException{ExpectedSequenceToken: aws.String("next-3")},
	}}
	s, _ := newTestCloudWatch(f, 3)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "app", "s", inputs("dup"), 0))
	require.Len(t, f.puts, 1)

	require.NoError(t, s.Upload(ctx, "app", "s", inputs("next"), 0))
	assert.Equal(t, "next-3", aws.ToString(f.puts[1].SequenceToken))
}

func TestCloudWatchRecreatesDeletedStream(t *testing.T) {
	f := &fakeLogs{putErrs: []error{
		&cwtypes.ResourceNotFoundException{Message: aws.String("The specified log stream does not exist.")},
	}}
	s, _ := newTestCloudWatch(f, 2)

	require.NoError(t, s.Upload(context.Background(), "app", "s", inputs("a"), 0))
	assert.Equal(t, []string{"app", "app"}, f.groups)
	assert.Equal(t, []string{"app/s", "app/s"}, f.streams)
	assert.Len(t, f.puts, 2)
}

func TestCloudWatchRetriesThrottling(t *testing.T) {
	f := &fakeLogs{putErrs: []error{
		&smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"},
	}}
	s, m := newTestCloudWatch(f, 3)

	require.NoError(t, s.Upload(context.Background(), "app", "s", inputs("a"), 0))
	assert.Len(t, f.puts, 2)
	assert.Equal(t, int64(1), m.SinkRetriesTotal)
}

func TestCloudWatchDoesNotRetryAccessDenied(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"}
	f := &fakeLogs{putErrs: []error{denied}}
	s, m := newTestCloudWatch(f, 3)

	err := s.Upload(context.Background(), "app", "s", inputs("a"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.Len(t, f.puts, 1)
	assert.Equal(t, int64(0), m.SinkRetriesTotal)
}

func TestChunkEventsCount(t *testing.T) {
	events := make([]model.InputEvent, maxBatchEvents+5)
	for i := range events {
		events[i] = model.InputEvent{Message: "x", Timestamp: 1}
	}

	chunks := chunkEvents(events)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], maxBatchEvents)
	assert.Len(t, chunks[1], 5)
}

func TestChunkEventsBytes(t *testing.T) {
	big := strings.Repeat("a", 200_000)
	events := make([]model.InputEvent, 6)
	for i := range events {
		events[i] = model.InputEvent{Message: big, Timestamp: 1}
	}

	chunks := chunkEvents(events)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 5)
	assert.Len(t, chunks[1], 1)
}

func TestChunkEventsSpan(t *testing.T) {
	day := int64(24 * time.Hour / time.Millisecond)
	events := []model.InputEvent{
		{Message: "a", Timestamp: 0},
		{Message: "b", Timestamp: day},
		{Message: "c", Timestamp: day + 1},
	}

	chunks := chunkEvents(events)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Equal(t, "c", aws.ToString(chunks[1][0].Message))
}

func TestTruncateMessage(t *testing.T) {
	assert.Equal(t, "short", truncateMessage("short"))

	long := strings.Repeat("한", maxEventBytes) // 3 bytes each
	out := truncateMessage(long)
	assert.LessOrEqual(t, len(out), maxEventBytes)
	assert.True(t, strings.HasPrefix(long, out))
	assert.Equal(t, 0, len(out)%3, "cut on a rune boundary")
}

func TestIsRetryable(t *testing.T) {
	ctx := context.Background()

	assert.False(t, isRetryable(ctx, nil))
	assert.True(t, isRetryable(ctx, errors.New("connection reset")))
	assert.True(t, isRetryable(ctx, &smithy.GenericAPIError{Code: "ServiceUnavailableException"}))
	assert.False(t, isRetryable(ctx, &smithy.GenericAPIError{Code: "InvalidParameterException"}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, isRetryable(cancelled, errors.New("connection reset")))
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryPolicy{attempts: 5}.do(ctx, func(context.Context) (bool, error) {
		calls++
		return true, errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetryPolicyAttempts(t *testing.T) {
	calls := 0
	err := retryPolicy{attempts: 2}.do(context.Background(), func(context.Context) (bool, error) {
		calls++
		return true, errors.New("fail")
	})
	assert.EqualError(t, err, "fail")
	assert.Equal(t, 2, calls)
}
