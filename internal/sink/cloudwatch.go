package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"cwship/internal/metrics"
	"cwship/internal/model"
)

// CloudWatch Logs PutLogEvents 제약
const (
	maxBatchEvents = 10_000
	maxBatchBytes  = 1_048_576
	eventOverhead  = 26                      // 이벤트당 과금/제한 계산에 더해지는 바이트
	maxEventBytes  = 262_144 - eventOverhead // 메시지 최대 바이트
	maxBatchSpanMs = int64(24 * time.Hour / time.Millisecond)
)

// CloudWatchLogsAPI 는 CloudWatchSink 가 사용하는 client 메서드 집합이다.
// *cloudwatchlogs.Client 가 구현하며, 테스트에서는 fake 로 대체한다.
type CloudWatchLogsAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutRetentionPolicy(ctx context.Context, params *cloudwatchlogs.PutRetentionPolicyInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchOptions 는 CloudWatchSink 동작 파라미터다.
type CloudWatchOptions struct {
	CallTimeout time.Duration // API 호출 1회 timeout (0 = 제한 없음)
	Retries     int           // API 호출당 최대 시도 횟수 (0 → 1)
	Metrics     *metrics.Metrics
	Logger      *zerolog.Logger
}

// CloudWatchSink
//
// transport.Sink 의 CloudWatch Logs 구현.
// Upload 1회에 대해:
//  1. log group 보장 (CreateLogGroup, 이미 있으면 무시). group 당 1회
//  2. retentionInDays > 0 이면 PutRetentionPolicy (값이 바뀔 때만)
//  3. log stream 보장 (CreateLogStream, 이미 있으면 무시). stream 당 1회
//  4. PutLogEvents 를 서비스 제한(10,000건 / 1MB / 24h)에 맞춰 나눠서 전송
//
// sequence token 은 stream 별로 기억한다.
//   - InvalidSequenceTokenException → 기대 token 으로 교체 후 재시도
//   - DataAlreadyAcceptedException → 기대 token 을 채택하고 성공으로 간주
//   - ResourceNotFoundException (외부에서 stream 삭제) → group/stream 재생성 후 재시도
//
// 같은 stream 에 대한 Upload 는 stream 단위 mutex 로 직렬화된다.
type CloudWatchSink struct {
	client  CloudWatchLogsAPI
	policy  retryPolicy
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu      sync.Mutex
	groups  map[string]*groupState
	streams map[model.Destination]*streamState
}

type groupState struct {
	mu        sync.Mutex
	created   bool
	retention int
}

type streamState struct {
	mu      sync.Mutex
	created bool
	token   *string
}

// NewCloudWatch 는 client 로 전송하는 CloudWatchSink 를 만든다.
func NewCloudWatch(client CloudWatchLogsAPI, opts CloudWatchOptions) *CloudWatchSink {
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	l := zlog.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}

	return &CloudWatchSink{
		client:  client,
		policy:  retryPolicy{attempts: opts.Retries, timeout: opts.CallTimeout, metrics: m},
		metrics: m,
		log:     l.With().Str("sink", "cloudwatch").Logger(),
		groups:  make(map[string]*groupState),
		streams: make(map[model.Destination]*streamState),
	}
}

// Upload 는 transport.Sink 구현이다.
func (s *CloudWatchSink) Upload(ctx context.Context, group, stream string, events []model.InputEvent, retentionInDays int) error {
	if len(events) == 0 {
		return nil
	}
	if group == "" || stream == "" {
		return fmt.Errorf("cloudwatch: empty destination %q/%q", group, stream)
	}

	if err := s.ensureGroup(ctx, group, retentionInDays); err != nil {
		return err
	}

	st := s.stream(model.Destination{Group: group, Stream: stream})
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.created {
		if err := s.createStream(ctx, group, stream); err != nil {
			return err
		}
		st.created = true
	}

	for _, chunk := range chunkEvents(events) {
		if err := s.putChunk(ctx, group, stream, st, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *CloudWatchSink) group(name string) *groupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[name]
	if !ok {
		g = &groupState{}
		s.groups[name] = g
	}
	return g
}

func (s *CloudWatchSink) stream(dst model.Destination) *streamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[dst]
	if !ok {
		st = &streamState{}
		s.streams[dst] = st
	}
	return st
}

// ensureGroup 은 group 생성과 retention 설정을 group 당 한 번만 수행한다.
func (s *CloudWatchSink) ensureGroup(ctx context.Context, name string, retentionInDays int) error {
	g := s.group(name)
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.created {
		if err := s.createGroup(ctx, name); err != nil {
			return err
		}
		g.created = true
	}

	if retentionInDays > 0 && g.retention != retentionInDays {
		err := s.policy.do(ctx, func(callCtx context.Context) (bool, error) {
			_, err := s.client.PutRetentionPolicy(callCtx, &cloudwatchlogs.PutRetentionPolicyInput{
				LogGroupName:    aws.String(name),
				RetentionInDays: aws.Int32(int32(retentionInDays)),
			})
			return isRetryable(ctx, err), err
		})
		if err != nil {
			return fmt.Errorf("cloudwatch: put retention policy %s=%d: %w", name, retentionInDays, err)
		}
		g.retention = retentionInDays
		s.log.Debug().Str("group", name).Int("retention_days", retentionInDays).Msg("retention policy set")
	}
	return nil
}

func (s *CloudWatchSink) createGroup(ctx context.Context, name string) error {
	err := s.policy.do(ctx, func(callCtx context.Context) (bool, error) {
		_, err := s.client.CreateLogGroup(callCtx, &cloudwatchlogs.CreateLogGroupInput{
			LogGroupName: aws.String(name),
		})
		if alreadyExists(err) {
			return false, nil
		}
		return isRetryable(ctx, err), err
	})
	if err != nil {
		return fmt.Errorf("cloudwatch: create log group %s: %w", name, err)
	}
	return nil
}

func (s *CloudWatchSink) createStream(ctx context.Context, group, stream string) error {
	err := s.policy.do(ctx, func(callCtx context.Context) (bool, error) {
		_, err := s.client.CreateLogStream(callCtx, &cloudwatchlogs.CreateLogStreamInput{
			LogGroupName:  aws.String(group),
			LogStreamName: aws.String(stream),
		})
		if alreadyExists(err) {
			return false, nil
		}
		return isRetryable(ctx, err), err
	})
	if err != nil {
		return fmt.Errorf("cloudwatch: create log stream %s/%s: %w", group, stream, err)
	}
	return nil
}

// putChunk 는 PutLogEvents 1건을 sequence token 프로토콜에 맞춰 전송한다.
// st.mu 를 잡은 상태에서 호출된다.
func (s *CloudWatchSink) putChunk(ctx context.Context, group, stream string, st *streamState, chunk []cwtypes.InputLogEvent) error {
	err := s.policy.do(ctx, func(callCtx context.Context) (bool, error) {
		out, err := s.client.PutLogEvents(callCtx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(group),
			LogStreamName: aws.String(stream),
			LogEvents:     chunk,
			SequenceToken: st.token,
		})
		if err == nil {
			st.token = out.NextSequenceToken
			if out.RejectedLogEventsInfo != nil {
				s.log.Warn().
					Str("group", group).
					Str("stream", stream).
					Interface("rejected", out.RejectedLogEventsInfo).
					Msg("some log events rejected")
			}
			return false, nil
		}

		var seqErr *cwtypes.InvalidSequenceTokenException
		if errors.As(err, &seqErr) {
			st.token = seqErr.ExpectedSequenceToken
			return true, err
		}

		var dupErr *cwtypes.DataAlreadyAcceptedException
		if errors.As(err, &dupErr) {
			st.token = dupErr.ExpectedSequenceToken
			return false, nil
		}

		var nfErr *cwtypes.ResourceNotFoundException
		if errors.As(err, &nfErr) {
			// group 또는 stream 이 외부에서 삭제됨 → 다시 만들고 재시도
			st.token = nil
			if cerr := s.createGroup(ctx, group); cerr != nil {
				return false, cerr
			}
			if cerr := s.createStream(ctx, group, stream); cerr != nil {
				return false, cerr
			}
			return true, err
		}

		return isRetryable(ctx, err), err
	})
	if err != nil {
		return fmt.Errorf("cloudwatch: put log events %s/%s (%d events): %w", group, stream, len(chunk), err)
	}
	return nil
}

func alreadyExists(err error) bool {
	var exists *cwtypes.ResourceAlreadyExistsException
	return errors.As(err, &exists)
}

// chunkEvents
//
// 입력 순서를 유지한 채로 PutLogEvents 제한에 맞게 이벤트를 나눈다.
//   - 한 요청당 최대 10,000건
//   - 한 요청당 (메시지 바이트 + 26) 합계 1,048,576 바이트 이하
//   - 한 요청 안의 첫 이벤트와 마지막 이벤트 간격 24시간 이하
//
// 최대 크기를 넘는 메시지는 잘라서 보낸다.
func chunkEvents(events []model.InputEvent) [][]cwtypes.InputLogEvent {
	var (
		chunks [][]cwtypes.InputLogEvent
		cur    []cwtypes.InputLogEvent
		size   int
		first  int64
	)

	for _, ev := range events {
		msg := truncateMessage(ev.Message)
		n := len(msg) + eventOverhead

		if len(cur) > 0 &&
			(len(cur) >= maxBatchEvents || size+n > maxBatchBytes || ev.Timestamp-first > maxBatchSpanMs) {
			chunks = append(chunks, cur)
			cur = nil
			size = 0
		}
		if len(cur) == 0 {
			first = ev.Timestamp
		}

		cur = append(cur, cwtypes.InputLogEvent{
			Message:   aws.String(msg),
			Timestamp: aws.Int64(ev.Timestamp),
		})
		size += n
	}

	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// truncateMessage 는 maxEventBytes 를 넘는 메시지를 UTF-8 경계에서 자른다.
func truncateMessage(msg string) string {
	if len(msg) <= maxEventBytes {
		return msg
	}
	return strings.ToValidUTF8(msg[:maxEventBytes], "")
}
