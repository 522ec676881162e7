package transport

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"cwship/internal/metrics"
	"cwship/internal/model"
)

// Sink 는 destination 하나에 대한 배치 업로드를 담당하는 외부 협력자다.
//
// group/stream 생성, retention 설정, 인증, throttling 재시도는 모두 sink 의 책임이며
// transport 는 호출 1회를 원자적인 작업으로 취급한다.
// 서로 다른 destination 에 대한 Upload 는 동시에 호출될 수 있다.
type Sink interface {
	Upload(ctx context.Context, group, stream string, events []model.InputEvent, retentionInDays int) error
}

// Transport
//
// 로그 레코드를 메모리 큐에 모았다가 UploadRate 주기로 destination 별로 묶어
// Sink 로 전송하는 엔진이다.
//
// 구성:
//   - queue: 순서 보존 Event Queue (producer 여러 개가 동시에 Log 호출 가능)
//   - ticker goroutine: 첫 이벤트가 들어오면 시작되는 flush 타이머
//   - submitSem: submit cycle 을 transport 당 1개로 직렬화
//     (진행 중인 cycle 이 있으면 tick 은 건너뛴다)
//   - Shutdown: 타이머를 멈추고 FlushDeadline 까지 submit 을 반복
//
// Log 는 절대 호출자를 막거나 에러를 올려보내지 않는다.
// (sentinel 메시지만 예외적으로 즉시 submit 이 끝날 때까지 기다린다)
type Transport struct {
	opts      Options
	sink      Sink
	log       zerolog.Logger
	metrics   *metrics.Metrics
	threshold zerolog.Level

	queue eventQueue

	// 타이머 / shutdown 상태
	mu         sync.Mutex
	tickCancel context.CancelFunc // nil 이면 Idle
	closing    bool               // Shutdown 이 시작되면 타이머를 다시 만들지 않는다
	deadline   time.Time          // FlushDeadline (첫 Shutdown 호출 시 고정)

	submitSem chan struct{}
}

// New 는 sink 로 전송하는 Transport 를 만든다.
// 타이머는 첫 이벤트가 들어올 때 시작되므로 New 자체는 goroutine 을 띄우지 않는다.
func New(sink Sink, opts Options) (*Transport, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	base := zlog.Logger
	if o.Logger != nil {
		base = *o.Logger
	}
	threshold, _ := zerolog.ParseLevel(strings.ToLower(o.Level))

	return &Transport{
		opts:      o,
		sink:      sink,
		log:       base.With().Str("transport", o.Name).Logger(),
		metrics:   o.Metrics,
		threshold: threshold,
		submitSem: make(chan struct{}, 1),
	}, nil
}

// Name 은 transport 식별자를 반환한다.
func (t *Transport) Name() string { return t.opts.Name }

// Metrics 는 transport 가 갱신하는 카운터를 반환한다.
func (t *Transport) Metrics() *metrics.Metrics { return t.metrics }

// Len 은 아직 submit 되지 않은 이벤트 수다.
func (t *Transport) Len() int { return t.queue.len() }

// Log
//
// 레코드를 큐에 적재하고 바로 반환한다.
//   - level 임계치 미만이면 무시
//   - 메시지가 비어 있고 error 레코드도 아니면 무시
//   - 메시지가 sentinel 패턴("uncaughtException: ...")이면
//     타이머를 멈추고 즉시 submit 한 뒤 반환한다. 프로세스가 곧 종료될 상황이므로
//     다음 tick 을 기다리지 않는다.
//
// submit 실패는 ErrorHandler 로만 전달되고 호출자에게는 올라가지 않는다.
func (t *Transport) Log(ctx context.Context, rec *model.Record) {
	if rec == nil {
		return
	}
	if !t.enabled(rec.Level) {
		atomic.AddInt64(&t.metrics.EventsFilteredTotal, 1)
		return
	}

	t.add(rec)

	if !t.opts.SentinelPattern.MatchString(rec.Text()) {
		return
	}

	t.log.Debug().Msg("sentinel message received, flushing immediately")
	t.stopTimer()
	if err := t.Submit(ctx); err != nil {
		t.reportError(err)
	}
}

// enabled 는 레코드 level 이 임계치 이상인지 판단한다.
// 알 수 없는 level 문자열은 통과시킨다 (host 프레임워크 고유 level 대응).
func (t *Transport) enabled(level string) bool {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return true
	}
	return lvl >= t.threshold
}

// add 는 Event Queue append 연산이다.
// 메시지가 비어 있어도 error 레코드는 적재한다.
func (t *Transport) add(rec *model.Record) {
	if rec.Message == "" && !rec.IsError() {
		atomic.AddInt64(&t.metrics.EventsFilteredTotal, 1)
		return
	}

	t.queue.push(model.LogEvent{
		Raw:       rec,
		Message:   t.opts.MessageFormatter(rec),
		Timestamp: time.Now().UnixMilli(),
	})
	atomic.AddInt64(&t.metrics.EventsEnqueuedTotal, 1)

	t.ensureTimer()
}

// reportError 는 submit 실패를 ErrorHandler 또는 기본 진단 로그로 보낸다.
func (t *Transport) reportError(err error) {
	if t.opts.ErrorHandler != nil {
		t.opts.ErrorHandler(err)
		return
	}
	t.log.Error().Err(err).Msg("error during submit")
}
