package transport

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cwship/internal/metrics"
)

// 기본값
const (
	DefaultName          = "CloudWatch"
	DefaultLevel         = "info"
	DefaultUploadRate    = 2 * time.Second
	DefaultFlushTimeout  = 10 * time.Second
	DefaultSubmitTimeout = 30 * time.Second
)

// DefaultSentinel 은 프로세스 종료 직전 "uncaught exception" 로그를 식별하는 패턴이다.
// 이 메시지가 들어오면 타이머를 기다리지 않고 즉시 submit 한다.
var DefaultSentinel = regexp.MustCompile(`^uncaughtException: `)

// Options
//
// Transport 생성 옵션. zero value 필드는 New 에서 기본값으로 채워진다.
type Options struct {
	Name  string // transport 식별자 (로그 필드로 사용)
	Level string // 최소 severity ("debug" / "info" / "warn" / "error" ...)

	LogGroupName    Resolver
	LogStreamName   Resolver
	RetentionInDays int // 0 = retention 설정 안 함

	UploadRate    time.Duration // flush 타이머 주기
	FlushTimeout  time.Duration // shutdown 시 best-effort flush 허용 시간
	SubmitTimeout time.Duration // 타이머 cycle 1회의 sink 호출 timeout

	// MaxConcurrentUploads 는 한 cycle 안에서 동시에 진행할 partition 업로드 수다.
	// 0 이하면 제한하지 않는다.
	MaxConcurrentUploads int

	// RequeueFailed 가 true 면 업로드 실패한 partition 을 버리지 않고
	// 큐 앞쪽에 되돌려 다음 cycle 에 다시 보낸다.
	RequeueFailed bool

	MessageFormatter Formatter // nil 이면 DefaultFormatter
	JSONMessage      bool      // true 면 MessageFormatter 대신 JSONFormatter

	// ErrorHandler 는 타이머 cycle / sentinel flush 의 submit 실패를 받는다.
	// nil 이면 Logger 에 error 로그를 남긴다.
	ErrorHandler func(error)

	SentinelPattern *regexp.Regexp // nil 이면 DefaultSentinel

	Logger  *zerolog.Logger  // nil 이면 zerolog 전역 logger
	Metrics *metrics.Metrics // nil 이면 내부 전용 카운터
}

// withDefaults 는 옵션을 검증하고 기본값을 채운 사본을 돌려준다.
func (o Options) withDefaults() (Options, error) {
	if o.LogGroupName.IsZero() {
		return o, errors.New("transport: log group name is required")
	}
	if o.LogStreamName.IsZero() {
		return o, errors.New("transport: log stream name is required")
	}
	if o.RetentionInDays < 0 {
		return o, fmt.Errorf("transport: invalid retentionInDays %d", o.RetentionInDays)
	}

	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Level == "" {
		o.Level = DefaultLevel
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(o.Level)); err != nil {
		return o, fmt.Errorf("transport: invalid level %q: %w", o.Level, err)
	}
	if o.UploadRate <= 0 {
		o.UploadRate = DefaultUploadRate
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = DefaultFlushTimeout
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = DefaultSubmitTimeout
	}
	if o.SentinelPattern == nil {
		o.SentinelPattern = DefaultSentinel
	}
	if o.MessageFormatter == nil {
		o.MessageFormatter = DefaultFormatter
	}
	if o.JSONMessage {
		o.MessageFormatter = JSONFormatter
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	return o, nil
}
