package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 transport / sink / HTTP 수집기의 상태를 나타내는 카운터 모음이다.
// 모든 필드는 atomic 으로만 접근한다.
type Metrics struct {
	// ======================
	// HTTP 레벨 지표
	// ======================

	// HTTPRequestsTotal
	// - /log 엔드포인트로 들어온 모든 요청 수 (시도 기준).
	HTTPRequestsTotal int64

	// HTTPRequestsAcceptedTotal
	// - 본문을 정상적으로 읽고 레코드를 transport 로 넘긴 요청 수.
	HTTPRequestsAcceptedTotal int64

	// HTTPRequestsRejectedTotal
	// - 바디 초과(413), 잘못된 JSON(400) 등으로 거절된 요청 수.
	HTTPRequestsRejectedTotal int64

	// ======================
	// Queue 레벨 지표
	// ======================

	// EventsEnqueuedTotal
	// - Event Queue 에 적재된 이벤트 수.
	EventsEnqueuedTotal int64

	// EventsFilteredTotal
	// - 빈 메시지(비 error) 또는 level 임계치 미만이라 버려진 레코드 수.
	EventsFilteredTotal int64

	// ======================
	// Submit / Sink 레벨 지표
	// ======================

	// EventsSubmittedTotal
	// - sink 업로드가 성공한 이벤트 수 (배치 수가 아니라 이벤트 수).
	EventsSubmittedTotal int64

	// EventsDroppedTotal
	// - sink 업로드 실패로 버려진 이벤트 수.
	// - 0 이 아니면 데이터 유실이 발생했다는 뜻이다.
	EventsDroppedTotal int64

	// EventsRequeuedTotal
	// - RequeueFailed 옵션으로 다음 cycle 에 다시 넣은 이벤트 수.
	EventsRequeuedTotal int64

	// SinkCallsTotal / SinkErrorsTotal
	// - destination(partition) 단위 sink 호출 수와 실패 수.
	SinkCallsTotal  int64
	SinkErrorsTotal int64

	// SinkRetriesTotal
	// - sink 내부 재시도 횟수 (throttling, sequence token 등).
	SinkRetriesTotal int64

	// ======================
	// Scheduler / Shutdown 지표
	// ======================

	// TicksTotal / TicksSuppressedTotal
	// - flush 타이머 tick 수, 이전 submit 이 진행 중이라 건너뛴 tick 수.
	// - suppressed 가 계속 증가하면 sink 지연이 uploadRate 보다 길다는 신호.
	TicksTotal           int64
	TicksSuppressedTotal int64

	// FlushTimeoutsTotal
	// - shutdown 이 deadline 안에 큐를 비우지 못한 횟수.
	FlushTimeoutsTotal int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "http_requests_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsTotal))
	fmt.Fprintf(&sb, "http_requests_accepted_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsAcceptedTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedTotal))

	fmt.Fprintf(&sb, "events_enqueued_total=%d\n", atomic.LoadInt64(&m.EventsEnqueuedTotal))
	fmt.Fprintf(&sb, "events_filtered_total=%d\n", atomic.LoadInt64(&m.EventsFilteredTotal))
	fmt.Fprintf(&sb, "events_submitted_total=%d\n", atomic.LoadInt64(&m.EventsSubmittedTotal))
	fmt.Fprintf(&sb, "events_dropped_total=%d\n", atomic.LoadInt64(&m.EventsDroppedTotal))
	fmt.Fprintf(&sb, "events_requeued_total=%d\n", atomic.LoadInt64(&m.EventsRequeuedTotal))

	fmt.Fprintf(&sb, "sink_calls_total=%d\n", atomic.LoadInt64(&m.SinkCallsTotal))
	fmt.Fprintf(&sb, "sink_errors_total=%d\n", atomic.LoadInt64(&m.SinkErrorsTotal))
	fmt.Fprintf(&sb, "sink_retries_total=%d\n", atomic.LoadInt64(&m.SinkRetriesTotal))

	fmt.Fprintf(&sb, "ticks_total=%d\n", atomic.LoadInt64(&m.TicksTotal))
	fmt.Fprintf(&sb, "ticks_suppressed_total=%d\n", atomic.LoadInt64(&m.TicksSuppressedTotal))
	fmt.Fprintf(&sb, "flush_timeouts_total=%d\n", atomic.LoadInt64(&m.FlushTimeoutsTotal))

	return sb.String()
}
