package transport

import (
	"sync"

	"cwship/internal/model"
)

// eventQueue
// ------------------------------------------------------------
// submit 대기 중인 LogEvent 의 순서 보존 버퍼.
//
// 여러 producer goroutine 이 동시에 push 하고,
// Submitter 는 take() 로 전체를 한 번에 가져간다(snapshot + clear).
// submit 중에 들어온 이벤트는 새 slice 에 쌓이므로
// 다음 cycle 에서 정확히 한 번 처리된다.
type eventQueue struct {
	mu     sync.Mutex
	events []model.LogEvent
}

func (q *eventQueue) push(ev model.LogEvent) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// take 는 현재 큐 전체를 가져가고 큐를 비운다.
// 반환된 slice 는 호출자 소유다 (큐가 재사용하지 않는다).
func (q *eventQueue) take() []model.LogEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.events
	q.events = nil
	return out
}

// requeue 는 실패한 이벤트를 큐 앞쪽에 되돌린다.
// 되돌린 이벤트가 이후 들어온 이벤트보다 먼저 전달되도록 순서를 유지한다.
func (q *eventQueue) requeue(evs []model.LogEvent) {
	if len(evs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]model.LogEvent, 0, len(evs)+len(q.events))
	merged = append(merged, evs...)
	merged = append(merged, q.events...)
	q.events = merged
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
