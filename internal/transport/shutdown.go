package transport

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// requeue 모드에서 sink 실패 후 재시도 간격 (sink 업로더와 같은 200ms → 2s)
const (
	retryBackoffMin = 200 * time.Millisecond
	retryBackoffMax = 2 * time.Second
)

// Shutdown
//
// 프로세스 종료 전 best-effort flush.
//
//  1. 타이머를 무조건 취소 (진행 중인 tick 도 중단되고 이벤트는 큐로 복귀)
//  2. FlushDeadline = now + FlushTimeout (이전 Shutdown 호출에서 정했으면 재사용)
//  3. Submit 반복
//     - sink 실패 → 즉시 그 에러 반환
//     (RequeueFailed 이면 deadline 까지 backoff 후 재시도)
//     - 성공 + 큐 비어 있음 → nil
//     - 성공 + 큐에 새 이벤트 + deadline 이전 → runtime.Gosched() 후 반복
//     - deadline 초과 → ErrFlushTimeout
//
// 반복 횟수에는 제한이 없고 wall-clock 시간만 FlushDeadline 으로 제한된다.
// 모든 sink 호출은 FlushDeadline 을 deadline 으로 하는 context 로 실행되므로
// sink 가 응답하지 않아도 Shutdown 은 deadline 을 넘겨 멈춰 있지 않는다.
func (t *Transport) Shutdown() error {
	t.mu.Lock()
	t.closing = true
	t.stopTimerLocked()
	if t.deadline.IsZero() {
		t.deadline = time.Now().Add(t.opts.FlushTimeout)
	}
	deadline := t.deadline
	t.mu.Unlock()

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	t.log.Debug().Time("deadline", deadline).Int("pending", t.queue.len()).Msg("shutdown flush started")

	backoff := retryBackoffMin
	var lastErr error

	for {
		err := t.Submit(ctx)

		switch {
		case err == nil:
			if t.queue.len() == 0 {
				t.log.Debug().Msg("shutdown flush complete")
				return nil
			}
			if time.Now().After(deadline) {
				return t.flushTimeout(lastErr)
			}
			// submit 도중 새 이벤트가 들어옴 → 다른 goroutine 에 양보 후 재시도
			runtime.Gosched()

		// sink 자체의 호출 timeout 도 DeadlineExceeded 를 감싸므로
		// 에러 종류가 아니라 shutdown ctx 기준으로만 timeout 을 판단한다
		case ctx.Err() != nil || time.Now().After(deadline):
			return t.flushTimeout(err)

		case t.opts.RequeueFailed:
			lastErr = err
			t.log.Warn().Err(err).Dur("backoff", backoff).Msg("shutdown submit failed, retrying")

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return t.flushTimeout(lastErr)
			case <-timer.C:
			}
			backoff *= 2
			if backoff > retryBackoffMax {
				backoff = retryBackoffMax
			}

		default:
			return err
		}
	}
}

// flushTimeout 은 ErrFlushTimeout 에 마지막 원인을 붙여 반환한다.
func (t *Transport) flushTimeout(cause error) error {
	atomic.AddInt64(&t.metrics.FlushTimeoutsTotal, 1)
	t.log.Warn().Err(cause).Int("pending", t.queue.len()).Msg("shutdown flush timed out")

	if cause == nil {
		return ErrFlushTimeout
	}
	return fmt.Errorf("%w: %w", ErrFlushTimeout, cause)
}
