package transport

import (
	"context"
	"sync/atomic"
	"time"
)

// ------------------------------------------------------------
// Flush Scheduler
//
// 상태: Idle(tickCancel == nil) / Active(tickCancel != nil)
//   - Idle → Active: 첫 이벤트 적재 시 (shutdown 이 시작된 뒤에는 전이하지 않음)
//   - Active → Idle: Shutdown 또는 sentinel flush 에 의한 명시적 취소만
//
// 큐가 비어도 타이머는 스스로 멈추지 않는다.
// 간헐적으로 들어오는 이벤트를 계속 잡기 위해 Active 상태를 유지한다.
// ------------------------------------------------------------

// ensureTimer 는 Idle 상태이면 flush 타이머를 시작한다.
func (t *Transport) ensureTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tickCancel != nil || t.closing {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.tickCancel = cancel

	t.log.Debug().Dur("upload_rate", t.opts.UploadRate).Msg("creating flush timer")
	go t.tickLoop(ctx)
}

// stopTimer 는 타이머를 취소한다.
// 진행 중인 tick 의 submit 도 함께 취소되며, 취소로 실패한 partition 은
// 큐로 되돌아가 다음 submit(보통 shutdown / sentinel flush)에서 다시 전송된다.
func (t *Transport) stopTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
}

func (t *Transport) stopTimerLocked() {
	if t.tickCancel == nil {
		return
	}
	t.tickCancel()
	t.tickCancel = nil
}

// tickLoop 는 UploadRate 주기로 submit cycle 을 실행한다.
func (t *Transport) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(t.opts.UploadRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			// cancel 과 tick 이 동시에 준비된 경우 cancel 을 우선한다
			if ctx.Err() != nil {
				return
			}
			t.tick(ctx)
		}
	}
}

// tick 은 submit cycle 1회를 실행한다.
// 이미 다른 submit 이 진행 중이면 이번 tick 은 건너뛴다 (동일 transport 에서
// submit 이 겹치지 않도록).
func (t *Transport) tick(loopCtx context.Context) {
	atomic.AddInt64(&t.metrics.TicksTotal, 1)

	select {
	case t.submitSem <- struct{}{}:
	default:
		atomic.AddInt64(&t.metrics.TicksSuppressedTotal, 1)
		t.log.Debug().Msg("submit in flight, tick suppressed")
		return
	}
	defer func() { <-t.submitSem }()

	ctx, cancel := context.WithTimeout(loopCtx, t.opts.SubmitTimeout)
	defer cancel()

	if err := t.submitLocked(ctx); err != nil && loopCtx.Err() == nil {
		t.reportError(err)
	}
}
