package transport

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"cwship/internal/model"
)

// Submit
//
// 현재 큐에 있는 이벤트를 destination 별로 나눠 sink 로 전송하고,
// 모든 partition 의 업로드가 끝날 때까지 기다린다.
//
// 반환값:
//   - 모든 partition 성공(또는 큐가 비어 있음) → nil
//   - 하나 이상 실패 → 가장 먼저 실패한 partition 의 *SinkError
//
// 다른 submit cycle(tick 포함)이 진행 중이면 끝날 때까지 기다린다.
// 기다리는 동안 ctx 가 끝나면 ctx.Err() 를 반환한다.
func (t *Transport) Submit(ctx context.Context) error {
	select {
	case t.submitSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.submitSem }()

	return t.submitLocked(ctx)
}

// submitLocked 는 submitSem 을 잡은 상태에서 호출된다.
//
//  1. 큐를 통째로 가져오고 비운다 (snapshot). 이후 들어오는 이벤트는 새 큐에 쌓인다.
//  2. destination 별로 partition
//  3. partition 마다 sink.Upload 를 병렬 호출하고 전부 끝날 때까지 대기
//  4. 실패한 partition 처리
//     - ctx 가 취소되어 실패(타이머 중단) → 큐로 되돌림
//     - RequeueFailed → 큐로 되돌림
//     - 그 외 → drop (EventsDroppedTotal)
func (t *Transport) submitLocked(ctx context.Context) error {
	batch := t.queue.take()
	if len(batch) == 0 {
		return nil
	}

	parts := PartitionEvents(batch, t.opts.LogGroupName, t.opts.LogStreamName)
	errs := make([]error, len(parts))

	var g errgroup.Group
	if t.opts.MaxConcurrentUploads > 0 {
		g.SetLimit(t.opts.MaxConcurrentUploads)
	}
	for i := range parts {
		i := i
		g.Go(func() error {
			errs[i] = t.upload(ctx, parts[i])
			return errs[i]
		})
	}
	firstErr := g.Wait()

	if firstErr == nil {
		return nil
	}

	aborted := errors.Is(ctx.Err(), context.Canceled)

	var retry []model.LogEvent
	for i, err := range errs {
		if err == nil {
			continue
		}
		n := int64(len(parts[i].Events))
		if aborted || t.opts.RequeueFailed {
			retry = append(retry, parts[i].Events...)
			atomic.AddInt64(&t.metrics.EventsRequeuedTotal, n)
			continue
		}
		atomic.AddInt64(&t.metrics.EventsDroppedTotal, n)
		t.log.Warn().
			Str("group", parts[i].Destination.Group).
			Str("stream", parts[i].Destination.Stream).
			Int64("events", n).
			Msg("upload failed, events dropped")
	}
	t.queue.requeue(retry)

	return firstErr
}

// upload 는 partition 하나를 sink 로 전송한다.
func (t *Transport) upload(ctx context.Context, p Partition) error {
	atomic.AddInt64(&t.metrics.SinkCallsTotal, 1)

	err := t.sink.Upload(ctx, p.Destination.Group, p.Destination.Stream, p.Inputs(), t.opts.RetentionInDays)
	if err != nil {
		atomic.AddInt64(&t.metrics.SinkErrorsTotal, 1)
		return &SinkError{Destination: p.Destination, Events: len(p.Events), Err: err}
	}

	atomic.AddInt64(&t.metrics.EventsSubmittedTotal, int64(len(p.Events)))
	return nil
}
