package sink

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/aws/smithy-go"

	"cwship/internal/metrics"
)

// retryPolicy
// ------------------------------------------------------------
// AWS API 호출 1건에 대한 애플리케이션 레벨 재시도 정책.
//
// SDK retryer 는 client 생성 시 NopRetryer 로 꺼두고 (client.go 참고)
// 재시도 횟수는 오직 여기서만 결정한다.
//   - 시도마다 timeout 별도 적용
//   - exponential backoff 200ms → 최대 2s
//   - shutdown-safe: ctx.Done() 시 즉시 중단
type retryPolicy struct {
	attempts int
	timeout  time.Duration
	metrics  *metrics.Metrics
}

const (
	backoffMin = 200 * time.Millisecond
	backoffMax = 2 * time.Second
)

// do 는 fn 이 성공하거나, 재시도 불가 에러를 반환하거나,
// 시도 횟수를 모두 쓸 때까지 반복한다.
// fn 은 (재시도 여부, 에러) 를 반환한다.
func (p retryPolicy) do(ctx context.Context, fn func(ctx context.Context) (bool, error)) error {
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := backoffMin

	for attempt := 1; attempt <= attempts; attempt++ {

		// shutdown 체크
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return lastErr
			}
			return ctx.Err()
		default:
		}

		retry, err := p.call(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == attempts {
			break
		}
		if p.metrics != nil {
			atomic.AddInt64(&p.metrics.SinkRetriesTotal, 1)
		}

		// backoff 적용 (최대 2초)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
	}

	return lastErr
}

// call 은 1회 시도당 timeout 을 적용해 fn 을 호출한다.
func (p retryPolicy) call(ctx context.Context, fn func(ctx context.Context) (bool, error)) (bool, error) {
	if p.timeout <= 0 {
		return fn(ctx)
	}
	ctx2, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return fn(ctx2)
}

// retryableCodes 는 잠시 후 다시 시도하면 성공할 수 있는 AWS 에러 코드다.
var retryableCodes = map[string]struct{}{
	"ThrottlingException":         {},
	"ServiceUnavailableException": {},
	"RequestLimitExceeded":        {},
	"InternalFailure":             {},
	"SlowDown":                    {},
	"RequestTimeout":              {},
}

// isRetryable
//   - AWS API 에러: 코드 기준 (throttling / 일시 장애만)
//   - 상위 ctx 취소: 재시도하지 않음
//   - 그 외(네트워크 에러, 시도별 timeout): 재시도
func isRetryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		_, ok := retryableCodes[apiErr.ErrorCode()]
		return ok
	}
	return true
}
