package sink

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"cwship/internal/model"
)

// Uploader 는 transport.Sink 와 같은 메서드 집합이다.
// (sink 패키지가 transport 를 import 하지 않도록 여기서 다시 선언)
type Uploader interface {
	Upload(ctx context.Context, group, stream string, events []model.InputEvent, retentionInDays int) error
}

// Multi 는 여러 sink 로 같은 partition 을 동시에 보내는 sink 다.
// 예: CloudWatch + S3 archive
type Multi struct {
	sinks []Uploader
}

// NewMulti 는 nil 을 제외한 sinks 를 묶는다.
func NewMulti(sinks ...Uploader) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Upload 는 모든 sink 의 업로드가 끝날 때까지 기다리고,
// 실패한 sink 들의 에러를 errors.Join 으로 묶어 반환한다.
// 하나가 실패해도 나머지 sink 호출은 취소하지 않는다.
func (m *Multi) Upload(ctx context.Context, group, stream string, events []model.InputEvent, retentionInDays int) error {
	if len(m.sinks) == 1 {
		return m.sinks[0].Upload(ctx, group, stream, events, retentionInDays)
	}

	errs := make([]error, len(m.sinks))
	var g errgroup.Group
	for i, s := range m.sinks {
		i, s := i, s
		g.Go(func() error {
			errs[i] = s.Upload(ctx, group, stream, events, retentionInDays)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
