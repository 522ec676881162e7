package transport

import (
	"errors"
	"fmt"

	"cwship/internal/model"
)

// ErrFlushTimeout 는 shutdown 이 FlushDeadline 안에 큐를 비우지 못했을 때 반환된다.
// shutdown 호출자에게만 전달되며, 로그를 남긴 쪽으로는 절대 올라가지 않는다.
var ErrFlushTimeout = errors.New("transport: timeout reached while waiting for logs to submit")

// SinkError 는 하나의 destination 에 대한 sink 업로드 실패다.
type SinkError struct {
	Destination model.Destination
	Events      int // 실패한 partition 의 이벤트 수
	Err         error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("transport: upload to %s failed (%d events): %v", e.Destination, e.Events, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
