// internal/model/event.go
package model

import "time"

// Record
// ------------------------------------------------------------
// 애플리케이션이 넘겨주는 로그 레코드 원본.
// transport 입장에서는 "불투명한(opaque)" 값이며,
// group/stream resolver 와 message formatter 만 내부 필드를 읽는다.
//
// Err 가 nil 이 아니면 error 레코드로 분류된다.
// error 레코드는 Message 가 비어 있어도 큐에 적재된다.
type Record struct {
	Level   string         `json:"level"`           // "debug" / "info" / "warn" / "error" ...
	Message string         `json:"message"`         // 사용자 메시지
	Err     error          `json:"-"`               // error 값 (있으면 error 레코드)
	Fields  map[string]any `json:"fields,omitempty"` // 부가 필드 (resolver 라우팅에도 사용)
	Time    time.Time      `json:"time"`            // 레코드 생성 시각 (없으면 zero)
}

// IsError 는 레코드가 error 로 분류되는지 반환한다.
func (r *Record) IsError() bool {
	return r != nil && r.Err != nil
}

// Text 는 레코드의 메시지 문자열을 반환한다.
// Message 가 비어 있는 error 레코드는 Err.Error() 로 대체된다.
func (r *Record) Text() string {
	if r.Message == "" && r.Err != nil {
		return r.Err.Error()
	}
	return r.Message
}

// Field 는 Fields[key] 를 문자열로 반환한다. 없거나 문자열이 아니면 "".
func (r *Record) Field(key string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	if s, ok := r.Fields[key].(string); ok {
		return s
	}
	return ""
}

// LogEvent
// ------------------------------------------------------------
// 큐에 적재된 단일 로그 이벤트.
// 생성 이후 불변이며, Submitter 가 sink 호출을 끝내면 더 이상 참조하지 않는다.
type LogEvent struct {
	Raw       *Record // 원본 레코드 (destination 계산용, sink 로는 전달되지 않음)
	Message   string  // formatter 적용 결과
	Timestamp int64   // 적재 시각 (Unix epoch milliseconds)
}

// Input 은 원본 레코드를 제거한, sink 로 전달되는 형태로 변환한다.
func (e LogEvent) Input() InputEvent {
	return InputEvent{Message: e.Message, Timestamp: e.Timestamp}
}

// InputEvent
// ------------------------------------------------------------
// sink 업로드 단위. CloudWatch PutLogEvents 의 InputLogEvent 와 1:1 대응.
type InputEvent struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Destination 은 이벤트가 전달될 (log group, log stream) 쌍이다.
type Destination struct {
	Group  string
	Stream string
}

// String 은 로그 출력용 "group/stream" 표현이다.
func (d Destination) String() string {
	return d.Group + "/" + d.Stream
}
