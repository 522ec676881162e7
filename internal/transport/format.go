package transport

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"cwship/internal/model"
)

// Formatter 는 레코드를 sink 로 보낼 메시지 문자열로 바꾼다.
// 실패하지 않는 함수여야 한다.
type Formatter func(*model.Record) string

// DefaultFormatter 는 "<level> - <message>" 형태로 출력한다.
func DefaultFormatter(r *model.Record) string {
	return r.Level + " - " + r.Text()
}

// JSONFormatter
//
// 레코드를 한 줄 JSON 으로 직렬화한다 (CloudWatch Logs Insights 에서 필드 검색용).
//   - Fields 를 먼저 채우고, level / message / error / time 은 예약 키로 덮어쓴다.
//   - 직렬화할 수 없는 필드 값(func, chan 등)이 있으면 fmt 표현으로 대체해
//     formatter 가 실패하지 않게 한다.
func JSONFormatter(r *model.Record) string {
	if b, err := json.Marshal(jsonDoc(r, nil)); err == nil {
		return string(b)
	}

	// 직렬화 불가능한 필드가 섞인 경우 → 필드 값을 문자열로 강제 변환 후 재시도
	b, err := json.Marshal(jsonDoc(r, func(v any) any { return fmt.Sprint(v) }))
	if err == nil {
		return string(b)
	}
	return DefaultFormatter(r)
}

func jsonDoc(r *model.Record, conv func(any) any) map[string]any {
	doc := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		if conv != nil {
			v = conv(v)
		}
		doc[k] = v
	}

	doc["level"] = r.Level
	doc["message"] = r.Text()
	if r.Err != nil {
		doc["error"] = r.Err.Error()
	}
	if !r.Time.IsZero() {
		doc["time"] = r.Time.UTC().Format(time.RFC3339Nano)
	}
	return doc
}
