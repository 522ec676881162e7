package model

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// FieldNames 는 JSON 한 줄에서 Record 의 고정 필드로 꺼낼 키 이름이다.
type FieldNames struct {
	Level   string
	Message string
	Error   string
	Time    string // RFC3339Nano 로 파싱되지 않으면 Fields 에 남는다
}

// DefaultFieldNames 는 /log 요청 본문이 쓰는 키 이름이다.
var DefaultFieldNames = FieldNames{
	Level:   "level",
	Message: "message",
	Error:   "error",
	Time:    "time",
}

// DecodeRecord 는 JSON object 한 줄을 Record 로 변환한다.
//
// keys 에 해당하지 않는 나머지 키는 전부 Fields 로 들어간다.
// 결과는 line 을 참조하지 않으므로 호출자는 line 을 바로 재사용해도 된다.
func DecodeRecord(line []byte, keys FieldNames) (*Record, error) {
	var doc map[string]any
	if err := json.Unmarshal(line, &doc); err != nil {
		return nil, err
	}

	rec := &Record{}
	if v, ok := doc[keys.Level].(string); ok {
		rec.Level = v
		delete(doc, keys.Level)
	}
	if v, ok := doc[keys.Message].(string); ok {
		rec.Message = v
		delete(doc, keys.Message)
	}
	if v, ok := doc[keys.Error]; ok {
		switch e := v.(type) {
		case nil:
		case string:
			rec.Err = errors.New(e)
		default:
			rec.Err = errors.New(fmt.Sprint(e))
		}
		delete(doc, keys.Error)
	}
	if v, ok := doc[keys.Time].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			rec.Time = ts
			delete(doc, keys.Time)
		}
	}
	if len(doc) > 0 {
		rec.Fields = doc
	}
	return rec, nil
}
