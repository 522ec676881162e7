package transport

import (
	"bytes"
	"context"

	"github.com/rs/zerolog"

	"cwship/internal/model"
)

// Write 는 io.Writer 구현이다.
//
// zerolog 가 만든 JSON 한 줄을 Record 로 풀어서 Log 로 넘긴다.
// 전역 등록 없이 호출자가 명시적으로 연결한다:
//
//	tr, _ := transport.New(sink, opts)
//	logger := zerolog.New(tr).With().Timestamp().Logger()
//
// JSON 이 아니면 줄 전체를 level 없는 메시지로 취급한다.
// 로그를 남기는 쪽이 막히지 않도록 항상 len(p), nil 을 반환한다.
func (t *Transport) Write(p []byte) (int, error) {
	t.Log(context.Background(), decodeLine(p))
	return len(p), nil
}

// zerologFieldNames 는 zerolog 전역 설정의 키 이름이다.
// 호출 시점에 읽어야 애플리케이션이 바꾼 이름도 따라간다.
func zerologFieldNames() model.FieldNames {
	return model.FieldNames{
		Level:   zerolog.LevelFieldName,
		Message: zerolog.MessageFieldName,
		Error:   zerolog.ErrorFieldName,
		Time:    zerolog.TimestampFieldName,
	}
}

// decodeLine 은 zerolog JSON 라인을 Record 로 변환한다.
func decodeLine(p []byte) *model.Record {
	line := bytes.TrimSpace(p)

	rec, err := model.DecodeRecord(line, zerologFieldNames())
	if err != nil {
		return &model.Record{Message: string(line)}
	}
	return rec
}
