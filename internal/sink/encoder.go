package sink

import (
	json "github.com/goccy/go-json"

	"cwship/internal/model"
	"cwship/internal/pool"
)

// archiveLine 은 archive JSONL 한 줄의 형태다.
// CloudWatch 에 보낸 것과 같은 (message, timestamp) 에 destination 을 붙인다.
type archiveLine struct {
	Group     string `json:"group"`
	Stream    string `json:"stream"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// encodeJSONLGZ 는 partition 하나를 JSONL 로 줄 단위 인코딩한 뒤 gzip 압축한다.
//
//   - gzip.Writer / bytes.Buffer 는 pool 에서 재사용
//   - 결과는 새 []byte 로 복사해 호출자에게 소유권을 넘긴다
//     (pool 버퍼를 그대로 반환하면 다음 사용자가 덮어쓴다)
func encodeJSONLGZ(group, stream string, events []model.InputEvent) ([]byte, error) {
	buf := pool.GetArchive()
	defer pool.PutArchive(buf)

	gz := pool.GetGzip(buf)
	defer pool.PutGzip(gz)

	enc := json.NewEncoder(gz)
	for _, ev := range events {
		line := archiveLine{
			Group:     group,
			Stream:    stream,
			Timestamp: ev.Timestamp,
			Message:   ev.Message,
		}
		if err := enc.Encode(&line); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}

	// Close() 시 gzip footer 까지 기록되어 스트림이 완성된다
	if err := gz.Close(); err != nil {
		return nil, err
	}

	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)
	return data, nil
}
