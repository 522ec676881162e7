package sink

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// keys.go
// ------------------------------------------------------------
// archive 오브젝트 이름 규칙.
//
//	<prefix>/<group>/<stream>/dt=<YYYY-MM-DD>/hr=<HH>/<unixms>_<instance>_<counter>.jsonl.gz
//
// 예:
//
//	logs/app/web-1/dt=2026-10-18/hr=09/1792309200123_ip-10-0-1-24_000042.jsonl.gz
//
// 파일명 정렬 = 시간 정렬이므로 같은 파티션 안에서 업로드 순서를 복원할 수 있다.
// 날짜/시간 파티션은 UTC 기준이다.
var globalCounter uint64

// nextCounter 는 goroutine 간 충돌 없는 순번을 만든다.
// 1e6 에서 0 으로 돌아가지만 timestamp + instance 조합으로 이름 충돌은 없다.
func nextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// newFilename 은 "<unixms>_<instance>_<counter>.jsonl.gz" 를 만든다.
func newFilename(instanceID string, now time.Time) string {
	return fmt.Sprintf("%d_%s_%06d.jsonl.gz", now.UnixMilli(), instanceID, nextCounter())
}

// buildS3Key 는 표준 archive key 를 만든다.
// group 이름의 앞뒤 '/' (예: "/aws/lambda/x") 는 빈 경로 조각이 생기지 않도록 제거한다.
func buildS3Key(prefix, group, stream, filename string, now time.Time) string {
	parts := make([]string, 0, 6)
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts,
		strings.Trim(group, "/"),
		strings.Trim(stream, "/"),
		"dt="+now.UTC().Format("2006-01-02"),
		"hr="+now.UTC().Format("15"),
		filename,
	)
	return strings.Join(parts, "/")
}
