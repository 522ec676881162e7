package pool

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// 재사용 버퍼
//
// 사용처는 두 곳이다.
//   - server: /log 요청 body 를 통째로 읽는 버퍼
//   - sink:   S3 archive 로 보낼 partition 을 gzip JSONL 로 인코딩하는 버퍼 + writer
//
// 상한보다 커진 버퍼는 돌려놓지 않는다.
// 한 번 큰 요청이 들어왔다고 그 크기의 버퍼를 계속 들고 있지 않기 위해서다.
// ---------------------------------------------------------------

const (
	bodyInitCap    = 4 * 1024   // 대부분의 /log 요청 (수십 줄 이하)
	archiveInitCap = 256 * 1024 // partition 하나의 gzip 결과

	// MaxArchiveCap 보다 큰 archive 버퍼는 pool 로 돌아가지 않는다.
	MaxArchiveCap = 1 << 20
)

var (
	bodyPool = sync.Pool{
		New: func() any { return bytes.NewBuffer(make([]byte, 0, bodyInitCap)) },
	}
	archivePool = sync.Pool{
		New: func() any { return bytes.NewBuffer(make([]byte, 0, archiveInitCap)) },
	}
	// archive 는 flush cycle 안에서 만들어지므로 압축률보다 속도를 택한다
	gzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// GetBody 는 비어 있는 요청 body 버퍼를 꺼낸다.
func GetBody() *bytes.Buffer {
	buf := bodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBody 는 cap 이 maxCap 이하인 버퍼만 되돌린다.
// maxCap 은 보통 MaxBodySize*2.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) > maxCap {
		return
	}
	buf.Reset()
	bodyPool.Put(buf)
}

// GetArchive 는 비어 있는 archive 인코딩 버퍼를 꺼낸다.
func GetArchive() *bytes.Buffer {
	buf := archivePool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutArchive 는 MaxArchiveCap 이하인 버퍼만 되돌린다.
func PutArchive(buf *bytes.Buffer) {
	if buf.Cap() > MaxArchiveCap {
		return
	}
	buf.Reset()
	archivePool.Put(buf)
}

// GetGzip 은 w 로 쓰도록 Reset 된 gzip.Writer 를 꺼낸다.
// 사용 후 Close 한 다음 PutGzip 으로 돌려놓는다.
func GetGzip(w io.Writer) *gzip.Writer {
	gz := gzipPool.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

// PutGzip 은 writer 가 들고 있는 대상 참조를 끊고 pool 에 돌려놓는다.
func PutGzip(gz *gzip.Writer) {
	gz.Reset(io.Discard)
	gzipPool.Put(gz)
}
