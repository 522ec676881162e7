package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"cwship/internal/config"
	"cwship/internal/metrics"
	"cwship/internal/model"
	"cwship/internal/pool"
)

// Logger 는 Handler 가 레코드를 넘기는 대상이다 (*transport.Transport 가 구현).
type Logger interface {
	Log(ctx context.Context, rec *model.Record)
}

type Handler struct {
	cfg     config.Config
	metrics *metrics.Metrics
	logs    Logger
}

func NewHandler(cfg config.Config, m *metrics.Metrics, logs Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		metrics: m,
		logs:    logs,
	}
}

// HandleLog
//
// POST /log : JSON lines 본문을 레코드로 바꿔 transport 에 적재한다.
//
// 한 줄 형식:
//
//	{"level":"error","message":"db timeout","error":"dial tcp: i/o timeout","group":"app","stream":"api-1","user":"u-42"}
//
//   - level / message / error / time 외의 키는 전부 Record.Fields 로 들어간다
//     (group / stream 필드는 Field resolver 가 destination 계산에 사용)
//   - 요청한 클라이언트 IP 가 client_ip 필드로 추가된다
//   - 잘못된 JSON 줄은 건너뛰고, 유효한 줄이 하나도 없으면 400
//
// transport 적재는 절대 실패하지 않으므로, 정상 요청은 항상 202 로 바로 응답한다.
func (h *Handler) HandleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	atomic.AddInt64(&h.metrics.HTTPRequestsTotal, 1)

	// --------------------------------------------------------------------
	// 요청 Body 최대 크기 제한 + BodyPool 버퍼 재사용
	// --------------------------------------------------------------------
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	buf := pool.GetBody()
	defer pool.PutBody(buf, h.cfg.MaxBodySize*2)

	if _, err := io.Copy(buf, r.Body); err != nil {
		atomic.AddInt64(&h.metrics.HTTPRequestsRejectedTotal, 1)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ip := clientIP(r)
	accepted := 0

	sc := bufio.NewScanner(buf)
	sc.Buffer(make([]byte, 0, 64*1024), int(h.cfg.MaxBodySize)+1)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := model.DecodeRecord(line, model.DefaultFieldNames)
		if err != nil {
			continue
		}
		if ip != "" {
			if rec.Fields == nil {
				rec.Fields = make(map[string]any, 1)
			}
			rec.Fields["client_ip"] = ip
		}
		h.logs.Log(r.Context(), rec)
		accepted++
	}

	if accepted == 0 {
		atomic.AddInt64(&h.metrics.HTTPRequestsRejectedTotal, 1)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	atomic.AddInt64(&h.metrics.HTTPRequestsAcceptedTotal, 1)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, `{"accepted":%d}`, accepted)
}

// HandleMetrics 는 카운터 값을 key=value 줄로 출력한다.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}
