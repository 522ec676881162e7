// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"cwship/internal/config"
)

// Init
//
// 프로세스 시작 시 한 번 호출되는 진단 로거 초기화 함수.
// transport 자체의 상태(타이머 생성, submit 실패, flush timeout 등)를 남기는 용도이며,
// CloudWatch 로 보내는 애플리케이션 로그와는 별개의 채널이다.
//
//  1. 포맷: LOG_PRETTY=true 면 콘솔 텍스트, 아니면 JSON (stderr)
//  2. 공통 필드: service, instance
//  3. 샘플링: LOG_SAMPLE_N > 1 이면 debug/info 만 1/N 기록, warn/error 는 전부 기록
//  4. 전역 logger 교체 + 표준 log 패키지 출력도 zerolog 로 연결
func Init(cfg config.Config) {
	var w io.Writer = os.Stderr
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		}
	}

	zlog.Logger = New(cfg, w)

	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// New 는 cfg 규칙대로 w 에 쓰는 logger 를 만든다. 전역 상태는 바꾸지 않는다.
func New(cfg config.Config, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	if cfg.LogSampleN > 1 {
		// Warn/Error 는 샘플링하지 않음 (nil)
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return base
}
