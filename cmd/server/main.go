package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"

	"cwship/internal/config"
	"cwship/internal/logger"
	"cwship/internal/metrics"
	"cwship/internal/server"
	"cwship/internal/sink"
	"cwship/internal/transport"
)

func main() {

	// ====================================================================
	// CPU 설정 (Fargate vCPU 대응)
	// ====================================================================
	//
	// Fargate 0.25 / 0.5 vCPU 태스크에서 GOMAXPROCS 를 기본값으로 두면
	// 런타임이 호스트 코어 수만큼 P 를 만들어 스케줄링 낭비가 생긴다.
	// 환경 변수로 지정하지 않으면 1 로 고정한다.
	// ====================================================================
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(1)
	}

	// ====================================================================
	// Config / Logger / Metrics
	// ====================================================================
	//
	//   - Config: 기본값 < YAML(CWSHIP_CONFIG) < 환경 변수
	//   - Logger: transport 진단 로그 (zerolog, stderr)
	//   - Metrics: /metrics 로 노출되는 내부 카운터
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	// ====================================================================
	// Sink 구성 (CloudWatch + 선택적 S3 archive)
	// ====================================================================
	//
	// SDK 자체 재시도는 끄고 sink 의 retryPolicy 만 사용한다.
	// ARCHIVE_BUCKET 이 있으면 같은 partition 을 S3 에도 gzip JSONL 로 남긴다.
	// ====================================================================
	awsCfg, err := sink.LoadAWSConfig(context.Background(), sink.ClientOptions{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		SessionToken:    cfg.AWSSessionToken,
		ProxyURL:        cfg.ProxyServer,
		Endpoint:        cfg.Endpoint,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load aws config")
	}

	var out transport.Sink = sink.NewCloudWatch(
		sink.NewCloudWatchClient(awsCfg, cfg.Endpoint),
		sink.CloudWatchOptions{
			CallTimeout: cfg.SinkCallTimeout,
			Retries:     cfg.SinkRetries,
			Metrics:     m,
		},
	)

	if cfg.ArchiveBucket != "" {
		archive, err := sink.NewS3Archive(sink.NewS3Client(awsCfg, cfg.Endpoint), sink.S3ArchiveOptions{
			Bucket:      cfg.ArchiveBucket,
			Prefix:      cfg.ArchivePrefix,
			InstanceID:  cfg.InstanceID,
			CallTimeout: cfg.SinkCallTimeout,
			Retries:     cfg.SinkRetries,
			Metrics:     m,
		})
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to create s3 archive")
		}
		out = sink.NewMulti(out, archive)
	}

	// ====================================================================
	// Transport
	// ====================================================================
	//
	// HTTP 로 들어온 레코드의 group / stream 필드가 있으면 그 값을,
	// 없으면 설정된 기본 group / stream 을 사용한다.
	// ====================================================================
	tr, err := transport.New(out, transport.Options{
		Name:                 cfg.TransportName,
		Level:                cfg.TransportLevel,
		LogGroupName:         transport.Field("group", cfg.LogGroupName),
		LogStreamName:        transport.Field("stream", cfg.LogStreamName),
		RetentionInDays:      cfg.RetentionInDays,
		UploadRate:           cfg.UploadRate,
		FlushTimeout:         cfg.FlushTimeout,
		SubmitTimeout:        cfg.SubmitTimeout,
		MaxConcurrentUploads: cfg.MaxConcurrentUploads,
		RequeueFailed:        cfg.RequeueFailed,
		JSONMessage:          cfg.JSONMessage,
		Metrics:              m,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to create transport")
	}

	// ====================================================================
	// HTTP Handler
	// ====================================================================
	//
	//  - /log     : JSON lines 수집
	//  - /metrics : 운영 지표
	//  - /health  : ALB Target Group health check
	// ====================================================================
	h := server.NewHandler(cfg, m, tr)

	mux := http.NewServeMux()
	mux.HandleFunc("/log", h.HandleLog)
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 8 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ====================================================================
	// Graceful Shutdown
	// ====================================================================
	//
	// SIGTERM 수신 시:
	//   1) HTTP 서버를 먼저 닫아 새 레코드 유입을 막고
	//   2) transport 를 FLUSH_TIMEOUT 안에서 best-effort flush 한다.
	//
	// ECS stop timeout(기본 30초)보다 FLUSH_TIMEOUT + HTTP 종료 시간이 짧아야 한다.
	// ====================================================================
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		sig := <-sigCh
		zlog.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			zlog.Error().Err(err).Msg("http shutdown")
		}
		cancel()
	}()

	zlog.Info().Str("addr", cfg.HTTPAddr).Str("group", cfg.LogGroupName).Msg("log shipper listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zlog.Fatal().Err(err).Msg("http server terminated")
	}
	<-done

	if err := tr.Shutdown(); err != nil {
		zlog.Error().Err(err).Msg("transport flush incomplete")
		os.Exit(1)
	}
	zlog.Info().Msg("shutdown complete")
}
