// cwship 는 표준 입력의 로그 줄을 CloudWatch Logs 로 보내는 CLI 다.
//
//	myapp 2>&1 | cwship --group /app/web --stream web-1 --region ap-northeast-2
//
// 한 줄이 이벤트 하나다. --json 이면 zerolog 형식 JSON 줄로 해석해
// level / message / error 필드를 살린다. 입력이 끝나거나 SIGINT/SIGTERM 을 받으면
// --flush-timeout 안에서 남은 이벤트를 보내고 종료한다.
// flush 가 시간 안에 끝나지 않으면 exit code 1.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"cwship/internal/config"
	"cwship/internal/logger"
	"cwship/internal/model"
	"cwship/internal/sink"
	"cwship/internal/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader) error {
	cfg := config.Defaults()

	var (
		level    string
		jsonIn   bool
		accessID string
		secret   string
		token    string
	)

	flagSet := pflag.NewFlagSet("cwship", pflag.ContinueOnError)
	flagSet.StringVarP(&cfg.LogGroupName, "group", "g", os.Getenv("LOG_GROUP_NAME"), "CloudWatch log group")
	flagSet.StringVarP(&cfg.LogStreamName, "stream", "s", os.Getenv("LOG_STREAM_NAME"), "CloudWatch log stream (default: hostname)")
	flagSet.StringVar(&cfg.AWSRegion, "region", os.Getenv("AWS_REGION"), "AWS region")
	flagSet.StringVar(&accessID, "access-key-id", os.Getenv("CW_ACCESS_KEY_ID"), "static access key id")
	flagSet.StringVar(&secret, "secret-access-key", os.Getenv("CW_SECRET_ACCESS_KEY"), "static secret access key")
	flagSet.StringVar(&token, "session-token", os.Getenv("CW_SESSION_TOKEN"), "session token for temporary credentials")
	flagSet.StringVar(&cfg.ProxyServer, "proxy", os.Getenv("PROXY_SERVER"), "proxy URL for AWS calls")
	flagSet.StringVar(&cfg.Endpoint, "endpoint", os.Getenv("AWS_ENDPOINT"), "override AWS endpoint (localstack)")
	flagSet.IntVar(&cfg.RetentionInDays, "retention", 0, "log group retention in days (0: leave unchanged)")
	flagSet.DurationVar(&cfg.UploadRate, "upload-rate", cfg.UploadRate, "interval between uploads")
	flagSet.DurationVar(&cfg.FlushTimeout, "flush-timeout", cfg.FlushTimeout, "time allowed for the final flush")
	flagSet.BoolVar(&cfg.JSONMessage, "json-message", false, "send each event as a JSON document")
	flagSet.BoolVar(&jsonIn, "json", false, "parse input lines as zerolog JSON")
	flagSet.StringVar(&level, "level", "info", "level assigned to plain input lines")
	flagSet.StringVar(&cfg.TransportLevel, "min-level", cfg.TransportLevel, "drop events below this level")
	flagSet.StringVar(&cfg.LogLevel, "log-level", "warn", "diagnostic log level")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg.AWSAccessKeyID = accessID
	cfg.AWSSecretAccessKey = secret
	cfg.AWSSessionToken = token
	if cfg.LogStreamName == "" {
		cfg.LogStreamName, _ = os.Hostname()
	}
	cfg.InstanceID = cfg.LogStreamName
	cfg.ServiceName = "cwship"
	if err := cfg.Validate(); err != nil {
		return err
	}

	diag := logger.New(cfg, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	awsCfg, err := sink.LoadAWSConfig(context.Background(), sink.ClientOptions{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		SessionToken:    cfg.AWSSessionToken,
		ProxyURL:        cfg.ProxyServer,
		Endpoint:        cfg.Endpoint,
	})
	if err != nil {
		return err
	}

	cw := sink.NewCloudWatch(sink.NewCloudWatchClient(awsCfg, cfg.Endpoint), sink.CloudWatchOptions{
		CallTimeout: cfg.SinkCallTimeout,
		Retries:     cfg.SinkRetries,
		Logger:      &diag,
	})

	tr, err := transport.New(cw, transport.Options{
		Name:            "cwship",
		Level:           cfg.TransportLevel,
		LogGroupName:    transport.Static(cfg.LogGroupName),
		LogStreamName:   transport.Static(cfg.LogStreamName),
		RetentionInDays: cfg.RetentionInDays,
		UploadRate:      cfg.UploadRate,
		FlushTimeout:    cfg.FlushTimeout,
		SubmitTimeout:   cfg.SubmitTimeout,
		JSONMessage:     cfg.JSONMessage,
		Logger:          &diag,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	ship(ctx, tr, lines, level, jsonIn)

	select {
	case err := <-scanErr:
		if err != nil {
			diag.Error().Err(err).Msg("read input")
		}
	default:
	}

	if err := tr.Shutdown(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// ship 은 입력이 끝나거나 ctx 가 취소될 때까지 줄을 transport 로 넘긴다.
func ship(ctx context.Context, tr *transport.Transport, lines <-chan []byte, level string, jsonIn bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if jsonIn {
				_, _ = tr.Write(line)
				continue
			}
			tr.Log(ctx, &model.Record{Level: level, Message: string(line)})
		}
	}
}
