package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"cwship/internal/metrics"
	"cwship/internal/model"
)

// S3API 는 S3Archive 가 사용하는 client 메서드다.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ArchiveOptions 는 S3Archive 설정이다.
type S3ArchiveOptions struct {
	Bucket      string
	Prefix      string        // key prefix (예: "logs")
	InstanceID  string        // 파일명에 들어가는 프로세스 식별자
	CallTimeout time.Duration // PutObject 1회 timeout
	Retries     int           // 최대 시도 횟수
	Metrics     *metrics.Metrics
	Logger      *zerolog.Logger
}

// S3Archive
//
// partition 을 gzip+JSONL 오브젝트 하나로 S3 에 저장하는 sink.
// CloudWatch 보존 기간보다 오래 보관하거나 Athena 로 조회할 때 쓴다.
// retentionInDays 는 무시한다 (S3 lifecycle rule 로 관리).
type S3Archive struct {
	client S3API
	opts   S3ArchiveOptions
	policy retryPolicy
	log    zerolog.Logger
	now    func() time.Time
}

// NewS3Archive 는 S3Archive 를 만든다.
func NewS3Archive(client S3API, opts S3ArchiveOptions) (*S3Archive, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 archive: bucket is required")
	}
	if opts.InstanceID == "" {
		opts.InstanceID = "cwship"
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	l := zlog.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}

	return &S3Archive{
		client: client,
		opts:   opts,
		policy: retryPolicy{attempts: opts.Retries, timeout: opts.CallTimeout, metrics: opts.Metrics},
		log:    l.With().Str("sink", "s3").Str("bucket", opts.Bucket).Logger(),
		now:    time.Now,
	}, nil
}

// Upload 는 transport.Sink 구현이다.
func (a *S3Archive) Upload(ctx context.Context, group, stream string, events []model.InputEvent, _ int) error {
	if len(events) == 0 {
		return nil
	}

	data, err := encodeJSONLGZ(group, stream, events)
	if err != nil {
		return fmt.Errorf("s3 archive: encode %s/%s: %w", group, stream, err)
	}

	now := a.now()
	key := buildS3Key(a.opts.Prefix, group, stream, newFilename(a.opts.InstanceID, now), now)

	if err := a.uploadBytes(ctx, key, data); err != nil {
		return fmt.Errorf("s3 archive: put %s: %w", key, err)
	}

	a.log.Debug().Str("key", key).Int("events", len(events)).Int("bytes", len(data)).Msg("archived")
	return nil
}

// uploadBytes 는 메모리에 있는 gzip 바이트를 retry + backoff 로 업로드한다.
// body reader 는 재시도마다 새로 만들어야 하므로 bytes.NewReader 를 매번 생성한다.
func (a *S3Archive) uploadBytes(ctx context.Context, key string, body []byte) error {
	return a.policy.do(ctx, func(callCtx context.Context) (bool, error) {
		_, err := a.client.PutObject(callCtx, &s3.PutObjectInput{
			Bucket:          aws.String(a.opts.Bucket),
			Key:             aws.String(key),
			Body:            bytes.NewReader(body),
			ContentLength:   aws.Int64(int64(len(body))),
			ContentType:     aws.String("application/x-ndjson"),
			ContentEncoding: aws.String("gzip"),
		})
		return isRetryable(ctx, err), err
	})
}
