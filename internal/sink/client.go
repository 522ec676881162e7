package sink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientOptions
//
// AWS client 생성 옵션.
//   - Region 만 있으면 기본 credential chain (IAM Role, env, profile) 사용
//   - AccessKeyID + SecretAccessKey 가 모두 있으면 static credential 사용
//   - SessionToken 은 static credential 과 함께일 때만 의미가 있다 (STS 임시 키)
//   - ProxyURL 은 이 client 에만 적용된다 (프로세스 전역 설정을 바꾸지 않음)
//   - Endpoint 는 localstack 등 테스트 환경용
type ClientOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ProxyURL        string
	Endpoint        string
}

// LoadAWSConfig 는 ClientOptions 로 aws.Config 를 만든다.
func LoadAWSConfig(ctx context.Context, o ClientOptions) (aws.Config, error) {
	var opts []func(*awsCfgLib.LoadOptions) error

	if o.Region != "" {
		opts = append(opts, awsCfgLib.WithRegion(o.Region))
	}

	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		opts = append(opts, awsCfgLib.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, o.SessionToken),
		))
	}

	if o.ProxyURL != "" {
		proxy, err := url.Parse(o.ProxyURL)
		if err != nil {
			return aws.Config{}, fmt.Errorf("sink: invalid proxy url %q: %w", o.ProxyURL, err)
		}
		client := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			tr.Proxy = http.ProxyURL(proxy)
		})
		opts = append(opts, awsCfgLib.WithHTTPClient(client))
	}

	cfg, err := awsCfgLib.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("sink: load aws config: %w", err)
	}
	return cfg, nil
}

// NewCloudWatchClient 는 SDK 재시도를 끈 CloudWatch Logs client 를 만든다.
// 재시도는 retryPolicy 에서만 수행한다 (SDK retry 와 겹치면 지연 예측이 어려움).
func NewCloudWatchClient(cfg aws.Config, endpoint string) *cloudwatchlogs.Client {
	return cloudwatchlogs.NewFromConfig(cfg, func(o *cloudwatchlogs.Options) {
		o.Retryer = aws.NopRetryer{}
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// NewS3Client 는 archive sink 용 S3 client 를 만든다.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.Retryer = aws.NopRetryer{}
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}
