// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config
//
// 서비스 실행 시 필요한 설정 값 모음.
// Load() 가 프로세스 시작 시점에 한 번 채우며 이후에는 read-only 로 취급한다.
//
// 우선순위: 기본값 < CWSHIP_CONFIG 가 가리키는 YAML 파일 < 환경 변수
type Config struct {

	// ---------------------------
	// AWS / CloudWatch 기본 환경
	// ---------------------------

	AWSRegion          string `yaml:"aws_region"`            // AWS 리전 (예: ap-northeast-2)
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`     // 비어 있으면 기본 credential chain
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"` // AccessKeyID 와 함께 있어야 적용
	AWSSessionToken    string `yaml:"aws_session_token"`     // STS 임시 자격 증명일 때만
	ProxyServer        string `yaml:"proxy_server"`          // CloudWatch/S3 client 전용 프록시 URL
	Endpoint           string `yaml:"endpoint"`              // localstack 등 테스트용 endpoint

	LogGroupName    string `yaml:"log_group_name"`    // 기본 log group
	LogStreamName   string `yaml:"log_stream_name"`   // 기본 log stream (비어 있으면 InstanceID)
	RetentionInDays int    `yaml:"retention_in_days"` // 0 = retention 설정 안 함

	// ---------------------------
	// Transport 파라미터
	// ---------------------------

	TransportName        string        `yaml:"transport_name"`         // transport 식별자
	TransportLevel       string        `yaml:"transport_level"`        // 전송 최소 severity
	UploadRate           time.Duration `yaml:"upload_rate"`            // flush 타이머 주기
	FlushTimeout         time.Duration `yaml:"flush_timeout"`          // shutdown best-effort flush 허용 시간
	SubmitTimeout        time.Duration `yaml:"submit_timeout"`         // tick 1회 submit timeout
	MaxConcurrentUploads int           `yaml:"max_concurrent_uploads"` // cycle 당 동시 partition 업로드 수 (0 = 무제한)
	RequeueFailed        bool          `yaml:"requeue_failed"`         // 실패 partition 재전송 여부
	JSONMessage          bool          `yaml:"json_message"`           // JSON 메시지 포맷 사용

	// ---------------------------
	// Sink 재시도
	// ---------------------------
	// SDK retryer 는 항상 꺼져 있고 (sink.NewCloudWatchClient),
	// 재시도 횟수는 오직 SinkRetries 로만 결정한다.

	SinkCallTimeout time.Duration `yaml:"sink_call_timeout"` // API 호출 1회 timeout
	SinkRetries     int           `yaml:"sink_retries"`      // API 호출당 최대 시도 횟수

	// ---------------------------
	// S3 archive (선택)
	// ---------------------------

	ArchiveBucket string `yaml:"archive_bucket"` // 비어 있으면 archive 비활성
	ArchivePrefix string `yaml:"archive_prefix"` // archive key prefix

	// ---------------------------
	// 서버 식별자 / 네트워크
	// ---------------------------

	InstanceID  string `yaml:"instance_id"`   // 프로세스 고유 ID (호스트명 기반, 실패 시 랜덤 hex)
	HTTPAddr    string `yaml:"http_addr"`     // HTTP 서버 bind 주소
	MaxBodySize int64  `yaml:"max_body_size"` // /log 요청 body 최대 크기 (바이트)

	// ---------------------------
	// 진단 로그 (zerolog)
	// ---------------------------

	ServiceName string `yaml:"service_name"` // 모든 로그에 붙는 service 필드
	LogLevel    string `yaml:"log_level"`    // 진단 로그 레벨
	LogPretty   bool   `yaml:"log_pretty"`   // true: 콘솔 포맷, false: JSON
	LogSampleN  uint32 `yaml:"log_sample_n"` // >1 이면 debug/info 를 N 개 중 1 개만 기록
}

// Defaults 는 환경 변수/파일이 없을 때의 기본값이다.
func Defaults() Config {
	return Config{
		RetentionInDays: 0,

		TransportName:  "CloudWatch",
		TransportLevel: "info",
		UploadRate:     2 * time.Second,
		FlushTimeout:   10 * time.Second,
		SubmitTimeout:  30 * time.Second,

		SinkCallTimeout: 5 * time.Second,
		SinkRetries:     3,

		ArchivePrefix: "logs",

		HTTPAddr:    ":8080",
		MaxBodySize: 1 << 20,

		ServiceName: "cwship",
		LogLevel:    "info",
	}
}

// Load
//
// 설정을 읽고 검증한다.
// 필수 값이 없거나 형식이 잘못되면 즉시 프로세스를 종료한다 (fail-fast).
func Load() Config {
	cfg, err := loadFrom(os.LookupEnv)
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg
}

// loadFrom 은 Load 의 테스트 가능한 본체다. lookup 은 os.LookupEnv 와 같은 형태.
func loadFrom(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if path, ok := lookup("CWSHIP_CONFIG"); ok && path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	e := envReader{lookup: lookup}

	e.text("AWS_REGION", &cfg.AWSRegion)
	e.text("CW_ACCESS_KEY_ID", &cfg.AWSAccessKeyID)
	e.text("CW_SECRET_ACCESS_KEY", &cfg.AWSSecretAccessKey)
	e.text("CW_SESSION_TOKEN", &cfg.AWSSessionToken)
	e.text("PROXY_SERVER", &cfg.ProxyServer)
	e.text("AWS_ENDPOINT", &cfg.Endpoint)

	e.text("LOG_GROUP_NAME", &cfg.LogGroupName)
	e.text("LOG_STREAM_NAME", &cfg.LogStreamName)
	e.integer("RETENTION_IN_DAYS", &cfg.RetentionInDays)

	e.text("TRANSPORT_NAME", &cfg.TransportName)
	e.text("TRANSPORT_LEVEL", &cfg.TransportLevel)
	e.duration("UPLOAD_RATE", &cfg.UploadRate)
	e.duration("FLUSH_TIMEOUT", &cfg.FlushTimeout)
	e.duration("SUBMIT_TIMEOUT", &cfg.SubmitTimeout)
	e.integer("MAX_CONCURRENT_UPLOADS", &cfg.MaxConcurrentUploads)
	e.flag("REQUEUE_FAILED", &cfg.RequeueFailed)
	e.flag("JSON_MESSAGE", &cfg.JSONMessage)

	e.duration("SINK_CALL_TIMEOUT", &cfg.SinkCallTimeout)
	e.integer("SINK_RETRIES", &cfg.SinkRetries)

	e.text("ARCHIVE_BUCKET", &cfg.ArchiveBucket)
	e.text("ARCHIVE_PREFIX", &cfg.ArchivePrefix)

	e.text("INSTANCE_ID", &cfg.InstanceID)
	e.text("HTTP_ADDR", &cfg.HTTPAddr)
	e.integer64("MAX_BODY_SIZE", &cfg.MaxBodySize)

	e.text("SERVICE_NAME", &cfg.ServiceName)
	e.text("LOG_LEVEL", &cfg.LogLevel)
	e.flag("LOG_PRETTY", &cfg.LogPretty)
	e.unsigned32("LOG_SAMPLE_N", &cfg.LogSampleN)

	if e.err != nil {
		return Config{}, e.err
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = fallbackInstanceID()
	}
	if cfg.LogStreamName == "" {
		cfg.LogStreamName = cfg.InstanceID
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile 은 YAML 설정 파일을 cfg 위에 덮어쓴다.
// 파일에 없는 키는 기존 값(기본값)을 유지한다.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate 는 필수 값과 범위를 검사한다.
func (c Config) Validate() error {
	var errs []error

	if c.AWSRegion == "" {
		errs = append(errs, errors.New("missing required AWS_REGION"))
	}
	if c.LogGroupName == "" {
		errs = append(errs, errors.New("missing required LOG_GROUP_NAME"))
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		errs = append(errs, errors.New("CW_ACCESS_KEY_ID and CW_SECRET_ACCESS_KEY must be set together"))
	}
	if c.AWSSessionToken != "" && c.AWSAccessKeyID == "" {
		errs = append(errs, errors.New("CW_SESSION_TOKEN requires CW_ACCESS_KEY_ID and CW_SECRET_ACCESS_KEY"))
	}
	if c.RetentionInDays < 0 {
		errs = append(errs, fmt.Errorf("invalid RETENTION_IN_DAYS=%d", c.RetentionInDays))
	}
	if c.UploadRate <= 0 {
		errs = append(errs, fmt.Errorf("invalid UPLOAD_RATE=%s", c.UploadRate))
	}
	if c.FlushTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid FLUSH_TIMEOUT=%s", c.FlushTimeout))
	}
	if c.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_BODY_SIZE=%d", c.MaxBodySize))
	}

	return errors.Join(errs...)
}

// envReader
//
// 환경 변수를 읽어 대상 필드에 덮어쓴다.
// 변수가 없으면 기존 값을 유지하고, 형식이 잘못되면 에러를 누적한다.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(key, v string, err error) {
	e.err = errors.Join(e.err, fmt.Errorf("invalid env %s=%q: %w", key, v, err))
}

func (e *envReader) text(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) integer64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) unsigned32(key string, dst *uint32) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = uint32(n)
	}
}

func (e *envReader) flag(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

// fallbackInstanceID
//
// 이 프로세스를 식별하는 고유 값.
//   - 기본: hostname (ECS/Fargate 에서는 task-id 형태로 고유)
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
