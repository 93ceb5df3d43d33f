package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Storage backends accepted in STORAGE_BACKEND.
const (
	BackendGCS = "gcs"
	BackendS3  = "s3"
)

// Settings holds resolved configuration and shared AWS config.
type Settings struct {
	AWSConfig aws.Config

	DynamoDBTableName    string
	DynamoDBEndpoint     string
	IdempotencyTableName string
	ClaimLease           time.Duration
	DeadLetterQueueURL   string
	StorageBackend       string
	Bucket               string
	GCPProject           string
	GCPCredentialsJSON   []byte
	ObjectKeyPrefix      string
	ObjectKeyRandom      bool
	SignedURLEnabled     bool
	SignedURLTTL         time.Duration
	MaxArtifactBytes     int64
	SESFromEmail         string
	RetryMaxAttempts     int
	FetchTimeout         time.Duration
	StoreTimeout         time.Duration
	NotifyTimeout        time.Duration
	AuditTimeout         time.Duration
	LogLevel             slog.Level
}

// WorkerSettings is the subset needed by the dead-letter replay worker.
type WorkerSettings struct {
	AWSConfig         aws.Config
	DynamoDBTableName string
	DynamoDBEndpoint  string
	LogLevel          slog.Level
}

// Load reads environment variables and AWS configuration.
func Load(ctx context.Context) (Settings, error) {
	return load(ctx, os.LookupEnv, loadAWS)
}

// LoadWorker reads the environment for the dead-letter replay worker.
func LoadWorker(ctx context.Context) (WorkerSettings, error) {
	awsCfg, err := loadAWS(ctx)
	if err != nil {
		return WorkerSettings{}, err
	}
	env := reader{lookup: os.LookupEnv}
	tableName := env.str("DYNAMODB_TABLE_NAME", "")
	if tableName == "" {
		return WorkerSettings{}, fmt.Errorf("missing DYNAMODB_TABLE_NAME")
	}
	level := env.level("LOG_LEVEL")
	if env.err != nil {
		return WorkerSettings{}, env.err
	}
	return WorkerSettings{
		AWSConfig:         awsCfg,
		DynamoDBTableName: tableName,
		DynamoDBEndpoint:  env.str("DYNAMODB_ENDPOINT", ""),
		LogLevel:          level,
	}, nil
}

func loadAWS(ctx context.Context) (aws.Config, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}

func load(ctx context.Context, lookup func(string) (string, bool), awsLoader func(context.Context) (aws.Config, error)) (Settings, error) {
	env := reader{lookup: lookup}

	tableName := env.str("DYNAMODB_TABLE_NAME", "")
	if tableName == "" {
		return Settings{}, fmt.Errorf("missing DYNAMODB_TABLE_NAME")
	}

	from := env.str("SES_FROM_EMAIL", "")
	if from == "" {
		return Settings{}, fmt.Errorf("missing SES_FROM_EMAIL")
	}

	backend := strings.ToLower(env.str("STORAGE_BACKEND", BackendGCS))
	var bucket string
	switch backend {
	case BackendGCS:
		bucket = env.str("GOOGLE_CLOUD_BUCKET", "")
		if bucket == "" {
			return Settings{}, fmt.Errorf("missing GOOGLE_CLOUD_BUCKET")
		}
	case BackendS3:
		bucket = env.str("S3_BUCKET", "")
		if bucket == "" {
			return Settings{}, fmt.Errorf("missing S3_BUCKET")
		}
	default:
		return Settings{}, fmt.Errorf("unsupported STORAGE_BACKEND %q", backend)
	}

	var creds []byte
	if encoded := env.str("GCP_SERVICE_ACCOUNT_KEY", ""); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return Settings{}, fmt.Errorf("decode GCP_SERVICE_ACCOUNT_KEY: %w", err)
		}
		creds = decoded
	}

	settings := Settings{
		DynamoDBTableName:    tableName,
		DynamoDBEndpoint:     env.str("DYNAMODB_ENDPOINT", ""),
		IdempotencyTableName: env.str("IDEMPOTENCY_TABLE_NAME", ""),
		ClaimLease:           env.duration("CLAIM_LEASE", 15*time.Minute),
		DeadLetterQueueURL:   env.str("DEAD_LETTER_QUEUE_URL", ""),
		StorageBackend:       backend,
		Bucket:               bucket,
		GCPProject:           env.str("GCP_PROJECT", ""),
		GCPCredentialsJSON:   creds,
		ObjectKeyPrefix:      env.str("OBJECT_KEY_PREFIX", "github-release"),
		ObjectKeyRandom:      env.boolean("OBJECT_KEY_RANDOM_SUFFIX", true),
		SignedURLEnabled:     env.boolean("SIGNED_URL_ENABLED", true),
		SignedURLTTL:         env.duration("SIGNED_URL_TTL", time.Hour),
		MaxArtifactBytes:     env.int64("MAX_ARTIFACT_BYTES", 256<<20),
		SESFromEmail:         from,
		RetryMaxAttempts:     int(env.int64("RETRY_MAX_ATTEMPTS", 3)),
		FetchTimeout:         env.duration("FETCH_TIMEOUT", 30*time.Second),
		StoreTimeout:         env.duration("STORE_TIMEOUT", 60*time.Second),
		NotifyTimeout:        env.duration("NOTIFY_TIMEOUT", 10*time.Second),
		AuditTimeout:         env.duration("AUDIT_TIMEOUT", 10*time.Second),
		LogLevel:             env.level("LOG_LEVEL"),
	}
	if env.err != nil {
		return Settings{}, env.err
	}
	if settings.RetryMaxAttempts < 1 {
		return Settings{}, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}

	awsCfg, err := awsLoader(ctx)
	if err != nil {
		return Settings{}, err
	}
	settings.AWSConfig = awsCfg
	return settings, nil
}

// reader keeps the first parse error so Load can report it once.
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) str(key, def string) string {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return def
	}
	return v
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	if d <= 0 {
		r.fail(fmt.Errorf("invalid %s %q: must be positive", key, v))
		return def
	}
	return d
}

func (r *reader) int64(key string, def int64) int64 {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return n
}

func (r *reader) level(key string) slog.Level {
	v := r.str(key, "")
	if v == "" {
		return slog.LevelInfo
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		r.fail(fmt.Errorf("invalid %s %q: %w", key, v, err))
		return slog.LevelInfo
	}
	return lvl
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
