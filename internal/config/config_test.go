package config

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func fakeAWS(context.Context) (aws.Config, error) {
	return aws.Config{Region: "us-east-1"}, nil
}

func baseEnv() map[string]string {
	return map[string]string{
		"DYNAMODB_TABLE_NAME": "downloads",
		"SES_FROM_EMAIL":      "Download Status <downloads@example.com>",
		"GOOGLE_CLOUD_BUCKET": "releases",
	}
}

func TestLoadDefaults(t *testing.T) {
	s, err := load(context.Background(), lookupFrom(baseEnv()), fakeAWS)
	require.NoError(t, err)

	assert.Equal(t, "downloads", s.DynamoDBTableName)
	assert.Equal(t, BackendGCS, s.StorageBackend)
	assert.Equal(t, "releases", s.Bucket)
	assert.Equal(t, "github-release", s.ObjectKeyPrefix)
	assert.True(t, s.ObjectKeyRandom)
	assert.True(t, s.SignedURLEnabled)
	assert.Equal(t, time.Hour, s.SignedURLTTL)
	assert.Equal(t, int64(256<<20), s.MaxArtifactBytes)
	assert.Equal(t, 3, s.RetryMaxAttempts)
	assert.Equal(t, 30*time.Second, s.FetchTimeout)
	assert.Equal(t, slog.LevelInfo, s.LogLevel)
	assert.Equal(t, "us-east-1", s.AWSConfig.Region)
	assert.Empty(t, s.IdempotencyTableName)
	assert.Equal(t, 15*time.Minute, s.ClaimLease)
	assert.Empty(t, s.DeadLetterQueueURL)
	assert.Nil(t, s.GCPCredentialsJSON)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["STORAGE_BACKEND"] = "S3"
	env["S3_BUCKET"] = "artifacts"
	env["SIGNED_URL_ENABLED"] = "false"
	env["SIGNED_URL_TTL"] = "15m"
	env["OBJECT_KEY_RANDOM_SUFFIX"] = "false"
	env["RETRY_MAX_ATTEMPTS"] = "5"
	env["LOG_LEVEL"] = "debug"
	env["DEAD_LETTER_QUEUE_URL"] = "https://sqs.local/dlq"
	env["IDEMPOTENCY_TABLE_NAME"] = "claims"
	env["CLAIM_LEASE"] = "5m"
	env["GCP_SERVICE_ACCOUNT_KEY"] = base64.StdEncoding.EncodeToString([]byte(`{"type":"service_account"}`))

	s, err := load(context.Background(), lookupFrom(env), fakeAWS)
	require.NoError(t, err)

	assert.Equal(t, BackendS3, s.StorageBackend)
	assert.Equal(t, "artifacts", s.Bucket)
	assert.False(t, s.SignedURLEnabled)
	assert.Equal(t, 15*time.Minute, s.SignedURLTTL)
	assert.False(t, s.ObjectKeyRandom)
	assert.Equal(t, 5, s.RetryMaxAttempts)
	assert.Equal(t, slog.LevelDebug, s.LogLevel)
	assert.Equal(t, "https://sqs.local/dlq", s.DeadLetterQueueURL)
	assert.Equal(t, "claims", s.IdempotencyTableName)
	assert.Equal(t, 5*time.Minute, s.ClaimLease)
	assert.JSONEq(t, `{"type":"service_account"}`, string(s.GCPCredentialsJSON))
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   string
	}{
		{"missing table", func(e map[string]string) { delete(e, "DYNAMODB_TABLE_NAME") }, "missing DYNAMODB_TABLE_NAME"},
		{"missing from", func(e map[string]string) { e["SES_FROM_EMAIL"] = "  " }, "missing SES_FROM_EMAIL"},
		{"missing gcs bucket", func(e map[string]string) { delete(e, "GOOGLE_CLOUD_BUCKET") }, "missing GOOGLE_CLOUD_BUCKET"},
		{"missing s3 bucket", func(e map[string]string) { e["STORAGE_BACKEND"] = "s3" }, "missing S3_BUCKET"},
		{"unknown backend", func(e map[string]string) { e["STORAGE_BACKEND"] = "azure" }, "unsupported STORAGE_BACKEND"},
		{"bad key", func(e map[string]string) { e["GCP_SERVICE_ACCOUNT_KEY"] = "%%%" }, "decode GCP_SERVICE_ACCOUNT_KEY"},
		{"bad bool", func(e map[string]string) { e["SIGNED_URL_ENABLED"] = "maybe" }, "invalid SIGNED_URL_ENABLED"},
		{"bad duration", func(e map[string]string) { e["FETCH_TIMEOUT"] = "soon" }, "invalid FETCH_TIMEOUT"},
		{"negative duration", func(e map[string]string) { e["AUDIT_TIMEOUT"] = "-1s" }, "must be positive"},
		{"bad int", func(e map[string]string) { e["MAX_ARTIFACT_BYTES"] = "lots" }, "invalid MAX_ARTIFACT_BYTES"},
		{"zero attempts", func(e map[string]string) { e["RETRY_MAX_ATTEMPTS"] = "0" }, "RETRY_MAX_ATTEMPTS must be at least 1"},
		{"bad level", func(e map[string]string) { e["LOG_LEVEL"] = "loud" }, "invalid LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			tt.mutate(env)
			_, err := load(context.Background(), lookupFrom(env), fakeAWS)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadAWSFailure(t *testing.T) {
	boom := errors.New("no credentials")
	_, err := load(context.Background(), lookupFrom(baseEnv()), func(context.Context) (aws.Config, error) {
		return aws.Config{}, boom
	})
	assert.ErrorIs(t, err, boom)
}
