package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"release-ingest/internal/models"
)

type fakeReplayer struct {
	existing map[string]bool
	fail     map[string]error
	written  []models.AuditRecord
}

func (f *fakeReplayer) Replay(_ context.Context, record models.AuditRecord) (bool, error) {
	key := record.Email + "/" + record.FileName
	if err := f.fail[key]; err != nil {
		return false, err
	}
	if f.existing[key] {
		return false, nil
	}
	f.written = append(f.written, record)
	return true, nil
}

func letterBody(t *testing.T, email, fileName string) string {
	t.Helper()
	body, err := json.Marshal(models.NewDeadLetter(models.AuditRecord{
		Email:    email,
		FileName: fileName,
		Status:   models.StatusEmailSent,
	}, "table unavailable"))
	require.NoError(t, err)
	return string(body)
}

func TestReplayBatch(t *testing.T) {
	r := &fakeReplayer{
		existing: map[string]bool{"b@c.com/k-2": true},
		fail:     map[string]error{"c@d.com/k-3": errors.New("throttled")},
	}
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "1", Body: letterBody(t, "a@b.com", "k-1")},
		{MessageId: "2", Body: letterBody(t, "b@c.com", "k-2")},
		{MessageId: "3", Body: letterBody(t, "c@d.com", "k-3")},
		{MessageId: "4", Body: "not json"},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	resp := replayBatch(context.Background(), r, event, logger)

	require.Len(t, r.written, 1)
	assert.Equal(t, "k-1", r.written[0].FileName)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "3"}}, resp.BatchItemFailures)
}
