// Package pipeline runs one submission through fetch, store, link, notify
// and audit.
//
// Fetch, store and link are attempted once. Any failure among them switches
// to the failure path, which sends a failure email and writes a Failed audit
// record. Notify and audit are independent best-effort steps on every path:
// each is retried with backoff and a failure of one never skips the other.
// An audit record that still cannot be written is parked on the dead-letter
// queue; only when that also fails does Run return an error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"release-ingest/internal/audit"
	"release-ingest/internal/envelope"
	"release-ingest/internal/models"
	"release-ingest/internal/notify"
)

// Fetcher retrieves artifact bytes.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) ([]byte, error)
}

// Storer persists artifacts and mints retrieval links.
type Storer interface {
	Put(ctx context.Context, data []byte) (models.StoredArtifact, error)
	Link(ctx context.Context, artifact models.StoredArtifact) (models.StoredArtifact, error)
}

// Notifier emails the requester.
type Notifier interface {
	Success(ctx context.Context, req models.SubmissionRequest, artifact models.StoredArtifact) error
	Failure(ctx context.Context, req models.SubmissionRequest, errMessage string) error
}

// Auditor appends audit records.
type Auditor interface {
	Record(ctx context.Context, record models.AuditRecord) error
}

// Claimer guards against redelivered submissions. A claim is completed once
// the submission's audit record is safe and released when it was lost, so
// the redelivery can write it.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Complete(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// DeadLetterer parks audit records that could not be written.
type DeadLetterer interface {
	Publish(ctx context.Context, letter models.DeadLetter) error
}

// Timeouts bounds each stage. Zero leaves the stage bounded only by the
// invocation context.
type Timeouts struct {
	Fetch  time.Duration
	Store  time.Duration
	Notify time.Duration
	Audit  time.Duration
}

// Config wires a Pipeline. Claims and DeadLetters are optional.
type Config struct {
	Fetcher     Fetcher
	Storer      Storer
	Notifier    Notifier
	Auditor     Auditor
	Claims      Claimer
	DeadLetters DeadLetterer
	Timeouts    Timeouts
	// MaxAttempts bounds notify and audit attempts. Defaults to 3.
	MaxAttempts int
	// BackOff builds the retry schedule. Defaults to exponential from 200ms.
	BackOff func() backoff.BackOff
	Logger  *slog.Logger
}

// Pipeline processes submissions. It holds no per-invocation state.
type Pipeline struct {
	fetcher     Fetcher
	storer      Storer
	notifier    Notifier
	auditor     Auditor
	claims      Claimer
	deadLetters DeadLetterer
	timeouts    Timeouts
	maxAttempts int
	newBackOff  func() backoff.BackOff
	logger      *slog.Logger
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Fetcher == nil:
		return nil, fmt.Errorf("pipeline: fetcher is required")
	case cfg.Storer == nil:
		return nil, fmt.Errorf("pipeline: storer is required")
	case cfg.Notifier == nil:
		return nil, fmt.Errorf("pipeline: notifier is required")
	case cfg.Auditor == nil:
		return nil, fmt.Errorf("pipeline: auditor is required")
	}

	p := &Pipeline{
		fetcher:     cfg.Fetcher,
		storer:      cfg.Storer,
		notifier:    cfg.Notifier,
		auditor:     cfg.Auditor,
		claims:      cfg.Claims,
		deadLetters: cfg.DeadLetters,
		timeouts:    cfg.Timeouts,
		maxAttempts: cfg.MaxAttempts,
		newBackOff:  cfg.BackOff,
		logger:      cfg.Logger,
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 3
	}
	if p.newBackOff == nil {
		p.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Run processes one submission message. Handled failures return a 500 result
// and a nil error; a non-nil error means the audit record was lost.
func (p *Pipeline) Run(ctx context.Context, msg envelope.Message) (models.Result, error) {
	logger := p.logger.With("message_id", msg.ID)

	req, err := envelope.Parse(msg.Body)
	if err != nil {
		return p.fail(ctx, logger, req, "", stageError(StageParse, err))
	}
	logger = logger.With("user_email", req.RequesterEmail, "submission_url", req.SourceURL)

	if p.claims == nil {
		return p.process(ctx, logger, req)
	}

	key := audit.SubmissionKey(msg.Body)
	claimed, err := p.claims.Claim(ctx, key)
	if err != nil {
		logger.Error("idempotency claim failed", "error", err)
		return models.Result{StatusCode: http.StatusInternalServerError, Body: models.BodyFailure}, err
	}
	if !claimed {
		logger.Info("duplicate submission ignored")
		return models.Result{StatusCode: http.StatusOK, Body: models.BodyDuplicate}, nil
	}

	result, err := p.process(ctx, logger, req)
	if err != nil {
		if relErr := p.claims.Release(context.WithoutCancel(ctx), key); relErr != nil {
			logger.Error("idempotency release failed", "error", relErr)
			err = errors.Join(err, relErr)
		}
		return result, err
	}
	if doneErr := p.claims.Complete(context.WithoutCancel(ctx), key); doneErr != nil {
		logger.Warn("idempotency completion failed", "error", doneErr)
	}
	return result, nil
}

// process runs a parsed submission from fetch to audit.
func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, req models.SubmissionRequest) (models.Result, error) {
	data, err := p.fetch(ctx, req.SourceURL)
	if err != nil {
		return p.fail(ctx, logger, req, "", stageError(StageFetch, err))
	}
	logger.Debug("artifact fetched", "size_bytes", len(data))

	artifact, err := p.put(ctx, data)
	if err != nil {
		return p.fail(ctx, logger, req, "", stageError(StageStore, err))
	}
	key := artifact.ObjectKey
	logger = logger.With("object_key", key)
	logger.Info("artifact stored", "size_bytes", artifact.SizeBytes)

	artifact, err = p.link(ctx, artifact)
	if err != nil {
		return p.fail(ctx, logger, req, key, stageError(StageLink, err))
	}
	artifact.ObjectKey = key

	record := models.NewAuditRecord(req, key, models.StatusEmailSent, "")
	var notifyErr error
	if err := p.retry(ctx, p.timeouts.Notify, func(ctx context.Context) error {
		return p.notifier.Success(ctx, req, artifact)
	}); err != nil {
		notifyErr = stageError(StageNotify, err)
		logger.Error("success notification failed", "error", err)
		record.Status = models.StatusFailed
		record.ErrorMessage = err.Error()
	}

	parked, auditErr := p.record(ctx, logger, record)
	if notifyErr == nil && auditErr == nil {
		logger.Info("submission processed", "status", record.Status)
		return models.Result{StatusCode: http.StatusOK, Body: models.BodySuccess}, nil
	}
	return conclude(errors.Join(notifyErr, auditErr), auditErr != nil && !parked)
}

// fail runs the failure path: notify, then audit, each attempted regardless
// of the other.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, req models.SubmissionRequest, objectKey string, cause *StageError) (models.Result, error) {
	logger.Error("error processing event", "stage", cause.Stage, "error", cause.Err)

	status := models.StatusFailed
	if cause.Stage == StageParse {
		status = models.StatusPreProcessing
	}

	var notifyErr error
	if err := p.retry(ctx, p.timeouts.Notify, func(ctx context.Context) error {
		return p.notifier.Failure(ctx, req, cause.Detail())
	}); err != nil {
		notifyErr = stageError(StageNotify, err)
		logger.Error("failure notification failed", "error", err)
	}

	record := models.NewAuditRecord(req, objectKey, status, cause.Detail())
	parked, auditErr := p.record(ctx, logger, record)
	return conclude(errors.Join(cause, notifyErr, auditErr), auditErr != nil && !parked)
}

// record writes the audit entry, parking it on the dead-letter queue when the
// table stays unavailable. parked reports whether the record reached the queue.
func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, record models.AuditRecord) (parked bool, err error) {
	err = p.retry(ctx, p.timeouts.Audit, func(ctx context.Context) error {
		return p.auditor.Record(ctx, record)
	})
	if err == nil {
		return false, nil
	}
	logger.Error("audit write failed", "file_name", record.FileName, "status", record.Status, "error", err)
	auditErr := stageError(StageAudit, err)

	if p.deadLetters == nil {
		return false, auditErr
	}
	letter := models.NewDeadLetter(record, err.Error())
	if dlErr := p.retry(ctx, p.timeouts.Audit, func(ctx context.Context) error {
		return p.deadLetters.Publish(ctx, letter)
	}); dlErr != nil {
		logger.Error("dead letter publish failed", "file_name", record.FileName, "error", dlErr)
		return false, errors.Join(auditErr, dlErr)
	}
	logger.Warn("audit record parked on dead-letter queue", "file_name", record.FileName)
	return true, auditErr
}

func conclude(err error, lost bool) (models.Result, error) {
	result := models.Result{StatusCode: http.StatusInternalServerError, Body: models.BodyFailure}
	if lost {
		return result, err
	}
	return result, nil
}

func (p *Pipeline) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	ctx, cancel := stageContext(ctx, p.timeouts.Fetch)
	defer cancel()
	return p.fetcher.Fetch(ctx, sourceURL)
}

func (p *Pipeline) put(ctx context.Context, data []byte) (models.StoredArtifact, error) {
	ctx, cancel := stageContext(ctx, p.timeouts.Store)
	defer cancel()
	return p.storer.Put(ctx, data)
}

func (p *Pipeline) link(ctx context.Context, artifact models.StoredArtifact) (models.StoredArtifact, error) {
	ctx, cancel := stageContext(ctx, p.timeouts.Store)
	defer cancel()
	return p.storer.Link(ctx, artifact)
}

// retry runs op up to maxAttempts times, each attempt under its own timeout.
func (p *Pipeline) retry(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.maxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		actx, cancel := stageContext(ctx, timeout)
		defer cancel()
		err := op(actx)
		if errors.Is(err, notify.ErrNoRecipient) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
