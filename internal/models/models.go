package models

import (
	"time"
)

// SentinelObjectKey is recorded when a failure occurs before an object key is assigned.
const SentinelObjectKey = "Error-PreProcessing"

// UnknownRequester stands in for the audit partition key when the envelope
// yielded no email address.
const UnknownRequester = "unknown-requester"

// AuditStatus is the outcome recorded for an invocation.
type AuditStatus string

const (
	StatusEmailSent     AuditStatus = "Email Sent"
	StatusFailed        AuditStatus = "Failed"
	StatusPreProcessing AuditStatus = "Error PreProcessing"
)

// SubmissionPayload matches the JSON published to the submission topic.
type SubmissionPayload struct {
	UserName      string `json:"userName,omitempty"`
	UserEmail     string `json:"userEmail"`
	SubmissionURL string `json:"submissionUrl"`
}

// SubmissionRequest is the validated requester identity and artifact source.
type SubmissionRequest struct {
	RequesterName  string
	RequesterEmail string
	// RawEmail is the userEmail string as submitted, kept for auditing even
	// when it does not parse as an address. Mail is only sent to
	// RequesterEmail.
	RawEmail  string
	SourceURL string
}

// DisplayName is the name used to greet the requester.
func (r SubmissionRequest) DisplayName() string {
	if r.RequesterName != "" {
		return r.RequesterName
	}
	return r.RequesterEmail
}

// StoredArtifact describes an artifact persisted to object storage.
type StoredArtifact struct {
	ObjectKey    string
	SizeBytes    int64
	RetrievalURL string
	ExpiresAt    time.Time
}

// HasLink reports whether a signed retrieval URL was minted.
func (a StoredArtifact) HasLink() bool {
	return a.RetrievalURL != ""
}

// AuditRecord is one item in the audit table, keyed by email and fileName.
type AuditRecord struct {
	Email        string      `dynamodbav:"email" json:"email"`
	Name         string      `dynamodbav:"name,omitempty" json:"name,omitempty"`
	FileName     string      `dynamodbav:"fileName" json:"fileName"`
	Status       AuditStatus `dynamodbav:"status" json:"status"`
	ErrorMessage string      `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	RecordedAt   string      `dynamodbav:"recordedAt" json:"recordedAt"`
}

// NewAuditRecord builds a record with a UTC timestamp, substituting the
// sentinels for a missing key or requester. An unparseable email is
// recorded as submitted.
func NewAuditRecord(req SubmissionRequest, objectKey string, status AuditStatus, errMessage string) AuditRecord {
	email := req.RequesterEmail
	if email == "" {
		email = req.RawEmail
	}
	if email == "" {
		email = UnknownRequester
	}
	if objectKey == "" {
		objectKey = SentinelObjectKey
	}
	return AuditRecord{
		Email:        email,
		Name:         req.RequesterName,
		FileName:     objectKey,
		Status:       status,
		ErrorMessage: errMessage,
		RecordedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

// DeadLetter is the SQS body for an audit record that could not be written.
type DeadLetter struct {
	Record   AuditRecord `json:"record"`
	Reason   string      `json:"reason"`
	FailedAt time.Time   `json:"failed_at"`
}

// NewDeadLetter wraps a record with the failure reason.
func NewDeadLetter(record AuditRecord, reason string) DeadLetter {
	return DeadLetter{
		Record:   record,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	}
}

// Result is returned to the invoking platform.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Invocation result bodies.
const (
	BodySuccess   = "Process completed successfully."
	BodyFailure   = "Error processing request"
	BodyDuplicate = "Duplicate submission ignored."
)
