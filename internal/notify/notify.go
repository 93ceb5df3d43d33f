// Package notify emails requesters the outcome of their submission.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"release-ingest/internal/models"
)

// Subjects for the two message templates.
const (
	SuccessSubject = "GitHub Release Downloaded"
	FailureSubject = "GitHub Release Download Failure"
)

const signature = "Regards,\nAssignment Notifications Team"

// ErrNoRecipient is returned when the requester email is unknown.
var ErrNoRecipient = errors.New("no recipient email address")

// Sender dispatches a plain text email.
type Sender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// Notifier composes the outcome emails.
type Notifier struct {
	sender Sender
}

// New returns a Notifier that dispatches through sender.
func New(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// Success tells the requester where their artifact was stored.
func (n *Notifier) Success(ctx context.Context, req models.SubmissionRequest, artifact models.StoredArtifact) error {
	return n.send(ctx, req.RequesterEmail, SuccessSubject, SuccessBody(req, artifact))
}

// Failure tells the requester their submission could not be processed.
func (n *Notifier) Failure(ctx context.Context, req models.SubmissionRequest, errMessage string) error {
	return n.send(ctx, req.RequesterEmail, FailureSubject, FailureBody(req, errMessage))
}

func (n *Notifier) send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return ErrNoRecipient
	}
	if err := n.sender.Send(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send %q to %s: %w", subject, to, err)
	}
	return nil
}

// SuccessBody renders the success template.
func SuccessBody(req models.SubmissionRequest, artifact models.StoredArtifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", req.DisplayName())
	b.WriteString("Your requested GitHub release has been downloaded and stored. ")
	fmt.Fprintf(&b, "File Name: %s\n", artifact.ObjectKey)
	if artifact.HasLink() {
		fmt.Fprintf(&b, "Download Link: %s\n", artifact.RetrievalURL)
		if !artifact.ExpiresAt.IsZero() {
			fmt.Fprintf(&b, "The link expires at %s.\n", artifact.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
		}
	} else {
		b.WriteString("No download link was generated for this file.\n")
	}
	b.WriteString("\n")
	b.WriteString(signature)
	return b.String()
}

// FailureBody renders the failure template.
func FailureBody(req models.SubmissionRequest, errMessage string) string {
	return fmt.Sprintf("Dear %s,\n\nThere was an error downloading your requested GitHub release: %s\n\n%s",
		req.DisplayName(), errMessage, signature)
}
