// Package envelope extracts submission requests from SNS deliveries.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"release-ingest/internal/models"
)

// ErrMalformed is returned for payloads that are not a valid submission.
var ErrMalformed = errors.New("malformed envelope")

// Message is one SNS notification carried by an event.
type Message struct {
	ID   string
	Body string
}

// Records returns the notifications carried by the event. An event without
// records yields a single empty message so it is still reported and audited.
func Records(event events.SNSEvent) []Message {
	if len(event.Records) == 0 {
		return []Message{{}}
	}
	out := make([]Message, 0, len(event.Records))
	for _, record := range event.Records {
		out = append(out, Message{ID: record.SNS.MessageID, Body: record.SNS.Message})
	}
	return out
}

// Parse decodes and validates a submission payload. On failure the returned
// request holds whatever identity fields could be recovered.
func Parse(body string) (models.SubmissionRequest, error) {
	var req models.SubmissionRequest

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return req, fmt.Errorf("%w: decode payload: %v", ErrMalformed, err)
	}
	if raw == nil {
		return req, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}

	var problems []string

	email, err := stringField(raw, "userEmail", true)
	req.RawEmail = email
	if err != nil {
		problems = append(problems, err.Error())
	} else if addr, perr := mail.ParseAddress(email); perr != nil {
		problems = append(problems, fmt.Sprintf("userEmail %q is not a valid address", email))
	} else {
		req.RequesterEmail = addr.Address
	}

	name, err := stringField(raw, "userName", false)
	if err != nil {
		problems = append(problems, err.Error())
	} else {
		req.RequesterName = name
	}

	source, err := stringField(raw, "submissionUrl", true)
	if err != nil {
		problems = append(problems, err.Error())
	} else if verr := validateURL(source); verr != nil {
		problems = append(problems, verr.Error())
	} else {
		req.SourceURL = source
	}

	if len(problems) > 0 {
		return req, fmt.Errorf("%w: %s", ErrMalformed, strings.Join(problems, "; "))
	}
	return req, nil
}

func stringField(raw map[string]any, key string, required bool) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%s is required", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" && required {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("submissionUrl is invalid: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("submissionUrl scheme %q is not http(s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("submissionUrl has no host")
	}
	return nil
}
