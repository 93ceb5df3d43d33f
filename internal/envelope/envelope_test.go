package envelope

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	req, err := Parse(`{"userName":"Ada","userEmail":"a@b.com","submissionUrl":"https://x/y.zip"}`)
	require.NoError(t, err)
	assert.Equal(t, "Ada", req.RequesterName)
	assert.Equal(t, "a@b.com", req.RequesterEmail)
	assert.Equal(t, "https://x/y.zip", req.SourceURL)
}

func TestParseNameOptional(t *testing.T) {
	req, err := Parse(`{"userEmail":"a@b.com","submissionUrl":"https://x/y.zip"}`)
	require.NoError(t, err)
	assert.Empty(t, req.RequesterName)
	assert.Equal(t, "a@b.com", req.DisplayName())
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantEmail string
		wantRaw   string
		wantName  string
	}{
		{name: "not json", body: `not json`},
		{name: "empty", body: ``},
		{name: "array", body: `[1,2]`},
		{name: "null", body: `null`},
		{name: "missing email", body: `{"userName":"Ada","submissionUrl":"https://x/y.zip"}`, wantName: "Ada"},
		{name: "missing url", body: `{"userEmail":"a@b.com"}`, wantEmail: "a@b.com", wantRaw: "a@b.com"},
		{name: "email not string", body: `{"userEmail":42,"submissionUrl":"https://x/y.zip"}`},
		{name: "name not string", body: `{"userName":true,"userEmail":"a@b.com","submissionUrl":"https://x/y.zip"}`, wantEmail: "a@b.com", wantRaw: "a@b.com"},
		{name: "bad email", body: `{"userEmail":"nope","submissionUrl":"https://x/y.zip"}`, wantRaw: "nope"},
		{name: "bad email with spaces", body: `{"userName":"Bob","userEmail":"  bob at example ","submissionUrl":"https://x/y.zip"}`, wantRaw: "bob at example", wantName: "Bob"},
		{name: "ftp url", body: `{"userEmail":"a@b.com","submissionUrl":"ftp://x/y.zip"}`, wantEmail: "a@b.com", wantRaw: "a@b.com"},
		{name: "relative url", body: `{"userEmail":"a@b.com","submissionUrl":"/y.zip"}`, wantEmail: "a@b.com", wantRaw: "a@b.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Parse(tt.body)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Equal(t, tt.wantEmail, req.RequesterEmail)
			assert.Equal(t, tt.wantRaw, req.RawEmail)
			assert.Equal(t, tt.wantName, req.RequesterName)
		})
	}
}

func TestRecords(t *testing.T) {
	event := events.SNSEvent{Records: []events.SNSEventRecord{
		{SNS: events.SNSEntity{MessageID: "m-1", Message: "one"}},
		{SNS: events.SNSEntity{MessageID: "m-2", Message: "two"}},
	}}
	assert.Equal(t, []Message{{ID: "m-1", Body: "one"}, {ID: "m-2", Body: "two"}}, Records(event))
}

func TestRecordsEmptyEvent(t *testing.T) {
	msgs := Records(events.SNSEvent{})
	require.Len(t, msgs, 1)
	_, err := Parse(msgs[0].Body)
	assert.ErrorIs(t, err, ErrMalformed)
}
