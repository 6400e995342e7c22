package sync

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/mailvault/interfaces"
)

func TestParseMessage_Basics(t *testing.T) {
	raw := rawRFC822(42, "Quarterly numbers")

	parsed, err := parseMessage(raw, "acct_test", "INBOX")

	require.NoError(t, err)
	message := parsed.Message
	assert.Equal(t, "acct_test", message.AccountID)
	assert.Equal(t, "INBOX", message.Folder)
	assert.Equal(t, uint32(42), message.ImapUID)
	assert.Equal(t, "msg-42@example.com", message.MessageID)
	assert.Equal(t, "Quarterly numbers", message.Subject)
	assert.Equal(t, "alice@example.com", message.FromAddress)
	assert.Equal(t, "Alice Sender", message.FromName)
	assert.Equal(t, pq.StringArray{"bob@example.com"}, message.ToAddresses)
	assert.Contains(t, message.BodyText, "body of message 42")
	require.NotNil(t, message.SentAt)
	assert.Equal(t, 2006, message.SentAt.Year())
	assert.False(t, message.HasAttachment)
	assert.Empty(t, parsed.Attachments)
	assert.NotEmpty(t, message.RawHeaders)
}

func TestParseMessage_WithAttachment(t *testing.T) {
	body := "Message-Id: <att@example.com>\r\n" +
		"From: alice@example.com\r\n" +
		"To: bob@example.com, carol@example.com\r\n" +
		"Subject: see attached\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"xyz\"\r\n" +
		"\r\n" +
		"--xyz\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"the report is attached\r\n" +
		"--xyz\r\n" +
		"Content-Type: text/plain; name=\"report.txt\"\r\n" +
		"Content-Disposition: attachment; filename=\"report.txt\"\r\n" +
		"\r\n" +
		"report contents\r\n" +
		"--xyz--\r\n"
	raw := &interfaces.RawMessage{UID: 7, Body: []byte(body)}

	parsed, err := parseMessage(raw, "acct_test", "INBOX")

	require.NoError(t, err)
	assert.True(t, parsed.Message.HasAttachment)
	assert.Equal(t, pq.StringArray{"bob@example.com", "carol@example.com"}, parsed.Message.ToAddresses)

	require.Len(t, parsed.Attachments, 1)
	attachment := parsed.Attachments[0]
	assert.Equal(t, "report.txt", attachment.Filename)
	assert.Equal(t, "text/plain", attachment.ContentType)
	assert.Equal(t, []byte("report contents"), attachment.Payload)
	assert.False(t, attachment.IsInline)
}

func TestParseMessage_Malformed(t *testing.T) {
	raw := &interfaces.RawMessage{UID: 9, Body: []byte{}}

	_, err := parseMessage(raw, "acct_test", "INBOX")

	assert.Error(t, err)
}

func TestParseAddressList(t *testing.T) {
	assert.Equal(t, pq.StringArray{}, parseAddressList(""))

	parsed := parseAddressList("Alice <alice@example.com>, bob@example.com")
	assert.Equal(t, pq.StringArray{"alice@example.com", "bob@example.com"}, parsed)

	// Unparseable headers are kept verbatim rather than dropped
	garbled := parseAddressList("not a valid address line")
	assert.Equal(t, pq.StringArray{"not a valid address line"}, garbled)
}
