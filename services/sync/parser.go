package sync

import (
	"bytes"
	"net/mail"

	"github.com/jhillyerd/enmime"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/models"
	"github.com/mailvault/mailvault/internal/utils"
)

// ParsedMessage is the result of decoding one raw RFC822 body.
type ParsedMessage struct {
	Message     *models.Message
	Attachments []interfaces.AttachmentInput
}

// parseMessage decodes a fetched message into a Message row plus the
// attachment payloads destined for the extraction pipeline. A decode
// failure is local to the message; the caller skips it and moves on.
func parseMessage(raw *interfaces.RawMessage, accountID, folder string) (*ParsedMessage, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse message uid %d", raw.UID)
	}

	message := &models.Message{
		AccountID:  accountID,
		Folder:     folder,
		ImapUID:    raw.UID,
		MessageID:  utils.NormalizeMessageID(envelope.GetHeader("Message-Id")),
		Subject:    envelope.GetHeader("Subject"),
		BodyText:   envelope.Text,
		BodyHTML:   envelope.HTML,
		ReceivedAt: utils.NowPtr(),
	}

	if date, err := mail.ParseDate(envelope.GetHeader("Date")); err == nil {
		message.SentAt = &date
	}

	if from := envelope.GetHeader("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			message.FromAddress = addr.Address
			message.FromName = addr.Name
		} else {
			message.FromAddress = from
		}
	}

	message.ToAddresses = parseAddressList(envelope.GetHeader("To"))
	message.CcAddresses = parseAddressList(envelope.GetHeader("Cc"))

	headers := make(map[string]interface{})
	for _, key := range envelope.GetHeaderKeys() {
		values := envelope.GetHeaderValues(key)
		if len(values) > 0 {
			headers[key] = values
		}
	}
	message.RawHeaders = models.JSONMap(headers)

	var attachments []interfaces.AttachmentInput
	for _, part := range envelope.Attachments {
		attachments = append(attachments, interfaces.AttachmentInput{
			Payload:     part.Content,
			Filename:    part.FileName,
			ContentType: part.ContentType,
		})
	}
	for _, part := range envelope.Inlines {
		// Inline text parts are already captured in the body.
		if part.FileName == "" {
			continue
		}
		attachments = append(attachments, interfaces.AttachmentInput{
			Payload:     part.Content,
			Filename:    part.FileName,
			ContentType: part.ContentType,
			ContentID:   part.ContentID,
			IsInline:    true,
		})
	}

	message.HasAttachment = len(attachments) > 0

	return &ParsedMessage{
		Message:     message,
		Attachments: attachments,
	}, nil
}

func parseAddressList(header string) pq.StringArray {
	if header == "" {
		return pq.StringArray{}
	}

	addresses, err := mail.ParseAddressList(header)
	if err != nil {
		return pq.StringArray{header}
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return pq.StringArray(result)
}
