package delivery

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/a3tai/asset-form-generator/internal/logger"
)

const (
	MIMESpreadsheet = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEPDF         = "application/pdf"
	MIMEOctet       = "application/octet-stream"
)

// Address is a mailbox with an optional display name
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Attachment is a file carried by a message
type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}

// Message is one outgoing email
type Message struct {
	From        Address
	To          Address
	Subject     string
	Text        string
	Attachments []Attachment
}

// Sender delivers a message. Implementations must be safe to call
// sequentially from one goroutine; the dispatcher never calls them concurrently.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// DryRunSender logs messages instead of sending them
type DryRunSender struct {
	log  *logger.Logger
	Sent []Message
}

// NewDryRunSender creates a sender that records and logs every message
func NewDryRunSender(log *logger.Logger) *DryRunSender {
	if log == nil {
		log = logger.NewNop()
	}
	return &DryRunSender{log: log}
}

func (s *DryRunSender) Name() string { return "dry-run" }

// Send records msg without delivering it
func (s *DryRunSender) Send(_ context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	s.log.Info("dry run: email not sent",
		"to", msg.To.Email,
		"subject", msg.Subject,
		"attachments", strings.Join(names, ", "),
	)
	s.Sent = append(s.Sent, msg)
	return nil
}

// MIMETypeFor guesses the attachment type from the file extension
func MIMETypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return MIMESpreadsheet
	case ".pdf":
		return MIMEPDF
	default:
		return MIMEOctet
	}
}
