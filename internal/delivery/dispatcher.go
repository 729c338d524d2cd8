package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/a3tai/asset-form-generator/internal/document"
	"github.com/a3tai/asset-form-generator/internal/logger"
)

// ErrNoRecipient marks a document whose person record has no usable address
var ErrNoRecipient = errors.New("no valid recipient address")

// Recipient is one validated address with every document addressed to it
type Recipient struct {
	Email       string
	DisplayName string
	Documents   []document.GeneratedDocument
}

// TotalItems sums the item counts of the recipient's documents
func (r Recipient) TotalItems() int {
	n := 0
	for _, d := range r.Documents {
		n += d.ItemCount
	}
	return n
}

// Outcome records what happened to one recipient
type Outcome struct {
	Email     string `json:"email"`
	Documents int    `json:"documents"`
	Err       error  `json:"-"`
}

// Report aggregates a dispatch run
type Report struct {
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Outcomes []Outcome `json:"outcomes"`
}

// Dispatcher groups generated documents by recipient and sends one summary
// message per address
type Dispatcher struct {
	sender  Sender
	from    Address
	subject string
	log     *logger.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(sender Sender, from Address, subject string, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{
		sender:  sender,
		from:    from,
		subject: subject,
		log:     log.With("component", "dispatcher", "transport", sender.Name()),
	}
}

// ValidAddress reports whether addr looks deliverable: text on both sides of "@"
func ValidAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	at := strings.Index(addr, "@")
	return at > 0 && at < len(addr)-1
}

// Plan groups documents by case-insensitive address in order of first
// appearance. It returns the number of documents skipped for lack of a
// valid address.
func Plan(docs []document.GeneratedDocument) ([]*Recipient, int) {
	var (
		order   []*Recipient
		byEmail = make(map[string]*Recipient)
		skipped int
	)
	for _, d := range docs {
		if d.Group == nil {
			skipped++
			continue
		}
		addr := strings.TrimSpace(d.Group.Person.Email)
		if !ValidAddress(addr) {
			skipped++
			continue
		}
		key := strings.ToLower(addr)
		r, ok := byEmail[key]
		if !ok {
			r = &Recipient{Email: addr, DisplayName: d.Group.Person.Name}
			byEmail[key] = r
			order = append(order, r)
		}
		r.Documents = append(r.Documents, d)
	}
	return order, skipped
}

// SummaryBody composes the plain-text message for a recipient
func SummaryBody(r *Recipient) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", r.DisplayName)
	fmt.Fprintf(&b, "Attached are %d IT asset inventory form(s) covering %d item(s) in total:\n\n", len(r.Documents), r.TotalItems())
	for _, d := range r.Documents {
		fmt.Fprintf(&b, "- %s (%d items)\n", d.Name(), d.ItemCount)
	}
	b.WriteString("\nPlease review the forms and report any discrepancy to the IT team.\n\nRegards,\nIT Asset Management\n")
	return b.String()
}

// Dispatch sends one message per recipient. A failed send is recorded and
// the remaining recipients are still attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, docs []document.GeneratedDocument) Report {
	recipients, skipped := Plan(docs)
	report := Report{Skipped: skipped}
	if skipped > 0 {
		d.log.Warn("documents without a valid recipient", "count", skipped, "error", ErrNoRecipient)
	}

	for _, r := range recipients {
		if err := ctx.Err(); err != nil {
			report.Failed++
			report.Outcomes = append(report.Outcomes, Outcome{Email: r.Email, Documents: len(r.Documents), Err: err})
			continue
		}

		err := d.send(ctx, r)
		report.Outcomes = append(report.Outcomes, Outcome{Email: r.Email, Documents: len(r.Documents), Err: err})
		if err != nil {
			report.Failed++
			d.log.Error("email delivery failed", "to", r.Email, "error", err)
			continue
		}
		report.Sent++
		d.log.Info("email sent", "to", r.Email, "documents", len(r.Documents), "items", r.TotalItems())
	}
	return report
}

func (d *Dispatcher) send(ctx context.Context, r *Recipient) error {
	msg := Message{
		From:    d.from,
		To:      Address{Email: r.Email, Name: r.DisplayName},
		Subject: d.subject,
		Text:    SummaryBody(r),
	}
	for _, doc := range r.Documents {
		paths := []string{doc.Path}
		if doc.ReportPath != "" {
			paths = append(paths, doc.ReportPath)
		}
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("failed to read attachment %s: %w", p, err)
			}
			name := filepath.Base(p)
			msg.Attachments = append(msg.Attachments, Attachment{Filename: name, MIMEType: MIMETypeFor(name), Content: data})
		}
	}
	return d.sender.Send(ctx, msg)
}
