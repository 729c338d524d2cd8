package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/asset-form-generator/internal/document"
	"github.com/a3tai/asset-form-generator/internal/survey"
)

type recordingSender struct {
	sent []Message
	fail map[string]error
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	if err := s.fail[msg.To.Email]; err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func makeDoc(t *testing.T, dir, name, email string, items int) document.GeneratedDocument {
	t.Helper()
	path := filepath.Join(dir, name+".xlsx")
	require.NoError(t, os.WriteFile(path, []byte("xlsx:"+name), 0o644))
	g := &survey.SubmissionGroup{
		Key:    name,
		Person: survey.PersonInfo{Name: name, Email: email},
	}
	for i := 0; i < items; i++ {
		g.Items = append(g.Items, survey.Item{Sequence: i + 1, AssetID: "A"})
	}
	return document.GeneratedDocument{Path: path, Group: g, ItemCount: items}
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"a@b.com", true},
		{"  budi@example.co.id ", true},
		{"no-at-symbol", false},
		{"@example.com", false},
		{"budi@", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidAddress(tt.addr), tt.addr)
	}
}

func TestPlan_GroupsByAddress(t *testing.T) {
	dir := t.TempDir()
	docs := []document.GeneratedDocument{
		makeDoc(t, dir, "Budi", "a@b.com", 2),
		makeDoc(t, dir, "Sari", "no-at-symbol", 1),
		makeDoc(t, dir, "Andi", "andi@example.com", 3),
		makeDoc(t, dir, "Budi2", "A@B.com", 4),
	}

	recipients, skipped := Plan(docs)
	assert.Equal(t, 1, skipped)
	require.Len(t, recipients, 2)

	assert.Equal(t, "a@b.com", recipients[0].Email)
	assert.Equal(t, "Budi", recipients[0].DisplayName)
	assert.Len(t, recipients[0].Documents, 2)
	assert.Equal(t, 6, recipients[0].TotalItems())
	assert.Equal(t, "andi@example.com", recipients[1].Email)
}

func TestSummaryBody(t *testing.T) {
	dir := t.TempDir()
	r := &Recipient{
		Email:       "a@b.com",
		DisplayName: "Budi",
		Documents: []document.GeneratedDocument{
			makeDoc(t, dir, "1_Jakarta_IT_Budi_2items", "a@b.com", 2),
			makeDoc(t, dir, "4_Bandung_IT_Budi_1items", "a@b.com", 1),
		},
	}
	body := SummaryBody(r)
	assert.Contains(t, body, "Dear Budi")
	assert.Contains(t, body, "2 IT asset inventory form(s)")
	assert.Contains(t, body, "3 item(s)")
	assert.Contains(t, body, "- 1_Jakarta_IT_Budi_2items.xlsx (2 items)")
	assert.Contains(t, body, "- 4_Bandung_IT_Budi_1items.xlsx (1 items)")
}

func TestDispatcher_Dispatch(t *testing.T) {
	dir := t.TempDir()
	docs := []document.GeneratedDocument{
		makeDoc(t, dir, "one", "a@b.com", 1),
		makeDoc(t, dir, "two", "broken", 1),
		makeDoc(t, dir, "three", "a@b.com", 2),
		makeDoc(t, dir, "four", "down@example.com", 1),
	}
	sender := &recordingSender{fail: map[string]error{"down@example.com": errors.New("relay refused")}}
	d := NewDispatcher(sender, Address{Email: "it@example.com", Name: "IT"}, "Form Inventaris Aset IT", nil)

	report := d.Dispatch(context.Background(), docs)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Outcomes, 2)
	assert.Error(t, report.Outcomes[1].Err)

	require.Len(t, sender.sent, 1, "both documents for a@b.com travel in one message")
	msg := sender.sent[0]
	assert.Equal(t, "a@b.com", msg.To.Email)
	assert.Equal(t, "it@example.com", msg.From.Email)
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "one.xlsx", msg.Attachments[0].Filename)
	assert.Equal(t, "three.xlsx", msg.Attachments[1].Filename)
	assert.Equal(t, MIMESpreadsheet, msg.Attachments[0].MIMEType)
	assert.Equal(t, []byte("xlsx:one"), msg.Attachments[0].Content)
}

func TestDispatcher_AttachesReports(t *testing.T) {
	dir := t.TempDir()
	doc := makeDoc(t, dir, "one", "a@b.com", 1)
	doc.ReportPath = filepath.Join(dir, "one.pdf")
	require.NoError(t, os.WriteFile(doc.ReportPath, []byte("%PDF-1.7"), 0o644))

	sender := NewDryRunSender(nil)
	report := NewDispatcher(sender, Address{Email: "it@example.com"}, "s", nil).
		Dispatch(context.Background(), []document.GeneratedDocument{doc})
	assert.Equal(t, 1, report.Sent)
	require.Len(t, sender.Sent, 1)
	require.Len(t, sender.Sent[0].Attachments, 2)
	assert.Equal(t, MIMEPDF, sender.Sent[0].Attachments[1].MIMEType)
}

func TestDispatcher_MissingAttachmentFails(t *testing.T) {
	doc := makeDoc(t, t.TempDir(), "one", "a@b.com", 1)
	doc.Path = filepath.Join(t.TempDir(), "gone.xlsx")

	sender := &recordingSender{}
	report := NewDispatcher(sender, Address{Email: "it@example.com"}, "s", nil).
		Dispatch(context.Background(), []document.GeneratedDocument{doc})
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, sender.sent)
}

func TestSMTPSender_Send(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "it@example.com", Password: "secret"})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var raw []byte
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, raw = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	err = s.Send(context.Background(), Message{
		From:    Address{Email: "it@example.com", Name: "IT"},
		To:      Address{Email: "budi@example.com", Name: "Budi"},
		Subject: "Form Inventaris Aset IT",
		Text:    "Dear Budi",
		Attachments: []Attachment{
			{Filename: "1_Jakarta_IT_Budi_2items.xlsx", Content: []byte("spreadsheet bytes")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "it@example.com", gotFrom)
	assert.Equal(t, []string{"budi@example.com"}, gotTo)

	m, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, "Form Inventaris Aset IT", m.Header.Get("Subject"))

	mediaType, params, err := mime.ParseMediaType(m.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(m.Body, params["boundary"])
	textPart, err := mr.NextPart()
	require.NoError(t, err)
	text, err := io.ReadAll(textPart)
	require.NoError(t, err)
	assert.Equal(t, "Dear Budi", string(text))

	filePart, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "1_Jakarta_IT_Budi_2items.xlsx", filePart.FileName())
	encoded, err := io.ReadAll(filePart)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, "spreadsheet bytes", string(decoded))
}

func TestSMTPSender_Errors(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{Port: 587})
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 25})
	require.NoError(t, err)
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err = s.Send(context.Background(), Message{From: Address{Email: "a@b.com"}, To: Address{Email: "c@d.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSendGridSender_Send(t *testing.T) {
	var calls atomic.Int64
	var got mailSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewSendGridSender(SendGridConfig{APIKey: "SG.test", BaseURL: srv.URL + "/", MaxRetries: 2})
	require.NoError(t, err)
	s.backoff = time.Millisecond

	err = s.Send(context.Background(), Message{
		From:        Address{Email: "it@example.com"},
		To:          Address{Email: "budi@example.com", Name: "Budi"},
		Subject:     "Form",
		Text:        "body",
		Attachments: []Attachment{{Filename: "a.xlsx", Content: []byte("x")}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "budi@example.com", got.Personalizations[0].To[0].Email)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("x")), got.Attachments[0].Content)
	assert.Equal(t, MIMESpreadsheet, got.Attachments[0].Type)
}

func TestSendGridSender_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from address"}]}`))
	}))
	defer srv.Close()

	s, err := NewSendGridSender(SendGridConfig{APIKey: "SG.test", BaseURL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)
	s.backoff = time.Millisecond

	err = s.Send(context.Background(), Message{From: Address{Email: "x"}, To: Address{Email: "y@z.com"}})
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Contains(t, err.Error(), "invalid from address")
	assert.Equal(t, int64(1), calls.Load())
}

func TestNewSendGridSender_RequiresKey(t *testing.T) {
	_, err := NewSendGridSender(SendGridConfig{})
	assert.Error(t, err)
}
