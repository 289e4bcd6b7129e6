// Package notify delivers payment receipts to customers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Receipt carries what a payment confirmation message needs.
type Receipt struct {
	PaymentID    int64
	InvoiceID    int64
	CustomerID   int64
	CustomerName string
	Phone        string
	Amount       int64
	Method       string
	Outstanding  int64
	ReceivedAt   time.Time
	Notified     bool
}

// Message is a rendered notification.
type Message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Sender delivers a message over some channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer formats receipts for a language.
type Renderer struct {
	printer  *message.Printer
	currency string
}

// NewRenderer builds a renderer; amounts are grouped per tag's conventions.
func NewRenderer(tag language.Tag, currency string) *Renderer {
	return &Renderer{printer: message.NewPrinter(tag), currency: currency}
}

// Render produces the receipt text.
func (r *Renderer) Render(rc Receipt) Message {
	var b strings.Builder
	name := rc.CustomerName
	if name == "" {
		name = "customer"
	}
	b.WriteString(r.printer.Sprintf("Hello %s, we received %s %d for invoice #%d via %s on %s.",
		name, r.currency, rc.Amount, rc.InvoiceID, strings.ReplaceAll(rc.Method, "_", " "),
		rc.ReceivedAt.Format("02 Jan 2006")))
	if rc.Outstanding > 0 {
		b.WriteString(r.printer.Sprintf(" Remaining balance: %s %d.", r.currency, rc.Outstanding))
	} else {
		b.WriteString(" Your invoice is fully paid.")
	}
	b.WriteString(" Thank you.")
	return Message{To: rc.Phone, Body: b.String()}
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs msg.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification", slog.String("to", msg.To), slog.String("body", msg.Body))
	return nil
}

// WebhookSender posts messages as JSON to a messaging gateway.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookSender constructs a gateway sender. A nil client uses a 10s timeout.
func NewWebhookSender(url, token string, client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSender{url: url, token: token, client: client}
}

// Send posts msg to the gateway. Any non-2xx answer is an error.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: gateway request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// ErrNoRecipient reports a customer without a phone number.
var ErrNoRecipient = errors.New("notify: customer has no phone number")

// ReceiptSource loads receipt data for a payment.
type ReceiptSource interface {
	LoadReceipt(ctx context.Context, paymentID int64) (Receipt, error)
}

// DeliveryMarker records that a receipt went out.
type DeliveryMarker interface {
	MarkPaymentNotified(ctx context.Context, paymentID int64) error
}

// Service sends payment receipts at most once per payment.
type Service struct {
	source   ReceiptSource
	marker   DeliveryMarker
	sender   Sender
	renderer *Renderer
	logger   *slog.Logger
}

// NewService wires the receipt pipeline.
func NewService(source ReceiptSource, marker DeliveryMarker, sender Sender, renderer *Renderer, logger *slog.Logger) *Service {
	if renderer == nil {
		renderer = NewRenderer(language.English, "")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, marker: marker, sender: sender, renderer: renderer, logger: logger}
}

// SendPaymentReceipt renders and sends the receipt of a payment, then marks
// it as notified. Already notified payments are skipped.
func (s *Service) SendPaymentReceipt(ctx context.Context, paymentID int64) error {
	rc, err := s.source.LoadReceipt(ctx, paymentID)
	if err != nil {
		return err
	}
	if rc.Notified {
		s.logger.DebugContext(ctx, "receipt already sent", slog.Int64("payment_id", paymentID))
		return nil
	}
	if strings.TrimSpace(rc.Phone) == "" {
		return ErrNoRecipient
	}
	if err := s.sender.Send(ctx, s.renderer.Render(rc)); err != nil {
		return err
	}
	return s.marker.MarkPaymentNotified(ctx, paymentID)
}
