// Package treli decodes and validates webhook deliveries from the Treli
// payment processor.
package treli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	EventPaymentApproved = "payment_approved"
	EventPaymentFailed   = "payment_failed"
)

var validate = validator.New()

// ErrInvalidPayload is returned for bodies that do not decode or validate.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// WebhookEvent is the envelope of every delivery. Content is decoded lazily
// because its shape depends on the pipeline the event is routed to.
type WebhookEvent struct {
	EventType  string          `json:"event_type" validate:"required"`
	OccurredAt UnixTime        `json:"occurred_at" validate:"required"`
	Content    json.RawMessage `json:"content" validate:"required"`
	Signature  string          `json:"signature,omitempty"`
}

// PaymentContent is the content of payment_approved / payment_failed events.
type PaymentContent struct {
	Billing       Billing `json:"billing" validate:"required"`
	Items         []Item  `json:"items" validate:"min=1,dive"`
	Totals        Totals  `json:"totals"`
	PaymentID     FlexInt `json:"payment_id" validate:"required"`
	PaymentType   string  `json:"payment_type"`
	PaymentStatus string  `json:"payment_status"`
	PaymentMethod string  `json:"payment_method"`
	Currency      string  `json:"currency"`
}

type Billing struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Document         string `json:"document"`
	Email            string `json:"email" validate:"required,email"`
	Address1         string `json:"address_1"`
	Address2         string `json:"address_2"`
	Country          string `json:"country"`
	State            string `json:"state"`
	City             string `json:"city"`
	Phone            string `json:"phone"`
	PhoneCountryCode string `json:"phone_country_code"`
	ZipCode          string `json:"zip_code"`
}

type Item struct {
	Name     string  `json:"name" validate:"required"`
	SKU      string  `json:"sku"`
	ID       FlexInt `json:"id"`
	Quantity FlexInt `json:"quantity"`
	Subtotal Amount  `json:"subtotal"`
	Total    Amount  `json:"total"`
}

type Totals struct {
	SubTotal  Amount `json:"sub_total"`
	Discounts Amount `json:"discounts"`
	Total     Amount `json:"total"`
}

// SubscriptionContent is the content of subscription lifecycle events.
type SubscriptionContent struct {
	SubscriptionID FlexInt  `json:"subscription_id"`
	Customer       Customer `json:"customer" validate:"required"`
}

type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Document  string `json:"document"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone"`
	UserID    string `json:"user_id"`
}

// ParseEvent decodes and validates a webhook envelope.
func ParseEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	ev.EventType = strings.TrimSpace(ev.EventType)
	if err := validate.Struct(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &ev, nil
}

// IsApproved reports whether the event is an approved payment.
func (e *WebhookEvent) IsApproved() bool {
	return e.EventType == EventPaymentApproved
}

// IsPaymentEvent reports whether the event type belongs to the payment family.
func (e *WebhookEvent) IsPaymentEvent() bool {
	return e.EventType == EventPaymentApproved || e.EventType == EventPaymentFailed
}

// OccurredTime returns the event time as UTC wall clock.
func (e *WebhookEvent) OccurredTime() time.Time {
	return time.Unix(int64(e.OccurredAt), 0).UTC()
}

// PaymentContent decodes Content as a payment payload.
func (e *WebhookEvent) PaymentContent() (*PaymentContent, error) {
	var c PaymentContent
	if err := json.Unmarshal(e.Content, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	c.Billing.Email = strings.TrimSpace(c.Billing.Email)
	return &c, nil
}

// SubscriptionContent decodes Content as a subscription payload.
func (e *WebhookEvent) SubscriptionContent() (*SubscriptionContent, error) {
	var c SubscriptionContent
	if err := json.Unmarshal(e.Content, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	c.Customer.Email = strings.TrimSpace(c.Customer.Email)
	return &c, nil
}

// ItemName returns the first line item's product name, or "" when the
// content carries no items.
func (e *WebhookEvent) ItemName() string {
	var probe struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	if err := json.Unmarshal(e.Content, &probe); err != nil || len(probe.Items) == 0 {
		return ""
	}
	return strings.TrimSpace(probe.Items[0].Name)
}

// Item returns the first line item.
func (c *PaymentContent) Item() Item {
	if len(c.Items) == 0 {
		return Item{}
	}
	return c.Items[0]
}

// Amount is a money value that Treli sends either as a JSON number or a
// string. The textual form is kept as-is.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

func (a Amount) String() string { return string(a) }

// FlexInt is an integer sent either as a JSON number or a numeric string.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*f = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fmt.Errorf("integer: %w", err)
		}
		n = int64(fl)
	}
	*f = FlexInt(n)
	return nil
}

// UnixTime is a unix timestamp in seconds.
type UnixTime = FlexInt
