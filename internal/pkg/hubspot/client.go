// Package hubspot is a small client for the HubSpot contacts APIs.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/huntyio/membership/internal/pkg/config"
)

// Result classifies a contact lookup.
type Result int

const (
	Found Result = iota
	NotFound
	Error
)

func (r Result) String() string {
	switch r {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Lookup is the outcome of FindContactByEmail. Code carries the HTTP status
// when Result is Error.
type Lookup struct {
	Result    Result
	ContactID int64
	Code      int
}

// Properties is the free-form property bag sent to the contacts API.
type Properties map[string]interface{}

// StatusError is returned for non-2xx responses on write calls.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hubspot %s failed: status=%d body=%s", e.Op, e.Code, e.Body)
}

type Client struct {
	// LegacyURL serves the v1 contact profile lookup.
	LegacyURL   string
	URLV3       string
	AccessToken string
	HTTPClient  *http.Client
}

func NewClientFromSettings(cfg config.HubSpot) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		LegacyURL:   strings.TrimSpace(cfg.URL),
		URLV3:       strings.TrimSpace(cfg.URLV3),
		AccessToken: strings.TrimSpace(cfg.AccessToken),
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

// FindContactByEmail looks a contact up by email. Transport failures are
// returned as errors; HTTP failures other than 404 come back as Result Error.
func (c *Client) FindContactByEmail(ctx context.Context, email string) (Lookup, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Lookup{}, errors.New("email is required")
	}
	target := join(c.LegacyURL, "contact/email/"+url.PathEscape(email)+"/profile") + "?propertyMode=value_only"

	code, body, err := c.send(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Lookup{}, fmt.Errorf("hubspot lookup: %w", err)
	}
	switch code {
	case http.StatusOK:
		var profile struct {
			VID int64 `json:"vid"`
		}
		if err := json.Unmarshal(body, &profile); err != nil {
			return Lookup{}, fmt.Errorf("hubspot lookup: decode: %w", err)
		}
		return Lookup{Result: Found, ContactID: profile.VID}, nil
	case http.StatusNotFound:
		return Lookup{Result: NotFound}, nil
	default:
		log.Warnf("[HubSpot] lookup for %s returned %d", email, code)
		return Lookup{Result: Error, Code: code}, nil
	}
}

// CreateContact creates a contact and returns its id.
func (c *Client) CreateContact(ctx context.Context, props Properties) (int64, error) {
	code, body, err := c.send(ctx, http.MethodPost, join(c.URLV3, "objects/contacts"), map[string]interface{}{"properties": props})
	if err != nil {
		return 0, fmt.Errorf("hubspot create: %w", err)
	}
	if code < 200 || code >= 300 {
		return 0, &StatusError{Op: "create", Code: code, Body: string(body)}
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return 0, fmt.Errorf("hubspot create: decode: %w", err)
	}
	id, err := strconv.ParseInt(created.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("hubspot create: decode contact id %q: %w", created.ID, err)
	}
	return id, nil
}

// UpdateContact patches properties on an existing contact.
func (c *Client) UpdateContact(ctx context.Context, contactID int64, props Properties) error {
	target := join(c.URLV3, "objects/contacts/"+strconv.FormatInt(contactID, 10))
	code, body, err := c.send(ctx, http.MethodPatch, target, map[string]interface{}{"properties": props})
	if err != nil {
		return fmt.Errorf("hubspot update: %w", err)
	}
	if code < 200 || code >= 300 {
		return &StatusError{Op: "update", Code: code, Body: string(body)}
	}
	return nil
}

// UpsertContact writes props to the contact with the given email: an existing
// contact is patched, a missing one is created. A lookup answered with anything
// but 200 or 404 is reported as a StatusError and nothing is written.
func (c *Client) UpsertContact(ctx context.Context, email string, props Properties) (int64, error) {
	found, err := c.FindContactByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	switch found.Result {
	case Found:
		return found.ContactID, c.UpdateContact(ctx, found.ContactID, props)
	case NotFound:
		return c.CreateContact(ctx, props)
	default:
		return 0, &StatusError{Op: "lookup", Code: found.Code}
	}
}

func (c *Client) send(ctx context.Context, method, target string, in interface{}) (int, []byte, error) {
	if c.AccessToken == "" {
		return 0, nil, errors.New("HUBSPOT_ACCESS_TOKEN is not configured")
	}
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, body, nil
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
