// Package usermaster is the HTTP client for the identity (user-master)
// service: registration, status updates, realtime notifications and the
// status history.
package usermaster

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/huntyio/membership/internal/pkg/config"
	"github.com/huntyio/membership/internal/pkg/status"
)

const (
	// UserTypeHunty is the candidate user type in the identity service.
	UserTypeHunty = 1

	registerPath = "auth/auth/registry/user/internal"
	historyPath  = "user/hunty/historic/status"
	updatePath   = "user/master/update/"
	realtimePath = "user/master/real-time-db-notification/"
)

// StatusError is returned when the identity service answers with a non-2xx code.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("usermaster %s failed: status=%d body=%s", e.Op, e.Code, e.Body)
}

// Client talks to the user-master API.
type Client struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
}

// Registration is the payload of the internal registration endpoint.
type Registration struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	UserTypeID    int    `json:"user_type_id"`
	UserSubtypeID int    `json:"user_subtype_id"`
	StatusID      string `json:"status_id"`
	SubStatusID   string `json:"sub_status_id"`
}

// NewRegistration builds the registration payload for a billing contact.
// The initial secret is derived from the email; users reset it on first login.
func NewRegistration(firstName, lastName, email string) Registration {
	return Registration{
		FirstName:     strings.TrimSpace(firstName),
		LastName:      strings.TrimSpace(lastName),
		Email:         strings.TrimSpace(email),
		Password:      base64.StdEncoding.EncodeToString([]byte(strings.TrimSpace(email))),
		UserTypeID:    UserTypeHunty,
		UserSubtypeID: UserTypeHunty,
		StatusID:      status.StatusRegistered.ID(),
		SubStatusID:   status.SubStatusRegistration.ID(),
	}
}

// HistoryEntry is one status change in the audit trail.
type HistoryEntry struct {
	UserID              string `json:"user_id"`
	CurrentStatusID     string `json:"current_status_id"`
	PreviousStatusID    string `json:"previous_status_id,omitempty"`
	CurrentSubStatusID  string `json:"current_sub_status_id"`
	PreviousSubStatusID string `json:"previous_sub_status_id,omitempty"`
	CurrentStageID      string `json:"current_stage_id,omitempty"`
	PreviousStageID     string `json:"previous_stage_id,omitempty"`
	CreatedByID         string `json:"created_by_id"`
}

// NewHistoryEntry builds the audit entry for a move from prev to next,
// authored by the user themself. An empty prev yields an initial entry.
func NewHistoryEntry(userID string, prev, next status.Fields) HistoryEntry {
	return HistoryEntry{
		UserID:              userID,
		CurrentStatusID:     next.StatusID,
		PreviousStatusID:    prev.StatusID,
		CurrentSubStatusID:  next.SubStatusID,
		PreviousSubStatusID: prev.SubStatusID,
		CurrentStageID:      next.StageID,
		PreviousStageID:     prev.StageID,
		CreatedByID:         userID,
	}
}

// RealtimeFlags toggles banners in the client application.
type RealtimeFlags struct {
	ShowModal         bool
	ShowHubspotBanner bool
	ShowBanner        bool
}

// AllRealtimeFlags turns every banner on.
var AllRealtimeFlags = RealtimeFlags{ShowModal: true, ShowHubspotBanner: true, ShowBanner: true}

// NewClientFromSettings builds a client from typed settings.
func NewClientFromSettings(cfg config.UserMaster) *Client {
	var tokens TokenSource
	if strings.TrimSpace(cfg.Token) != "" {
		tokens = StaticToken(strings.TrimSpace(cfg.Token))
	} else {
		tokens = NewJWTTokenSource(cfg.TokenSecret, cfg.Audience, cfg.TokenTTL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: cfg.BaseURL,
		Tokens:  tokens,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RegisterUser creates an account and returns its user id.
func (c *Client) RegisterUser(ctx context.Context, reg Registration) (string, error) {
	var out struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, "register", http.MethodPost, c.endpoint(registerPath), reg, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.UserID) == "" {
		return "", errors.New("usermaster register returned empty user_id")
	}
	return out.UserID, nil
}

// UpdateStatus applies a status transition to a user.
func (c *Client) UpdateStatus(ctx context.Context, userID string, fields status.Fields) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user_id is required")
	}
	return c.do(ctx, "update_status", http.MethodPut, c.endpoint(updatePath+url.PathEscape(userID)), fields, nil)
}

// NotifyRealtime pushes a realtime notification to the user's session.
func (c *Client) NotifyRealtime(ctx context.Context, userID string, flags RealtimeFlags) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user_id is required")
	}
	q := url.Values{}
	q.Set("show_modal", fmt.Sprint(flags.ShowModal))
	q.Set("show_hubspot_banner", fmt.Sprint(flags.ShowHubspotBanner))
	q.Set("show_banner", fmt.Sprint(flags.ShowBanner))
	target := c.endpoint(realtimePath+url.PathEscape(userID)) + "?" + q.Encode()
	return c.do(ctx, "notify_realtime", http.MethodPut, target, nil, nil)
}

// RecordHistory writes one status history entry.
func (c *Client) RecordHistory(ctx context.Context, entry HistoryEntry) error {
	return c.do(ctx, "record_history", http.MethodPost, c.endpoint(historyPath), entry, nil)
}

func (c *Client) endpoint(path string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	return base + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) do(ctx context.Context, op, method, target string, in, out interface{}) error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("BASE_URL is not configured")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("usermaster %s: marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Tokens != nil {
		token, err := c.Tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("usermaster %s: service token: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("usermaster %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Errorf("[UserMaster] %s %s returned %d", method, op, resp.StatusCode)
		return &StatusError{Op: op, Code: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("usermaster %s: decode: %w", op, err)
	}
	return nil
}
