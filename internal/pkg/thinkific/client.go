// Package thinkific enrolls paying users into the academy courses.
package thinkific

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
	"golang.org/x/sync/errgroup"

	"github.com/huntyio/membership/internal/pkg/config"
)

const (
	pageSize       = 30
	activatedAtFmt = "2006-01-02T15:04:05Z"
	// maxParallelEnrollments bounds concurrent enrollment calls per user.
	maxParallelEnrollments = 4
)

// ErrUserExists is returned by CreateUser when the academy already has the email.
var ErrUserExists = errors.New("thinkific user already exists")

// Outcome summarizes EnrollUserInCourses.
type Outcome string

const (
	OutcomeEnrolled Outcome = "enrolled"
	OutcomeExisting Outcome = "existing"
)

type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("thinkific %s failed: status=%d body=%s", e.Op, e.Code, e.Body)
}

type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Client struct {
	BaseURL   string
	APIKey    string
	Subdomain string
	// CourseIDs is the allow-list applied to the course catalogue.
	CourseIDs  []int64
	HTTPClient *http.Client
	Now        func() time.Time
}

func NewClientFromSettings(cfg config.Thinkific) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimSpace(cfg.BaseURL),
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Subdomain:  strings.TrimSpace(cfg.Subdomain),
		CourseIDs:  cfg.CourseIDList(),
		HTTPClient: &http.Client{Timeout: timeout},
		Now:        time.Now,
	}
}

// CreateUser creates an SSO academy user with a welcome email.
func (c *Client) CreateUser(ctx context.Context, firstName, lastName, email string) (int64, error) {
	payload := map[string]interface{}{
		"first_name":         firstName,
		"last_name":          lastName,
		"email":              email,
		"send_welcome_email": true,
		"provider":           "SSO",
	}
	code, body, err := c.send(ctx, http.MethodPost, c.endpoint("users"), payload)
	if err != nil {
		return 0, fmt.Errorf("thinkific create user: %w", err)
	}
	if code == http.StatusUnprocessableEntity {
		return 0, ErrUserExists
	}
	if code < 200 || code >= 300 {
		return 0, &StatusError{Op: "create_user", Code: code, Body: string(body)}
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return 0, fmt.Errorf("thinkific create user: decode: %w", err)
	}
	return created.ID, nil
}

// ListCourses walks the paginated catalogue and keeps the allow-listed courses.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	allowed := make(map[int64]struct{}, len(c.CourseIDs))
	for _, id := range c.CourseIDs {
		allowed[id] = struct{}{}
	}

	var out []Course
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))

		code, body, err := c.send(ctx, http.MethodGet, c.endpoint("courses")+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("thinkific courses: %w", err)
		}
		if code != http.StatusOK {
			return nil, &StatusError{Op: "list_courses", Code: code, Body: string(body)}
		}
		var resp struct {
			Items []Course `json:"items"`
			Meta  struct {
				Pagination struct {
					NextPage *int `json:"next_page"`
				} `json:"pagination"`
			} `json:"meta"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("thinkific courses: decode: %w", err)
		}
		for _, course := range resp.Items {
			if _, ok := allowed[course.ID]; ok {
				out = append(out, course)
			}
		}
		if resp.Meta.Pagination.NextPage == nil || *resp.Meta.Pagination.NextPage == 0 {
			return out, nil
		}
	}
}

// Enroll activates a user in a course as of now.
func (c *Client) Enroll(ctx context.Context, userID, courseID int64) error {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	payload := map[string]interface{}{
		"user_id":      userID,
		"course_id":    courseID,
		"activated_at": now().UTC().Format(activatedAtFmt),
	}
	code, body, err := c.send(ctx, http.MethodPost, c.endpoint("enrollments"), payload)
	if err != nil {
		return fmt.Errorf("thinkific enroll: %w", err)
	}
	if code < 200 || code >= 300 {
		return &StatusError{Op: "enroll", Code: code, Body: string(body)}
	}
	return nil
}

// EnrollUserInCourses creates the academy user and enrolls it in every
// allow-listed course. An existing user is left untouched.
func (c *Client) EnrollUserInCourses(ctx context.Context, firstName, lastName, email string) (Outcome, error) {
	userID, err := c.CreateUser(ctx, firstName, lastName, email)
	if errors.Is(err, ErrUserExists) {
		log.Infof("[Thinkific] %s already exists, skipping enrollment", email)
		return OutcomeExisting, nil
	}
	if err != nil {
		return "", err
	}

	courses, err := c.ListCourses(ctx)
	if err != nil {
		return "", err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelEnrollments)
	for _, course := range courses {
		course := course
		g.Go(func() error {
			return c.Enroll(gctx, userID, course.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	log.Infof("[Thinkific] enrolled user %d in %d courses", userID, len(courses))
	return OutcomeEnrolled, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + path
}

func (c *Client) send(ctx context.Context, method, target string, in interface{}) (int, []byte, error) {
	if c.APIKey == "" {
		return 0, nil, errors.New("API_KEY_THINKIFIC is not configured")
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
	req.Header.Set("X-Auth-API-Key", c.APIKey)
	req.Header.Set("X-Auth-Subdomain", c.Subdomain)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode, body, nil
}
