package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/shiftkeeper/pkg/api"
	"github.com/cuemby/shiftkeeper/pkg/reconciler"
	"github.com/cuemby/shiftkeeper/pkg/types"
)

const requestTimeout = 10 * time.Second

// APIError is returned for every non-2xx response
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.StatusCode, e.Details)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the API
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Client talks to a shiftkeeper daemon over HTTP
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon at addr ("host:port" or a URL)
func NewClient(addr string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("daemon address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon address %q: %w", addr, err)
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{},
	}, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Tick runs one reconciliation tick on the daemon
func (c *Client) Tick() (*reconciler.Summary, error) {
	var summary reconciler.Summary
	if err := c.do(http.MethodPost, "/v1/tick", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// PutSchedules upserts weekly schedules
func (c *Client) PutSchedules(schedules []*types.ShiftSchedule) (int, error) {
	var resp api.PutResponse
	if err := c.do(http.MethodPut, "/v1/schedules", schedules, &resp); err != nil {
		return 0, err
	}
	return resp.Stored, nil
}

// ListSchedules lists all schedules
func (c *Client) ListSchedules() ([]*types.ShiftSchedule, error) {
	var schedules []*types.ShiftSchedule
	if err := c.do(http.MethodGet, "/v1/schedules", nil, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

// PutOccurrences upserts dated occurrences
func (c *Client) PutOccurrences(occurrences []api.OccurrenceDTO) (int, error) {
	var resp api.PutResponse
	if err := c.do(http.MethodPut, "/v1/occurrences", occurrences, &resp); err != nil {
		return 0, err
	}
	return resp.Stored, nil
}

// ListOccurrences lists occurrences dated within [from, to]. Dates are
// "YYYY-MM-DD"; an empty bound is open.
func (c *Client) ListOccurrences(from, to string) ([]api.OccurrenceDTO, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	path := "/v1/occurrences"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var occs []api.OccurrenceDTO
	if err := c.do(http.MethodGet, path, nil, &occs); err != nil {
		return nil, err
	}
	return occs, nil
}

// StartSession records a tap-in
func (c *Client) StartSession(req api.StartSessionRequest) (*types.Session, error) {
	var session types.Session
	if err := c.do(http.MethodPost, "/v1/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession records a tap-out. A nil endedAt means now.
func (c *Client) EndSession(id string, endedAt *time.Time) (*api.EndSessionResponse, error) {
	var resp api.EndSessionResponse
	path := "/v1/sessions/" + url.PathEscape(id) + "/end"
	if err := c.do(http.MethodPost, path, api.EndSessionRequest{EndedAt: endedAt}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateMakeup assigns userID to an occurrence as a makeup shift
func (c *Client) CreateMakeup(occurrenceID, userID string) (*types.ShiftAttendance, error) {
	var row types.ShiftAttendance
	req := api.MakeupRequest{ShiftOccurrenceID: occurrenceID, UserID: userID}
	if err := c.do(http.MethodPost, "/v1/attendances", req, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetAttendance fetches one attendance row
func (c *Client) GetAttendance(id string) (*types.ShiftAttendance, error) {
	var row types.ShiftAttendance
	if err := c.do(http.MethodGet, "/v1/attendances/"+url.PathEscape(id), nil, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// ListUserAttendances lists every attendance row of userID
func (c *Client) ListUserAttendances(userID string) ([]*types.ShiftAttendance, error) {
	var rows []*types.ShiftAttendance
	if err := c.do(http.MethodGet, "/v1/users/"+url.PathEscape(userID)+"/attendances", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Excuse sets or clears the excuse on a row
func (c *Client) Excuse(id, excusedBy, notes string, excused bool) (*types.ShiftAttendance, error) {
	var row types.ShiftAttendance
	req := api.ExcuseRequest{ExcusedBy: excusedBy, Notes: notes, Excused: &excused}
	if err := c.do(http.MethodPost, "/v1/attendances/"+url.PathEscape(id)+"/excuse", req, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// Review marks a row as reviewed
func (c *Client) Review(id, reviewedBy string) (*types.ShiftAttendance, error) {
	var row types.ShiftAttendance
	req := api.ReviewRequest{ReviewedBy: reviewedBy}
	if err := c.do(http.MethodPost, "/v1/attendances/"+url.PathEscape(id)+"/review", req, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (c *Client) do(method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		var errResp api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.Details = errResp.Details
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
