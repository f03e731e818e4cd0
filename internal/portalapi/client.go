// Package portalapi is the HTTP client for the remote patient-portal REST
// API. Transport and encoding live here; callers get typed results and
// classified errors.
package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"carelink/internal/dateutil"
	"carelink/internal/metrics"
	"carelink/internal/model"
)

// TokenSource supplies the bearer credential for protected calls. The token
// is issued by the external authentication service; this client never
// refreshes it. An empty token means no session is linked.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed credential, used in tests and
// one-off tooling.
type StaticToken string

func (s StaticToken) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// Client calls the portal API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(20), 40),
	}
}

// SetRateLimit overrides the default outgoing request rate.
func (c *Client) SetRateLimit(perSecond float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// DoctorFilter narrows a doctor listing.
type DoctorFilter struct {
	Specialty string
	Search    string
}

// GetDoctors lists doctors, optionally filtered. No credential required.
func (c *Client) GetDoctors(ctx context.Context, filter DoctorFilter) ([]model.Doctor, error) {
	q := url.Values{}
	if filter.Specialty != "" {
		q.Set("specialty", filter.Specialty)
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	endpoint := c.baseURL + "/doctors"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	var doctors []model.Doctor
	if err := c.doGet(ctx, endpoint, nil, &doctors); err != nil {
		return nil, err
	}
	return doctors, nil
}

// GetDoctor fetches a single doctor by its canonical ID.
func (c *Client) GetDoctor(ctx context.Context, id string) (*model.Doctor, error) {
	endpoint := fmt.Sprintf("%s/doctors/%s", c.baseURL, url.PathEscape(id))
	var doc model.Doctor
	if err := c.doGet(ctx, endpoint, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetAvailability fetches the open slots for a doctor on a date.
func (c *Client) GetAvailability(ctx context.Context, doctorID string, date dateutil.CalendarDate) (*model.Availability, error) {
	endpoint := fmt.Sprintf("%s/doctors/%s/availability?date=%s",
		c.baseURL, url.PathEscape(doctorID), url.QueryEscape(date.String()))

	var avail model.Availability
	if err := c.doGet(ctx, endpoint, nil, &avail); err != nil {
		return nil, err
	}
	avail.DoctorID = doctorID
	if avail.Date.IsZero() {
		avail.Date = date
	}
	return &avail, nil
}

// CreateAppointmentRequest is the booking creation payload. DoctorUserID is
// the wire name the legacy API expects for the doctor's canonical ID.
type CreateAppointmentRequest struct {
	DoctorUserID string    `json:"doctorUserId"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
}

// CreateAppointment books an appointment. Requires a credential. A 409
// answer means the slot was taken between fetch and submit.
func (c *Client) CreateAppointment(ctx context.Context, ts TokenSource, req CreateAppointmentRequest) (*model.Appointment, error) {
	endpoint := c.baseURL + "/appointments"
	var appt model.Appointment
	if err := c.doJSON(ctx, http.MethodPost, endpoint, ts, req, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

// AppointmentFilter narrows an appointment listing.
type AppointmentFilter struct {
	Page   int
	Limit  int
	Status model.AppointmentStatus
	Start  time.Time
	End    time.Time
}

// PageMeta is the pagination envelope of a listing response.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// AppointmentPage is one page of a patient's appointments.
type AppointmentPage struct {
	Items []model.Appointment `json:"items"`
	Meta  PageMeta            `json:"meta"`
}

// GetPatientAppointments lists the authenticated patient's appointments.
func (c *Client) GetPatientAppointments(ctx context.Context, ts TokenSource, filter AppointmentFilter) (*AppointmentPage, error) {
	q := url.Values{}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if !filter.Start.IsZero() {
		q.Set("start", filter.Start.Format(time.RFC3339))
	}
	if !filter.End.IsZero() {
		q.Set("end", filter.End.Format(time.RFC3339))
	}
	endpoint := c.baseURL + "/patients/appointments"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	var page AppointmentPage
	if err := c.doGet(ctx, endpoint, ts, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAppointment fetches one appointment by ID.
func (c *Client) GetAppointment(ctx context.Context, ts TokenSource, id string) (*model.Appointment, error) {
	endpoint := fmt.Sprintf("%s/appointments/%s", c.baseURL, url.PathEscape(id))
	var appt model.Appointment
	if err := c.doGet(ctx, endpoint, ts, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

// CancelAppointment cancels an appointment.
func (c *Client) CancelAppointment(ctx context.Context, ts TokenSource, id string) error {
	endpoint := fmt.Sprintf("%s/appointments/%s", c.baseURL, url.PathEscape(id))
	return c.doJSON(ctx, http.MethodDelete, endpoint, ts, nil, nil)
}

// RescheduleAppointment moves an appointment to a new start/end pair.
func (c *Client) RescheduleAppointment(ctx context.Context, ts TokenSource, id string, start, end time.Time) (*model.Appointment, error) {
	endpoint := fmt.Sprintf("%s/appointments/%s", c.baseURL, url.PathEscape(id))
	body := map[string]string{
		"startTime": start.Format(time.RFC3339),
		"endTime":   end.Format(time.RFC3339),
	}
	var appt model.Appointment
	if err := c.doJSON(ctx, http.MethodPatch, endpoint, ts, body, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, ts TokenSource, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return &Error{Err: err}
	}
	if err := c.authorize(ctx, req, ts); err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, ts TokenSource, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Err: err}
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &Error{Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req, ts); err != nil {
		return err
	}
	return c.do(req, out)
}

// authorize attaches the bearer credential. A nil TokenSource marks an
// unprotected endpoint; an empty token on a protected one is reported the
// same way as an expired credential.
func (c *Client) authorize(ctx context.Context, req *http.Request, ts TokenSource) error {
	if ts == nil {
		return nil
	}
	token, err := ts.Token(ctx)
	if err != nil {
		return &Error{Err: err}
	}
	if token == "" {
		return ErrNoCredential
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return &Error{Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(req.Method, "network_error", time.Since(start))
		return &Error{Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveAPIRequest(req.Method, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// readErrorMessage extracts {"message": ...} from an error body, falling
// back to the raw text.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return string(data)
}
