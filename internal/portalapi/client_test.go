package portalapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink/internal/dateutil"
)

func testDate() dateutil.CalendarDate {
	return dateutil.CalendarDate{Year: 2025, Month: 1, Day: 8}
}

func TestGetAvailability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/doctors/d1/availability", r.URL.Path)
		assert.Equal(t, "2025-01-08", r.URL.Query().Get("date"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"date":           "2025-01-08",
			"availableSlots": []string{"09:00", "09:30", "14:00"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	avail, err := c.GetAvailability(context.Background(), "d1", testDate())
	require.NoError(t, err)
	assert.Equal(t, "d1", avail.DoctorID)
	assert.Equal(t, testDate(), avail.Date)
	require.Len(t, avail.Slots, 3)
	assert.Equal(t, dateutil.TimeOfDay{Hour: 9, Minute: 30}, avail.Slots[1])
	assert.True(t, avail.HasSlot(dateutil.TimeOfDay{Hour: 14}))
}

func TestGetDoctorsParsesVacations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/doctors", r.URL.Path)
		assert.Equal(t, "cardiology", r.URL.Query().Get("specialty"))
		_, _ = w.Write([]byte(`[{
			"id": "d1",
			"firstName": "Sarah",
			"lastName": "Johnson",
			"specialty": "Cardiology",
			"isActive": true,
			"vacations": [{"startDate": "2025-01-10", "endDate": "2025-01-12"}]
		}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	doctors, err := c.GetDoctors(context.Background(), DoctorFilter{Specialty: "cardiology"})
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, "Dr. Sarah Johnson", doctors[0].DisplayName())
	require.Len(t, doctors[0].Vacations, 1)
	assert.Equal(t, dateutil.CalendarDate{Year: 2025, Month: 1, Day: 10}, doctors[0].Vacations[0].Start)
}

func TestCreateAppointmentSendsBearerToken(t *testing.T) {
	var got CreateAppointmentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/appointments", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "a1", "status": "scheduled"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	start := time.Date(2025, 1, 8, 9, 30, 0, 0, time.UTC)
	appt, err := c.CreateAppointment(context.Background(), StaticToken("tok-1"), CreateAppointmentRequest{
		DoctorUserID: "d1",
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		Type:         "consultation",
		Title:        "General Consultation",
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", appt.ID)
	assert.Equal(t, "d1", got.DoctorUserID)
	assert.True(t, got.StartTime.Equal(start))
}

func TestCreateAppointmentConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message": "slot already booked"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.CreateAppointment(context.Background(), StaticToken("tok-1"), CreateAppointmentRequest{})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Contains(t, err.Error(), "slot already booked")
}

func TestAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.GetPatientAppointments(context.Background(), StaticToken("stale"), AppointmentFilter{})
	require.Error(t, err)
	assert.True(t, IsAuthExpired(err))
}

func TestMissingCredential(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", time.Second)
	_, err := c.GetPatientAppointments(context.Background(), StaticToken(""), AppointmentFilter{})
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestGetPatientAppointmentsPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients/appointments", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{
			"items": [{"id": "a1"}, {"id": "a2"}],
			"meta": {"page": 2, "limit": 20, "totalItems": 42, "totalPages": 3}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	page, err := c.GetPatientAppointments(context.Background(), StaticToken("tok"), AppointmentFilter{Page: 2, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 42, page.Meta.TotalItems)
}

func TestCancelAppointment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/appointments/a1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	assert.NoError(t, c.CancelAppointment(context.Background(), StaticToken("tok"), "a1"))
}

func TestGetAppointment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/appointments/a1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
			"id": "a1",
			"startTime": "2025-01-08T09:30:00Z",
			"endTime": "2025-01-08T10:00:00Z",
			"status": "scheduled",
			"type": "checkup",
			"doctor": {"id": "d1", "firstName": "Sarah", "lastName": "Johnson"}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	appt, err := c.GetAppointment(context.Background(), StaticToken("tok"), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", appt.ID)
	assert.Equal(t, "d1", appt.Doctor.ID)
	assert.Equal(t, time.Date(2025, 1, 8, 9, 30, 0, 0, time.UTC), appt.StartTime)
}

func TestRescheduleAppointment(t *testing.T) {
	start := time.Date(2025, 1, 9, 14, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/appointments/a1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2025-01-09T14:00:00Z", body["startTime"])
		assert.Equal(t, "2025-01-09T14:30:00Z", body["endTime"])
		_, _ = w.Write([]byte(`{"id": "a1", "startTime": "2025-01-09T14:00:00Z", "status": "scheduled"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	appt, err := c.RescheduleAppointment(context.Background(), StaticToken("tok"), "a1", start, end)
	require.NoError(t, err)
	assert.Equal(t, "a1", appt.ID)
	assert.Equal(t, start, appt.StartTime)
}

func TestNetworkErrorIsTyped(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.GetDoctors(context.Background(), DoctorFilter{})
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
}
