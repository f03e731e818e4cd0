package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"carelink/internal/model"
)

func sampleAppointments() []model.Appointment {
	return []model.Appointment{
		{
			ID:        "a1",
			StartTime: time.Date(2025, time.January, 8, 9, 30, 0, 0, time.UTC),
			EndTime:   time.Date(2025, time.January, 8, 10, 0, 0, 0, time.UTC),
			Status:    model.StatusConfirmed,
			Type:      "consultation",
			Title:     "Annual consultation",
			Doctor:    model.PersonSummary{FirstName: "Sarah", LastName: "Smith", Specialty: "Cardiology"},
		},
		{
			ID:        "a2",
			StartTime: time.Date(2025, time.February, 1, 14, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2025, time.February, 1, 14, 45, 0, 0, time.UTC),
			Status:    model.StatusScheduled,
			Type:      "checkup",
			Title:     "Routine visit",
			Doctor:    model.PersonSummary{FirstName: "Tom", LastName: "Brown", Specialty: "General"},
		},
	}
}

func TestAppointmentsWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Appointments(&buf, sampleAppointments()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Appointments")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per appointment")

	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "2025-01-08", rows[1][0])
	assert.Equal(t, "09:30", rows[1][1])
	assert.Equal(t, "Dr. Sarah Smith", rows[1][3])
	assert.Equal(t, "General Consultation", rows[1][5])
	assert.Equal(t, "confirmed", rows[1][6])
	assert.Equal(t, "Routine Checkup", rows[2][5])
}

func TestAppointmentsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Appointments(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Appointments")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, time.January, 8, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "appointments_20250108.xlsx", Filename(now))
}
