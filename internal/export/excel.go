// Package export renders a patient's appointment history as an Excel
// workbook for download through the bot.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"carelink/internal/metrics"
	"carelink/internal/model"
)

var columns = []string{
	"Date", "Start", "End", "Doctor", "Specialty", "Type", "Status", "Reason",
}

// Appointments writes one sheet with a bold header row and one row per
// appointment, ordered as given.
func Appointments(w io.Writer, appointments []model.Appointment) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Appointments"
	f.SetSheetName("Sheet1", sheet)

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(sheet, "A1", endCell, style)
	}

	for i, appt := range appointments {
		row := i + 2
		typeName := appt.Type
		if typ, ok := model.TypeByID(appt.Type); ok {
			typeName = typ.Name
		}
		values := []any{
			appt.StartTime.Format("2006-01-02"),
			appt.StartTime.Format("15:04"),
			appt.EndTime.Format("15:04"),
			fmt.Sprintf("Dr. %s %s", appt.Doctor.FirstName, appt.Doctor.LastName),
			appt.Doctor.Specialty,
			typeName,
			string(appt.Status),
			appt.Title,
		}
		for j, v := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	// Widen the text-heavy columns.
	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "D", "D", 24)
	_ = f.SetColWidth(sheet, "E", "F", 20)
	_ = f.SetColWidth(sheet, "H", "H", 32)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	metrics.IncExportGenerated()
	return nil
}

// Filename names the download with the generation date.
func Filename(now time.Time) string {
	return fmt.Sprintf("appointments_%s.xlsx", now.Format("20060102"))
}
