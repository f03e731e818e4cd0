package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"carelink/internal/availability"
	"carelink/internal/dateutil"
	"carelink/internal/model"
)

const slotsPerRow = 4

func doctorCardText(d *model.Doctor, p availability.Preview, today dateutil.CalendarDate) string {
	var sb strings.Builder
	sb.WriteString(d.DisplayName())
	if d.Specialty != "" {
		fmt.Fprintf(&sb, "\n%s", d.Specialty)
	}
	if d.AcceptsVideo {
		sb.WriteString("\nVideo visits available")
	}
	if v, ok := d.NextVacation(today); ok {
		if d.IsOnVacation(today) {
			fmt.Fprintf(&sb, "\nOn vacation %s", v.Format(today))
		} else {
			fmt.Fprintf(&sb, "\nAway %s", v.Format(today))
		}
	}
	switch {
	case p.Err != nil:
		sb.WriteString("\nAvailability unknown right now")
	case !p.Found:
		sb.WriteString("\nNo openings in the next couple of days")
	default:
		fmt.Fprintf(&sb, "\nNext openings %s:", strings.ToLower(dateutil.Label(p.Date, today)))
	}
	return sb.String()
}

// doctorCardKeyboard puts the previewed slots on the card as one-tap
// booking shortcuts, plus a Book button for the full flow.
func doctorCardKeyboard(d *model.Doctor, p availability.Preview) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if p.Found && p.Err == nil {
		var row []tgbotapi.InlineKeyboardButton
		for _, s := range p.Slots {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				s.Format12(),
				fmt.Sprintf("quick:%s|%s|%s", d.ID, p.Date.String(), s.String()),
			))
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Book with "+d.DisplayName(), "doctor:"+d.ID),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// dayStepperKeyboard renders the slot grid for one day with previous/next
// day navigation. The back arrow disappears on today and the forward arrow
// at the booking horizon.
func dayStepperKeyboard(date, today dateutil.CalendarDate, windowDays int, slots []dateutil.TimeOfDay) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	var row []tgbotapi.InlineKeyboardButton
	for _, s := range slots {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(s.Format12(), "slot:"+s.String()))
		if len(row) == slotsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	var nav []tgbotapi.InlineKeyboardButton
	if date.After(today) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("‹ Prev day", "day:prev"))
	}
	if date.Before(today.AddDays(windowDays - 1)) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next day ›", "day:next"))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, cancelRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func typeKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range model.AppointmentTypes {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s (%d min)", t.Name, int(t.Duration.Minutes())),
				"type:"+t.ID,
			),
		))
	}
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm booking", "confirm"),
		),
		backRow(),
	)
}

func skipKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Skip", "details:skip"),
		),
	)
}

func retryKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Try again", "day:retry"),
		),
		cancelRow(),
	)
}

func appointmentKeyboard(a *model.Appointment) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reschedule", "resched:"+a.ID),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "cancelappt:"+a.ID),
		),
	)
}

func backRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("‹ Back", "back"),
		tgbotapi.NewInlineKeyboardButtonData("Cancel", "abort"),
	)
}

func cancelRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Cancel", "abort"),
	)
}
