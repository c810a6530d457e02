package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrDateRequired  = errors.New("a query param of 'date' or 'start_date/end_date' is required")
	ErrInvalidDate   = errors.New("invalid date format, use YYYY-MM-DD")
	ErrFutureDate    = errors.New("date cannot be in the future")
	ErrRangeInverted = errors.New("start_date must not be after end_date")
	ErrRangeTooLong  = errors.New("date range is too long")
)

// DateSelection is an inclusive range of calendar dates. Single is set when the
// caller asked with `date=` and expects the bare per-date structure back.
type DateSelection struct {
	Start  time.Time
	End    time.Time
	Single bool
}

// ParseDateSelection validates the `date` / `start_date`+`end_date` query contract.
func ParseDateSelection(date, startDate, endDate string, today time.Time, maxDays int) (DateSelection, error) {
	date = strings.TrimSpace(date)
	startDate = strings.TrimSpace(startDate)
	endDate = strings.TrimSpace(endDate)

	sel := DateSelection{}
	switch {
	case startDate != "" && endDate != "":
	case date != "":
		startDate, endDate = date, date
		sel.Single = true
	default:
		return DateSelection{}, ErrDateRequired
	}

	start, err := parseCalendarDate(startDate)
	if err != nil {
		return DateSelection{}, err
	}
	end, err := parseCalendarDate(endDate)
	if err != nil {
		return DateSelection{}, err
	}

	todayDate := CalendarDate(today)
	if start.After(todayDate) || end.After(todayDate) {
		return DateSelection{}, ErrFutureDate
	}
	if end.Before(start) {
		return DateSelection{}, ErrRangeInverted
	}
	if maxDays > 0 && int(end.Sub(start).Hours()/24)+1 > maxDays {
		return DateSelection{}, fmt.Errorf("%w: at most %d days", ErrRangeTooLong, maxDays)
	}

	sel.Start = start
	sel.End = end
	return sel, nil
}

// SingleDate selects one calendar date.
func SingleDate(date time.Time) DateSelection {
	d := CalendarDate(date)
	return DateSelection{Start: d, End: d, Single: true}
}

// Dates lists every calendar date of the selection in order.
func (s DateSelection) Dates() []time.Time {
	if s.Start.IsZero() || s.End.Before(s.Start) {
		return nil
	}
	var out []time.Time
	for d := s.Start; !d.After(s.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// CalendarDate drops the clock part, keeping the wall-clock date as a UTC midnight.
func CalendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func DateKey(date time.Time) string {
	return date.Format(DateLayout)
}

func parseCalendarDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return parsed, nil
}
