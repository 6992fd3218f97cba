package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive   SiteStatus = "active"
	StatusPaused   SiteStatus = "paused"
	StatusFinished SiteStatus = "finished"
)

const dateLayout = "2006-01-02"

type (
	SiteStatus string

	Date struct {
		time.Time
	}

	// TimeOfDay is a wall-clock time with minute resolution and no date.
	// The zero value is an absent time.
	TimeOfDay struct {
		Hour   int
		Minute int
		valid  bool
	}

	// Session identifies the logged-in owner. Anything that reads or lists
	// sites is scoped by it.
	Session struct {
		OwnerID string
	}

	Site struct {
		ID          int64
		OwnerID     string
		Name        string
		Address     string
		Description string
		Status      SiteStatus
		StartDate   Date // optional
		// CurrentRate is the default hourly rate for new entries. Changing it
		// never touches entries already logged.
		CurrentRate decimal.Decimal
	}

	TimeEntry struct {
		ID         int64
		SiteID     int64
		Date       Date
		ArrivedAt  TimeOfDay
		DepartedAt TimeOfDay
		HourlyRate decimal.Decimal // snapshot of the site rate at creation
	}

	Expense struct {
		ID          int64
		SiteID      int64
		Date        Date
		Description string
		BaseAmount  decimal.NullDecimal
		Amount      decimal.NullDecimal // legacy flat amount, margin implicitly 0
		Margin      decimal.NullDecimal // percent
		FilePath    string
	}
)

var (
	ErrNoSession        = errors.New("no session owner")
	ErrEmptyName        = errors.New("empty site name")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidTime      = errors.New("invalid time of day")
	ErrInvalidRate      = errors.New("invalid hourly rate")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidStatus    = errors.New("invalid site status")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// SameDay reports whether both dates fall on the same calendar day.
func (d Date) SameDay(o Date) bool {
	y1, m1, d1 := d.Date()
	y2, m2, d2 := o.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// NewTimeOfDay returns a present time, or an absent one when out of range.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}
	}
	return TimeOfDay{Hour: hour, Minute: minute, valid: true}
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS" (seconds are ignored).
// Empty or malformed input yields an absent time rather than an error.
func ParseTimeOfDay(s string) TimeOfDay {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}
	}
	for _, p := range parts {
		if !twoDigits(p) {
			return TimeOfDay{}
		}
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return NewTimeOfDay(h, m)
}

func twoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// Valid reports whether the time is present.
func (t TimeOfDay) Valid() bool {
	return t.valid
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	if !t.valid {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (s Session) Validate() error {
	if strings.TrimSpace(s.OwnerID) == "" {
		return ErrNoSession
	}
	return nil
}

func (st SiteStatus) IsValid() bool {
	switch st {
	case StatusActive, StatusPaused, StatusFinished:
		return true
	default:
		return false
	}
}

func (s Site) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if len(s.Name) > 200 {
		return errors.New("site name too long (max 200 characters)")
	}
	if s.Status != "" && !s.Status.IsValid() {
		return ErrInvalidStatus
	}
	if s.CurrentRate.IsNegative() {
		return ErrInvalidRate
	}
	return nil
}

func (e TimeEntry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !e.ArrivedAt.Valid() || !e.DepartedAt.Valid() {
		return ErrInvalidTime
	}
	if e.HourlyRate.IsNegative() {
		return ErrInvalidRate
	}
	return nil
}

func (x Expense) Validate() error {
	if err := x.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(x.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(x.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	for _, v := range []decimal.NullDecimal{x.BaseAmount, x.Amount, x.Margin} {
		if v.Valid && v.Decimal.IsNegative() {
			return ErrInvalidAmount
		}
	}
	return nil
}
