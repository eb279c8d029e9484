package utils

import "time"

const DateLayout = "2006-01-02"

func Now() time.Time {
	return time.Now().UTC()
}

func StartOfDayInUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LoadLocation falls back to UTC for empty or unknown zone names.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalDate formats t as a calendar date in the given zone.
func LocalDate(t time.Time, timezone string) string {
	return t.In(LoadLocation(timezone)).Format(DateLayout)
}

func LocalHour(t time.Time, timezone string) int {
	return t.In(LoadLocation(timezone)).Hour()
}

// PreviousLocalDate is the calendar day before t in the given zone.
func PreviousLocalDate(t time.Time, timezone string) string {
	local := t.In(LoadLocation(timezone))
	day := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, local.Location())
	return day.AddDate(0, 0, -1).Format(DateLayout)
}
