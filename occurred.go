package mergeload

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone data for hosts without a zoneinfo database

	"github.com/spf13/cast"
)

// DefaultTimeZone is the civil zone incident timestamps are recorded in.
const DefaultTimeZone = "America/Sao_Paulo"

// DefaultUnknownTime is the time-of-day cell value meaning "not recorded".
const DefaultUnknownTime = "N"

// isoLayout is ISO-8601 with a numeric offset and microseconds only when set.
const isoLayout = "2006-01-02T15:04:05.999999-07:00"

// DefaultDateLayouts are tried in order against the date and time cells
// joined by a space. Ambiguous slash dates read month first.
var DefaultDateLayouts = dateTimeLayouts(
	[]string{"2006-01-02", "01/02/2006", "2006/01/02"},
	[]string{"15:04:05", "15:04", "150405", "1504", "15", ""},
)

// dateTimeLayouts pairs every date form with every time form, keeping the
// order of both. An empty time form matches the date alone.
func dateTimeLayouts(dates, clocks []string) []string {
	out := make([]string, 0, len(dates)*len(clocks))
	for _, d := range dates {
		for _, c := range clocks {
			if c == "" {
				out = append(out, d)
				continue
			}
			out = append(out, d+" "+c)
		}
	}
	return out
}

// Clock combines a date cell and a time cell into a local timestamp.
type Clock struct {
	Location *time.Location
	Layouts  []string
	Unknown  string
}

// NewClock loads zone and returns a Clock using DefaultDateLayouts.
func NewClock(zone, unknown string) (*Clock, error) {
	if zone == "" {
		zone = DefaultTimeZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	if unknown == "" {
		unknown = DefaultUnknownTime
	}
	return &Clock{Location: loc, Layouts: DefaultDateLayouts, Unknown: unknown}, nil
}

// Parse reads date and clock cells as a wall time in c.Location. A clock cell
// equal to the unknown sentinel is treated as empty, which yields midnight.
//
// A wall time skipped by a forward daylight-saving jump keeps its date and
// clock and takes the offset in force before the jump.
func (c *Clock) Parse(date, clock string) (time.Time, error) {
	clock = strings.TrimSpace(clock)
	if clock == c.Unknown {
		clock = ""
	}
	value := strings.TrimSpace(strings.TrimSpace(date) + " " + clock)

	for _, layout := range c.Layouts {
		if wall, err := time.Parse(layout, value); err == nil {
			return c.local(wall), nil
		}
	}
	return cast.ToTimeInDefaultLocationE(value, c.Location)
}

// local places the wall clock fields of wall in c.Location.
func (c *Clock) local(wall time.Time) time.Time {
	y, mo, d := wall.Date()
	h, mi, sec := wall.Clock()
	t := time.Date(y, mo, d, h, mi, sec, wall.Nanosecond(), c.Location)

	ty, tmo, td := t.Date()
	th, tmi, tsec := t.Clock()
	if ty == y && tmo == mo && td == d && th == h && tmi == mi && tsec == sec {
		return t
	}
	name, offset := t.Add(-24 * time.Hour).Zone()
	return time.Date(y, mo, d, h, mi, sec, wall.Nanosecond(), time.FixedZone(name, offset))
}

// Format renders t in ISO-8601 with the UTC offset it carries. Times from
// Parse already carry the offset of c.Location.
func (c *Clock) Format(t time.Time) string {
	return t.Format(isoLayout)
}
