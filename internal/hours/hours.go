// Package hours evaluates business-hours schedules and holiday lists.
// Evaluation is pure: the same instant, schedule and holidays always
// yield the same result.
package hours

import (
	"strings"
	"time"

	"github.com/dialcraft/router/internal/types"
)

// Result is the outcome of one evaluation
type Result struct {
	Open    bool
	Holiday string // name of the matched holiday, empty if none
}

// IsOpen reports whether the workspace is open at the given instant
func IsOpen(now time.Time, cfg *types.RoutingConfiguration) bool {
	return Evaluate(now, cfg).Open
}

// Evaluate converts the instant to local wall-clock time in the
// configured timezone, checks the holiday list, then the weekday
// schedule. A missing or disabled schedule entry means closed.
func Evaluate(now time.Time, cfg *types.RoutingConfiguration) Result {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	for _, h := range cfg.Holidays {
		if int(local.Month()) != h.Month || local.Day() != h.Day {
			continue
		}
		if h.Year != 0 && local.Year() != h.Year {
			continue
		}
		return Result{Open: false, Holiday: h.Name}
	}

	day, ok := cfg.Schedule[strings.ToLower(local.Weekday().String())]
	if !ok || !day.Enabled {
		return Result{}
	}

	minutes := local.Hour()*60 + local.Minute()
	start, okStart := parseClock(day.Start)
	end, okEnd := parseClock(day.End)
	if !okStart || !okEnd {
		return Result{}
	}

	return Result{Open: minutes >= start && minutes < end}
}

// parseClock parses "HH:MM" into minutes since midnight
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, m := atoi(parts[0]), atoi(parts[1])
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	if s == "" {
		return -1
	}
	return n
}
