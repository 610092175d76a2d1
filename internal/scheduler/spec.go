package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TickSpec drives the dispatcher's polling clock. It is either a fixed
// interval or a cron schedule.
//
// Supported forms:
//   - Go duration: "1s", "500ms", "2m"
//   - Cron (standard 5-field, or descriptors): "*/1 * * * *", "@hourly"
//
// Optional prefixes "interval:" and "cron:" force one interpretation.
type TickSpec struct {
	Every time.Duration
	Cron  cron.Schedule
}

// ParseTickSpec parses a dispatcher tick specification.
func ParseTickSpec(raw string) (TickSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return TickSpec{}, fmt.Errorf("tick spec required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	return parseInterval(s)
}

// Next returns the first tick time strictly after from.
func (t TickSpec) Next(from time.Time) time.Time {
	if t.Cron != nil {
		return t.Cron.Next(from)
	}
	return from.Add(t.Every)
}

func parseInterval(v string) (TickSpec, error) {
	if v == "" {
		return TickSpec{}, fmt.Errorf("interval required")
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return TickSpec{}, fmt.Errorf("invalid interval %q (use a Go duration like '1s' or '500ms'): %w", v, err)
	}
	if d <= 0 {
		return TickSpec{}, fmt.Errorf("interval must be > 0")
	}
	return TickSpec{Every: d}, nil
}

func parseCron(expr string) (TickSpec, error) {
	if expr == "" {
		return TickSpec{}, fmt.Errorf("cron expression required")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return TickSpec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return TickSpec{Cron: sched}, nil
}
