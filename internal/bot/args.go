package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/mtaung/stonks/internal/ledger"
)

// purchaseCost is the affordability pre-check total. An order whose notional
// overflows int64 is never affordable.
func purchaseCost(priceMicros, quantity int64) (int64, bool) {
	cost, err := ledger.NotionalMicros(priceMicros, quantity)
	if err != nil {
		return 0, false
	}
	return cost, true
}

// splitArgs breaks a command line into fields, honoring double quotes so
// multi-word company names arrive as one argument. Quotes are stripped; an
// unterminated quote runs to the end of the line.
func splitArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		inField bool
	)
	flush := func() {
		if inField {
			args = append(args, cur.String())
			cur.Reset()
			inField = false
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			inField = true
		case !quoted && (r == ' ' || r == '\t'):
			flush()
		default:
			cur.WriteRune(r)
			inField = true
		}
	}
	flush()
	return args
}

// formatDuration renders a wait like "2 days 3 hours 5 minutes", dropping
// zero components and sub-second noise.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}
	d = d.Round(time.Second)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	seconds := int(d/time.Second) - minutes*60

	var parts []string
	add := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", unit))
			return
		}
		parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
	}
	add(days, "day")
	add(hours, "hour")
	add(minutes, "minute")
	add(seconds, "second")
	return strings.Join(parts, " ")
}
