package imapbox

import (
	"fmt"
	"strings"
	"time"
)

// pastDays lists the supported PAST<N>DAYS windows, longest first so no
// rewrite can partially match a longer token.
var pastDays = []int{730, 365, 180, 90, 60, 30, 14, 7, 3}

// ExpandSearchMacros rewrites friendly macros in a search query into
// valid IMAP SEARCH criteria. The reference date is injected so results
// are reproducible; callers normally pass time.Now().
//
// Supported macros:
//
//	FIND <text>  alias for TEXT, searches headers and body
//	TODAY        messages from today
//	YESTERDAY    messages from yesterday
//	THISWEEK     messages since Monday of the current week
//	LASTWEEK     messages from last week, Monday to Sunday
//	THISMONTH    messages since the 1st of the current month
//	LASTMONTH    messages from the previous month
//	THISYEAR     messages since January 1st
//	LASTYEAR     messages from the previous year
//	PAST<N>DAYS  messages from the last N days, for
//	             N in 3, 7, 14, 30, 60, 90, 180, 365, 730
//	PASTHALFYEAR, PASTYEAR, PAST2YEARS
//	             aliases for PAST180DAYS, PAST365DAYS, PAST730DAYS
//
// Dates render in RFC 3501 form (05-Jan-2024). Macros that expand to a
// SINCE/BEFORE pair are parenthesized so they bind as a single search
// key, e.g. NOT LASTWEEK. Anything unrecognized passes through
// untouched, so macros mix freely with native SEARCH syntax (FROM,
// SUBJECT, NOT, ...).
//
// Replacement is plain case-sensitive text substitution with no word
// boundaries; a macro embedded in a longer run of text is rewritten
// too. Expansion never fails: a nonsense query simply fails later at
// the server as a protocol error.
func ExpandSearchMacros(query string, today time.Time) string {
	day := func(t time.Time) string { return t.Format(SearchDateFormat) }

	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
	lastWeekStart := weekStart.AddDate(0, 0, -7)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	lastMonthStart := monthStart.AddDate(0, -1, 0)
	yearStart := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
	lastYearStart := yearStart.AddDate(-1, 0, 0)

	// Aliases resolve to their PAST<N>DAYS form first; everything else
	// is ordered so no token is a substring of an earlier expansion.
	rewrites := []struct{ token, expansion string }{
		{"FIND", "TEXT"},
		{"PASTHALFYEAR", "PAST180DAYS"},
		{"PAST2YEARS", "PAST730DAYS"},
		{"PASTYEAR", "PAST365DAYS"},
		{"YESTERDAY", "ON " + day(today.AddDate(0, 0, -1))},
		{"TODAY", "ON " + day(today)},
		{"THISWEEK", "SINCE " + day(weekStart)},
		{"LASTWEEK", fmt.Sprintf("(SINCE %s BEFORE %s)", day(lastWeekStart), day(weekStart))},
		{"THISMONTH", "SINCE " + day(monthStart)},
		{"LASTMONTH", fmt.Sprintf("(SINCE %s BEFORE %s)", day(lastMonthStart), day(monthStart))},
		{"THISYEAR", "SINCE " + day(yearStart)},
		{"LASTYEAR", fmt.Sprintf("(SINCE %s BEFORE %s)", day(lastYearStart), day(yearStart))},
	}
	for _, n := range pastDays {
		rewrites = append(rewrites, struct{ token, expansion string }{
			fmt.Sprintf("PAST%dDAYS", n),
			"SINCE " + day(today.AddDate(0, 0, -n)),
		})
	}

	q := query
	for _, r := range rewrites {
		q = strings.ReplaceAll(q, r.token, r.expansion)
	}
	return q
}
