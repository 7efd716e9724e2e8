package normalize

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DatePolicy decides between competing date candidates.
type DatePolicy struct {
	PreferLabeled bool   // rank labeled dates above unlabeled ones
	Tiebreak      string // "latest" (default) or "earliest" among equally ranked dates
	DayFirst      bool   // read 03/04/2025 as 3 April when both orders are valid
}

const (
	rankDue       = -1
	rankUnlabeled = 0
	rankLabeled   = 1
	rankInvoice   = 2
)

type dateCandidate struct {
	date      civil.Date
	rank      int
	ambiguous bool
}

const monthAlt = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	reISODate   = regexp.MustCompile(`\b(\d{4})[-/](\d{1,2})[-/](\d{1,2})\b`)
	reMonthDay  = regexp.MustCompile(`(?i)\b` + monthAlt + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	reDayMonth  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+` + monthAlt + `\.?,?\s+(\d{4})\b`)
	reNumeric   = regexp.MustCompile(`\b(\d{1,2})([/.-])(\d{1,2})[/.-](\d{4})\b`)
	reLabelDue  = regexp.MustCompile(`(?i)(due(?:\s+date)?|pay(?:ment)?\s+(?:due|by)|expir\w*|valid\s+until)\s*(?:on|date)?\s*[:#\-]?\s*$`)
	reLabelInv  = regexp.MustCompile(`(?i)(invoice\s+date|issue\s+date|date\s+of\s+issue|issued(?:\s+on)?|invoice\s+issued|receipt\s+date)\s*[:#\-]?\s*$`)
	reLabelDate = regexp.MustCompile(`(?i)\b(date|dated|billing\s+date|date\s+paid|paid\s+on)\s*[:#\-]?\s*$`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

func monthFromName(s string) time.Month {
	s = strings.ToLower(s)
	if len(s) > 3 {
		s = s[:3]
	}
	return months[s]
}

// scanDates finds date candidates in text and ranks them by the label preceding them on the same line.
func scanDates(text string, dayFirst bool) []dateCandidate {
	type span struct{ start, end int }
	var taken []span
	overlaps := func(s, e int) bool {
		for _, t := range taken {
			if s < t.end && e > t.start {
				return true
			}
		}
		return false
	}

	var out []dateCandidate
	add := func(loc []int, d civil.Date, ambiguous bool) {
		if !plausible(d) || overlaps(loc[0], loc[1]) {
			return
		}
		taken = append(taken, span{loc[0], loc[1]})
		out = append(out, dateCandidate{date: d, rank: labelRank(text[:loc[0]]), ambiguous: ambiguous})
	}

	for _, m := range reISODate.FindAllStringSubmatchIndex(text, -1) {
		y, mo, d := atoi(text[m[2]:m[3]]), atoi(text[m[4]:m[5]]), atoi(text[m[6]:m[7]])
		add(m, civil.Date{Year: y, Month: time.Month(mo), Day: d}, false)
	}
	for _, m := range reMonthDay.FindAllStringSubmatchIndex(text, -1) {
		mo := monthFromName(text[m[2]:m[3]])
		add(m, civil.Date{Year: atoi(text[m[6]:m[7]]), Month: mo, Day: atoi(text[m[4]:m[5]])}, false)
	}
	for _, m := range reDayMonth.FindAllStringSubmatchIndex(text, -1) {
		mo := monthFromName(text[m[4]:m[5]])
		add(m, civil.Date{Year: atoi(text[m[6]:m[7]]), Month: mo, Day: atoi(text[m[2]:m[3]])}, false)
	}
	for _, m := range reNumeric.FindAllStringSubmatchIndex(text, -1) {
		d, ok, ambiguous := numericDate(atoi(text[m[2]:m[3]]), atoi(text[m[6]:m[7]]), atoi(text[m[8]:m[9]]), text[m[4]:m[5]], dayFirst)
		if ok {
			add(m, d, ambiguous)
		}
	}
	return out
}

// numericDate resolves a/b/yyyy. Dotted dates are day-first by convention.
func numericDate(a, b, y int, sep string, dayFirst bool) (civil.Date, bool, bool) {
	mk := func(day, month int) civil.Date { return civil.Date{Year: y, Month: time.Month(month), Day: day} }
	switch {
	case a > 12 && b > 12:
		return civil.Date{}, false, false
	case a > 12:
		return mk(a, b), true, false
	case b > 12:
		return mk(b, a), true, false
	case sep == ".":
		return mk(a, b), true, false
	case a == b:
		return mk(a, b), true, false
	case dayFirst:
		return mk(a, b), true, true
	default:
		return mk(b, a), true, true
	}
}

func labelRank(before string) int {
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		before = before[i+1:]
	}
	if len(before) > 48 {
		before = before[len(before)-48:]
	}
	switch {
	case reLabelDue.MatchString(before):
		return rankDue
	case reLabelInv.MatchString(before):
		return rankInvoice
	case reLabelDate.MatchString(before):
		return rankLabeled
	default:
		return rankUnlabeled
	}
}

func plausible(d civil.Date) bool {
	return d.IsValid() && d.Year >= 1990 && d.Year <= 2100
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// ParseDate reads a single date string in any supported format.
func ParseDate(s string, dayFirst bool) (civil.Date, bool, bool) {
	c := scanDates(strings.TrimSpace(s), dayFirst)
	if len(c) == 0 {
		return civil.Date{}, false, false
	}
	return c[0].date, true, c[0].ambiguous
}

// chooseDate merges text candidates with the model's date and applies the policy.
// The model's answer counts as a plain "date" label since it was asked for the invoice date.
// It returns the chosen date (nil when none) and whether the choice was a guess.
// A date the text only ever shows as a due date is always a guess.
func chooseDate(text, modelDate string, p DatePolicy) (*civil.Date, bool) {
	cands := scanDates(text, p.DayFirst)
	dueOnly := map[civil.Date]bool{}
	for _, c := range cands {
		if due, seen := dueOnly[c.date]; !seen || due {
			dueOnly[c.date] = c.rank == rankDue
		}
	}
	if d, ok, amb := ParseDate(modelDate, p.DayFirst); ok && plausible(d) {
		cands = append(cands, dateCandidate{date: d, rank: rankLabeled, ambiguous: amb})
	}
	if len(cands) == 0 {
		return nil, false
	}

	// merge duplicates: best rank wins, ambiguity only if every sighting was ambiguous
	merged := map[civil.Date]*dateCandidate{}
	var order []civil.Date
	for _, c := range cands {
		if !p.PreferLabeled && c.rank > rankUnlabeled {
			c.rank = rankUnlabeled
		}
		if m, ok := merged[c.date]; ok {
			m.rank = max(m.rank, c.rank)
			m.ambiguous = m.ambiguous && c.ambiguous
			continue
		}
		cc := c
		merged[c.date] = &cc
		order = append(order, c.date)
	}

	best := rankDue
	for _, d := range order {
		best = max(best, merged[d].rank)
	}
	var top []civil.Date
	for _, d := range order {
		if merged[d].rank == best {
			top = append(top, d)
		}
	}
	slices.SortFunc(top, compareDates)

	chosen := top[len(top)-1]
	if p.Tiebreak == "earliest" {
		chosen = top[0]
	}
	guess := len(top) > 1 || merged[chosen].ambiguous || best == rankDue || dueOnly[chosen]
	return &chosen, guess
}

func compareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
