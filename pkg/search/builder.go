// Package search compiles natural-language transaction searches into a
// parameterized SELECT against the transactions table. It is fully
// deterministic: no LLM is involved, and the clock is injectable so symbolic
// windows resolve reproducibly.
package search

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Builder turns questions into (sql, params) pairs. The zero value is not
// usable; construct with New.
type Builder struct {
	now func() time.Time
}

// New returns a Builder using the given clock. A nil clock means UTC now.
func New(now func() time.Time) *Builder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Builder{now: now}
}

// Common merchant alias groups. A generic word like "coffee" expands to the
// chains a user most likely means.
var merchantAliases = map[string][]string{
	"coffee":        {"starbucks", "dunkin", "peet", "coffee", "cafe", "espresso", "java"},
	"uber":          {"uber", "uber eats"},
	"lyft":          {"lyft"},
	"amazon":        {"amazon", "amzn"},
	"groceries":     {"whole foods", "trader joe", "safeway", "kroger", "walmart", "target"},
	"gas":           {"shell", "chevron", "exxon", "mobil", "gas", "fuel", "76", "arco"},
	"food delivery": {"doordash", "uber eats", "grubhub", "postmates", "seamless"},
	"streaming":     {"netflix", "spotify", "hulu", "disney+", "hbo", "apple music", "youtube"},
}

var atMerchantRe = regexp.MustCompile(`(?i)\bat\s+([a-zA-Z][a-zA-Z\s&']+?)(?:\s*$|,|\?|\.)`)
var quotedRe = regexp.MustCompile(`"([^"]+)"`)

type amountFilter struct {
	op       string // gt, lt, eq, between
	value    float64
	min, max float64
}

var amountPatterns = []struct {
	re *regexp.Regexp
	op string
}{
	{regexp.MustCompile(`(?i)over \$?([\d,]+(?:\.\d{2})?)`), "gt"},
	{regexp.MustCompile(`(?i)above \$?([\d,]+(?:\.\d{2})?)`), "gt"},
	{regexp.MustCompile(`(?i)more than \$?([\d,]+(?:\.\d{2})?)`), "gt"},
	{regexp.MustCompile(`(?i)greater than \$?([\d,]+(?:\.\d{2})?)`), "gt"},
	{regexp.MustCompile(`(?i)under \$?([\d,]+(?:\.\d{2})?)`), "lt"},
	{regexp.MustCompile(`(?i)below \$?([\d,]+(?:\.\d{2})?)`), "lt"},
	{regexp.MustCompile(`(?i)less than \$?([\d,]+(?:\.\d{2})?)`), "lt"},
	{regexp.MustCompile(`(?i)between \$?([\d,]+(?:\.\d{2})?) and \$?([\d,]+(?:\.\d{2})?)`), "between"},
	{regexp.MustCompile(`(?i)from \$?([\d,]+(?:\.\d{2})?) to \$?([\d,]+(?:\.\d{2})?)`), "between"},
	{regexp.MustCompile(`(?i)around \$?([\d,]+(?:\.\d{2})?)`), "around"},
	{regexp.MustCompile(`(?i)approximately \$?([\d,]+(?:\.\d{2})?)`), "around"},
	{regexp.MustCompile(`(?i)exactly \$?([\d,]+(?:\.\d{2})?)`), "eq"},
}

var lastNRe = regexp.MustCompile(`(?i)(?:last|past)\s+(\d+)\s+(days?|weeks?|months?)`)

// Whole-word match so "may" never fires inside another word; the leftmost
// named month wins.
var monthNameRe = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`)

var monthByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

var categoryKeywords = []string{
	"food", "dining", "restaurants", "groceries", "shopping",
	"transportation", "travel", "entertainment", "bills", "utilities",
	"healthcare", "medical", "education", "personal", "home",
	"investments", "taxes", "insurance", "subscription",
}

var spendingKeywords = []string{"spent", "spending", "expenses", "purchases", "bought", "paid"}
var incomeKeywords = []string{"income", "earned", "received", "deposits", "credits"}

// Whole-word match so "spending" never counts as asking for pending rows.
var pendingWordRe = regexp.MustCompile(`\bpending\b`)

// Build parses the question and returns a bounded transactions query with
// its parameters. Every query filters by user_id; pending rows are excluded
// unless the question asks for them.
func (b *Builder) Build(question, userID string) (string, map[string]any) {
	q := strings.ToLower(question)

	params := map[string]any{"user_id": userID}
	conditions := []string{"user_id = :user_id"}
	paramN := 0

	// Merchants
	merchants := b.extractMerchants(q)
	if len(merchants) > 0 {
		var parts []string
		for _, m := range merchants {
			name := fmt.Sprintf("m%d", paramN)
			paramN++
			params[name] = "%" + m + "%"
			parts = append(parts, fmt.Sprintf("(LOWER(merchant_name) LIKE :%s OR LOWER(name) LIKE :%s)", name, name))
		}
		conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")
	}

	// Date window
	if start, end, ok := b.extractDateRange(q); ok {
		params["start_date"] = start.Format("2006-01-02")
		params["end_date"] = end.Format("2006-01-02")
		conditions = append(conditions,
			"COALESCE(posted_datetime, date::timestamptz) >= :start_date",
			"COALESCE(posted_datetime, date::timestamptz) <= :end_date")
	}

	// Amounts; expenses are stored negative so bounds are negated
	for _, af := range extractAmounts(q) {
		switch af.op {
		case "gt":
			name := fmt.Sprintf("a%d", paramN)
			paramN++
			params[name] = -af.value
			conditions = append(conditions, fmt.Sprintf("amount < :%s", name))
		case "lt":
			name := fmt.Sprintf("a%d", paramN)
			paramN++
			params[name] = -af.value
			conditions = append(conditions, fmt.Sprintf("amount > :%s", name))
		case "eq":
			name := fmt.Sprintf("a%d", paramN)
			paramN++
			params[name] = -af.value
			conditions = append(conditions, fmt.Sprintf("ABS(amount - :%s) < 0.01", name))
		case "between":
			minName := fmt.Sprintf("amin%d", paramN)
			maxName := fmt.Sprintf("amax%d", paramN)
			paramN++
			params[minName] = -af.max
			params[maxName] = -af.min
			conditions = append(conditions, fmt.Sprintf("(amount BETWEEN :%s AND :%s)", minName, maxName))
		}
	}

	// Categories hit both the raw and the personal-finance primary bucket
	if cats := extractCategories(q); len(cats) > 0 {
		var parts []string
		for _, c := range cats {
			name := fmt.Sprintf("c%d", paramN)
			paramN++
			params[name] = "%" + c + "%"
			parts = append(parts, fmt.Sprintf("(LOWER(category) LIKE :%s OR LOWER(pfc_primary) LIKE :%s)", name, name))
		}
		conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")
	}

	// Direction defaults to spending for transaction searches
	switch extractDirection(q) {
	case "income":
		conditions = append(conditions, "amount > 0")
	default:
		conditions = append(conditions, "amount < 0")
	}

	if !pendingWordRe.MatchString(q) {
		conditions = append(conditions, "pending = false")
	}

	sql := fmt.Sprintf(`SELECT id, date, posted_datetime, merchant_name, name, amount, category, pfc_primary, payment_channel, pending
FROM transactions
WHERE %s
ORDER BY COALESCE(posted_datetime, date::timestamptz) DESC
LIMIT 100`, strings.Join(conditions, " AND "))

	return sql, params
}

// ExtractWindow resolves a symbolic date window in the question against the
// given clock. Bounds are whole inclusive days; ok is false when the
// question names no window.
func ExtractWindow(question string, now time.Time) (start, end time.Time, ok bool) {
	b := New(func() time.Time { return now })
	return b.extractWindow(strings.ToLower(question))
}

func (b *Builder) extractWindow(q string) (time.Time, time.Time, bool) {
	return b.extractDateRange(q)
}

func (b *Builder) extractMerchants(q string) []string {
	seen := map[string]bool{}
	var merchants []string
	add := func(m string) {
		m = strings.TrimSpace(strings.ToLower(m))
		m = strings.ReplaceAll(m, "'", "")
		// Possessive chains typed without the apostrophe ("trader joes",
		// "mcdonalds") match better on the base name.
		if strings.HasSuffix(m, "joes") {
			m = strings.TrimSuffix(m, "s")
		}
		if strings.HasSuffix(m, "mcdonalds") {
			m = strings.TrimSuffix(m, "s")
		}
		if m != "" && !seen[m] {
			seen[m] = true
			merchants = append(merchants, m)
		}
	}

	for alias, variants := range merchantAliases {
		if strings.Contains(q, alias) {
			for _, v := range variants {
				add(v)
			}
		}
	}

	for _, m := range atMerchantRe.FindAllStringSubmatch(q, -1) {
		candidate := strings.TrimSpace(m[1])
		if len(candidate) > 2 {
			add(candidate)
		}
	}

	for _, m := range quotedRe.FindAllStringSubmatch(q, -1) {
		add(m[1])
	}

	sort.Strings(merchants)
	return merchants
}

func (b *Builder) extractDateRange(q string) (time.Time, time.Time, bool) {
	now := b.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	case strings.Contains(q, "today"):
		return today, today, true
	case strings.Contains(q, "yesterday"):
		y := today.AddDate(0, 0, -1)
		return y, y, true
	case strings.Contains(q, "this week"):
		weekday := int(today.Weekday()+6) % 7 // Monday start
		return today.AddDate(0, 0, -weekday), today, true
	case strings.Contains(q, "last week"):
		weekday := int(today.Weekday()+6) % 7
		start := today.AddDate(0, 0, -weekday-7)
		return start, start.AddDate(0, 0, 6), true
	case strings.Contains(q, "this month"):
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC), today, true
	case strings.Contains(q, "last month"):
		firstOfThis := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := firstOfThis.AddDate(0, -1, 0)
		return start, firstOfThis.AddDate(0, 0, -1), true
	case strings.Contains(q, "this year"):
		return time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC), today, true
	case strings.Contains(q, "last year"):
		return time.Date(today.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(today.Year()-1, 12, 31, 0, 0, 0, 0, time.UTC), true
	}

	if m := lastNRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := strings.TrimSuffix(m[2], "s")
		switch unit {
		case "day":
			return today.AddDate(0, 0, -n), today, true
		case "week":
			return today.AddDate(0, 0, -7*n), today, true
		case "month":
			return today.AddDate(0, 0, -30*n), today, true
		}
	}

	if m := monthNameRe.FindString(q); m != "" {
		month := monthByName[m]
		year := today.Year()
		if month > today.Month() {
			year--
		}
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)
		return start, end, true
	}

	return time.Time{}, time.Time{}, false
}

func extractAmounts(q string) []amountFilter {
	var out []amountFilter
	for _, p := range amountPatterns {
		for _, m := range p.re.FindAllStringSubmatch(q, -1) {
			switch p.op {
			case "between":
				lo := parseAmount(m[1])
				hi := parseAmount(m[2])
				out = append(out, amountFilter{op: "between", min: lo, max: hi})
			case "around":
				v := parseAmount(m[1])
				out = append(out, amountFilter{op: "between", min: v * 0.8, max: v * 1.2})
			default:
				out = append(out, amountFilter{op: p.op, value: parseAmount(m[1])})
			}
		}
	}
	return out
}

func parseAmount(s string) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v
}

func extractCategories(q string) []string {
	var out []string
	for _, c := range categoryKeywords {
		if strings.Contains(q, c) {
			out = append(out, c)
		}
	}
	return out
}

func extractDirection(q string) string {
	for _, kw := range spendingKeywords {
		if strings.Contains(q, kw) {
			return "spending"
		}
	}
	for _, kw := range incomeKeywords {
		if strings.Contains(q, kw) {
			return "income"
		}
	}
	return "spending"
}
