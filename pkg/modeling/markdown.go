package modeling

import (
	"regexp"
	"strings"
)

// Answer markdown sometimes arrives from the LLM with invisible characters,
// numbers broken across soft line breaks, or letter/digit runs fused
// together. SanitizeMarkdown normalizes all of that; it is idempotent, so
// re-sanitizing an already clean answer is a no-op.

var (
	zeroWidthRe = regexp.MustCompile(`[\x{200B}\x{200C}\x{200D}\x{2060}\x{FEFF}]`)

	// "69,\n375" -> "69,375": a soft break inside a digit group
	digitGroupBreakRe = regexp.MustCompile(`(\d[,.])\n(\d)`)

	// "across\n15" / "15\ntransactions": letter and digit runs split by a
	// single newline join with a space
	wordDigitBreakRe = regexp.MustCompile(`([A-Za-z])\n(\d)`)
	digitWordBreakRe = regexp.MustCompile(`(\d)\n([A-Za-z])`)

	// "avg4,625" -> "avg 4,625" and "Form1099" -> "Form 1099"
	letterDigitRe = regexp.MustCompile(`([A-Za-z])(\d)`)
	digitLetterRe = regexp.MustCompile(`(\d)([A-Za-z])`)

	// "4, 000" -> "4,000"
	spacedThousandsRe = regexp.MustCompile(`(\d),\s+(\d{3})`)

	tripleNewlineRe = regexp.MustCompile(`\n{3,}`)
)

// SanitizeMarkdown normalizes answer markdown before emission.
func SanitizeMarkdown(text string) string {
	if text == "" {
		return text
	}

	// Strip zero-width characters
	text = zeroWidthRe.ReplaceAllString(text, "")

	// Preserve paragraph breaks while fixing soft line breaks: collapse runs
	// of 3+ newlines to exactly 2 first so they are not consumed below.
	text = tripleNewlineRe.ReplaceAllString(text, "\n\n")

	// Join digit groups broken across a single newline (not paragraph breaks)
	text = replaceOutsideParagraphs(text, func(seg string) string {
		seg = digitGroupBreakRe.ReplaceAllString(seg, "${1}${2}")
		seg = wordDigitBreakRe.ReplaceAllString(seg, "$1 $2")
		seg = digitWordBreakRe.ReplaceAllString(seg, "$1 $2")
		return seg
	})

	// Collapse spaced thousands
	text = spacedThousandsRe.ReplaceAllString(text, "$1,$2")

	// Insert a space between adjacent letter/digit runs outside numbers
	text = letterDigitRe.ReplaceAllString(text, "$1 $2")
	text = digitLetterRe.ReplaceAllString(text, "$1 $2")

	return text
}

var (
	// Comma-grouped amounts missing their dollar sign; years and plain small
	// numbers never match because grouping is required.
	bareAmountRe = regexp.MustCompile(`(^|[^$\d.])(\d{1,3}(?:,\d{3})+(?:\.\d{2})?)`)

	// "$4,200;2txns" -> "$4,200 (2 transactions)"
	txnShorthandRe = regexp.MustCompile(`([;,])\s*(\d+)\s*txns?\b`)

	// Intra-word underscores italicize in markdown ("WELLS_FARGO")
	intraWordUnderscoreRe = regexp.MustCompile(`([A-Za-z0-9])_([A-Za-z0-9])`)
	intraWordAsteriskRe   = regexp.MustCompile(`([A-Za-z0-9])\*([A-Za-z0-9])`)
)

// NormalizeAnswer is the full answer-markdown pass: structural sanitization
// followed by display fixes (dollar signs on grouped amounts, transaction
// shorthand, markdown escaping). Idempotent like SanitizeMarkdown.
func NormalizeAnswer(text string) string {
	text = SanitizeMarkdown(text)
	text = bareAmountRe.ReplaceAllString(text, "${1}$$${2}")
	text = txnShorthandRe.ReplaceAllString(text, " ($2 transactions)")
	text = intraWordUnderscoreRe.ReplaceAllString(text, `$1\_$2`)
	text = intraWordAsteriskRe.ReplaceAllString(text, `$1\*$2`)
	return text
}

// replaceOutsideParagraphs applies fn to each paragraph independently so
// double newlines survive untouched.
func replaceOutsideParagraphs(text string, fn func(string) string) string {
	paragraphs := strings.Split(text, "\n\n")
	for i, p := range paragraphs {
		paragraphs[i] = fn(p)
	}
	return strings.Join(paragraphs, "\n\n")
}
