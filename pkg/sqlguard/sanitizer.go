package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/finsightai/finsight/pkg/model"
)

// Keywords that must never appear in a generated query, matched whole-word.
var dangerousKeywords = []string{
	"DROP", "ALTER", "TRUNCATE", "INSERT", "UPDATE", "DELETE",
	"CREATE", "GRANT", "REVOKE", "EXECUTE", "EXEC", "CALL",
	"MERGE", "REPLACE", "RENAME", "BACKUP", "RESTORE",
}

var keywordRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(dangerousKeywords))
	for i, kw := range dangerousKeywords {
		res[i] = regexp.MustCompile(`\b` + kw + `\b`)
	}
	return res
}()

var dangerousPatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`(?i)--`), "SQL comment"},
	{regexp.MustCompile(`(?i)/\*`), "block comment"},
	{regexp.MustCompile(`(?i)\bxp_`), "extended stored procedure"},
	{regexp.MustCompile(`(?i)\bsp_`), "system stored procedure"},
	{regexp.MustCompile(`0x[0-9A-Fa-f]+`), "hex literal"},
	{regexp.MustCompile(`(?i)CHAR\s*\(`), "CHAR obfuscation"},
	{regexp.MustCompile(`(?i)NCHAR\s*\(`), "NCHAR obfuscation"},
	{regexp.MustCompile(`(?i)INTO\s+OUTFILE`), "file write"},
	{regexp.MustCompile(`(?i)INTO\s+DUMPFILE`), "file write"},
}

var unionRe = regexp.MustCompile(`(?i)UNION\s+(ALL\s+)?SELECT`)
var systemCatalogRe = regexp.MustCompile(`(?i)information_schema|pg_|sys\.|mysql\.`)
var limitRe = regexp.MustCompile(`(?i)\s+LIMIT\s+\d+`)
var fromClauseRe = regexp.MustCompile(`(?i)FROM\s+\S+`)

// Sanitize rejects any query that is not a single read-only SELECT (or CTE)
// free of dangerous keywords and patterns. It does not check for a user_id
// filter or a LIMIT; AddSafetyWrapper adds both. It returns nil when the
// query is safe to wrap and execute.
func Sanitize(sqlText string) *model.Error {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return model.NewError(model.KindSQLUnsafe, "empty SQL query")
	}

	// Multiple statements: any semicolon not at the very end
	if i := strings.Index(sqlText, ";"); i >= 0 && i != len(strings.TrimRight(sqlText, " \t\n"))-1 {
		return model.NewError(model.KindSQLUnsafe, "multiple statements detected")
	}

	check := strings.TrimRight(sqlText, ";")
	upper := strings.ToUpper(check)

	for i, re := range keywordRes {
		if re.MatchString(upper) {
			return model.NewError(model.KindSQLUnsafe, "dangerous keyword '%s' detected", dangerousKeywords[i])
		}
	}

	for _, p := range dangerousPatterns {
		if p.re.MatchString(check) {
			return model.NewError(model.KindSQLUnsafe, "dangerous pattern detected: %s", p.desc)
		}
	}

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return model.NewError(model.KindSQLUnsafe, "query must start with SELECT or WITH (CTE)")
	}

	// Tenancy is guaranteed by AddSafetyWrapper, which injects the user_id
	// filter when the generator forgot it and fails when it cannot.

	// UNION is allowed but must not reach system catalogs
	if unionRe.MatchString(upper) && systemCatalogRe.MatchString(strings.ToLower(sqlText)) {
		return model.NewError(model.KindSQLUnsafe, "attempted access to system tables")
	}

	return nil
}

// AddSafetyWrapper enforces tenancy and the row cap on a sanitized query:
// it binds :user_id if the generator forgot it and replaces any LIMIT with
// the configured cap. It fails when no FROM clause exists to anchor the
// injected filter.
func AddSafetyWrapper(sqlText string, maxRows int) (string, *model.Error) {
	// Drop any existing LIMIT so the cap below wins
	sqlText = limitRe.ReplaceAllString(sqlText, "")

	if !strings.Contains(sqlText, ":user_id") {
		upper := strings.ToUpper(sqlText)
		if i := strings.Index(upper, "WHERE"); i >= 0 {
			sqlText = sqlText[:i+len("WHERE")] + " user_id = :user_id AND" + sqlText[i+len("WHERE"):]
		} else {
			loc := fromClauseRe.FindStringIndex(sqlText)
			if loc == nil {
				return "", model.NewError(model.KindSQLUnsafe, "cannot inject user_id filter: no FROM clause")
			}
			sqlText = sqlText[:loc[1]] + " WHERE user_id = :user_id" + sqlText[loc[1]:]
		}
	}

	sqlText = strings.TrimRight(strings.TrimSpace(sqlText), ";")
	return fmt.Sprintf("%s LIMIT %d", sqlText, maxRows), nil
}
