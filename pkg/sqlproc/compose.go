package sqlproc

import (
	"regexp"
	"strings"
)

// Compose rebuilds a validated SQL fragment as a fully-qualified statement
// against tableRef. Clauses are emitted in canonical order regardless of the
// order they appeared in the source text. Composition is a pure text
// transform and always succeeds on validated input.
func Compose(sql, tableRef string) string {
	sql = convertDoubleQuotes(strings.TrimSpace(sql))
	comps := Extract(sql)

	selectPart := comps.Select
	if selectPart == "" {
		selectPart = "*"
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectPart)
	sb.WriteString(" FROM ")
	sb.WriteString(tableRef)

	// Any placeholder FROM the model emitted is dropped here: comps.From is
	// simply never carried into the rebuilt statement.
	if comps.HasWhere && comps.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(comps.Where)
	}
	if comps.HasGroupBy && comps.GroupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(comps.GroupBy)
	}
	if comps.HasHaving && comps.Having != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(comps.Having)
	}
	if comps.HasOrderBy && comps.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(comps.OrderBy)
	}
	if comps.HasLimit && comps.Limit != "" {
		sb.WriteString(" LIMIT ")
		sb.WriteString(comps.Limit)
	}

	return RewriteYearExtract(sb.String())
}

// convertDoubleQuotes rewrites double-quoted identifiers to backtick quoting.
// String literals (single quotes) are left untouched.
func convertDoubleQuotes(sql string) string {
	var sb strings.Builder
	inString := false

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if c == '\'' {
			inString = !inString
		}
		if c == '"' && !inString {
			sb.WriteByte('`')
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// yearExtractRe matches EXTRACT(YEAR FROM <col>) = <year> predicates. The
// column may be a bare or backtick-quoted identifier.
var yearExtractRe = regexp.MustCompile(`(?i)EXTRACT\s*\(\s*YEAR\s+FROM\s+((?:` + "`[^`]+`" + `)|(?:[A-Za-z_][A-Za-z0-9_]*))\s*\)\s*=\s*(\d{4})`)

// RewriteYearExtract rewrites the first EXTRACT(YEAR FROM col) = year
// predicate into a BETWEEN range over the year. Some warehouse dialects have
// inconsistent EXTRACT support, and the range form also uses indexes. The
// rewrite consumes its match, so applying it twice yields the same string as
// applying it once.
func RewriteYearExtract(sql string) string {
	loc := yearExtractRe.FindStringSubmatchIndex(sql)
	if loc == nil {
		return sql
	}

	col := sql[loc[2]:loc[3]]
	year := sql[loc[4]:loc[5]]

	replacement := col + " BETWEEN '" + year + "-01-01' AND '" + year + "-12-31'"
	return sql[:loc[0]] + replacement + sql[loc[1]:]
}
