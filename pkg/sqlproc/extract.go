package sqlproc

import "strings"

// Components holds the clause texts extracted from a single SQL fragment.
// A transient value produced and consumed within one validation or
// composition call.
type Components struct {
	Select  string
	From    string
	Where   string
	GroupBy string
	OrderBy string
	Having  string
	Limit   string

	HasFrom    bool
	HasWhere   bool
	HasGroupBy bool
	HasOrderBy bool
	HasHaving  bool
	HasLimit   bool
}

type clauseMarker struct {
	name     string
	pos      int // byte offset of the clause keyword
	bodyFrom int // byte offset where the clause body starts
}

// Extract splits a SQL fragment into its clauses. Boundaries are clause
// keywords at parenthesis depth zero, so FROM inside EXTRACT(part FROM col)
// never terminates the SELECT list.
func Extract(sql string) Components {
	tokens := Tokenize(sql)
	var c Components

	selStart := -1
	var markers []clauseMarker

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Depth != 0 || tok.Kind != KindKeyword {
			continue
		}

		switch strings.ToUpper(tok.Text) {
		case "SELECT":
			if selStart == -1 {
				selStart = tok.End
			}
		case "FROM":
			markers = append(markers, clauseMarker{name: "FROM", pos: tok.Pos, bodyFrom: tok.End})
		case "WHERE":
			markers = append(markers, clauseMarker{name: "WHERE", pos: tok.Pos, bodyFrom: tok.End})
		case "GROUP":
			if i+1 < len(tokens) && strings.EqualFold(tokens[i+1].Text, "BY") {
				markers = append(markers, clauseMarker{name: "GROUP BY", pos: tok.Pos, bodyFrom: tokens[i+1].End})
				i++
			}
		case "ORDER":
			if i+1 < len(tokens) && strings.EqualFold(tokens[i+1].Text, "BY") {
				markers = append(markers, clauseMarker{name: "ORDER BY", pos: tok.Pos, bodyFrom: tokens[i+1].End})
				i++
			}
		case "HAVING":
			markers = append(markers, clauseMarker{name: "HAVING", pos: tok.Pos, bodyFrom: tok.End})
		case "LIMIT":
			markers = append(markers, clauseMarker{name: "LIMIT", pos: tok.Pos, bodyFrom: tok.End})
		}
	}

	if selStart == -1 {
		selStart = 0
	}

	// The select list runs to the first clause marker.
	selEnd := len(sql)
	if len(markers) > 0 {
		selEnd = markers[0].pos
	}
	c.Select = collapseWhitespace(sql[selStart:selEnd])

	for idx, m := range markers {
		end := len(sql)
		if idx+1 < len(markers) {
			end = markers[idx+1].pos
		}
		body := collapseWhitespace(sql[m.bodyFrom:end])

		// First occurrence of each clause wins.
		switch m.name {
		case "FROM":
			if !c.HasFrom {
				c.From, c.HasFrom = body, true
			}
		case "WHERE":
			if !c.HasWhere {
				c.Where, c.HasWhere = body, true
			}
		case "GROUP BY":
			if !c.HasGroupBy {
				c.GroupBy, c.HasGroupBy = body, true
			}
		case "ORDER BY":
			if !c.HasOrderBy {
				c.OrderBy, c.HasOrderBy = body, true
			}
		case "HAVING":
			if !c.HasHaving {
				c.Having, c.HasHaving = body, true
			}
		case "LIMIT":
			if !c.HasLimit {
				c.Limit, c.HasLimit = body, true
			}
		}
	}

	return c
}

// collapseWhitespace trims and collapses internal runs of whitespace to a
// single space.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
