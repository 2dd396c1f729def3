package sqlproc

import (
	"fmt"
	"strings"

	"github.com/datalens-ai/datalens/pkg/schema"
)

// aggregateSuffixes are trailing name fragments that mark a token as a
// computed-column alias rather than a source column reference.
var aggregateSuffixes = []string{
	"_sum", "_total", "_avg", "_average", "_count", "_min", "_max",
	"_diff", "_pct", "_pct_change",
}

// Validate checks a candidate SQL fragment against the dataset schema.
// The fragment must be a bare SELECT without a table reference; the table is
// appended later by Compose. A nil return means the fragment is safe to
// compose and execute.
func Validate(sql string, cols []schema.Column) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}

	tokens := Tokenize(trimmed)
	if len(tokens) == 0 || tokens[0].Kind != KindKeyword || !strings.EqualFold(tokens[0].Text, "SELECT") {
		return fmt.Errorf("query must start with SELECT")
	}

	comps := Extract(trimmed)

	// SELECT * is accepted unconditionally.
	if comps.Select == "*" {
		return nil
	}

	// A top-level FROM means the model supplied its own table reference.
	// The FROM inside EXTRACT(part FROM column) sits at paren depth > 0 and
	// never trips this.
	if comps.HasFrom {
		return fmt.Errorf("query must not include a FROM clause; the table reference is added during composition")
	}

	v := &validator{cols: cols, aliases: map[string]bool{}}

	if err := v.checkSelectList(Tokenize(comps.Select)); err != nil {
		return err
	}
	if comps.HasWhere {
		if err := v.checkWhere(Tokenize(comps.Where)); err != nil {
			return err
		}
	}

	if !v.found {
		return fmt.Errorf("no valid column references found in query")
	}
	return nil
}

type validator struct {
	cols    []schema.Column
	aliases map[string]bool
	found   bool
}

// isColumn reports whether name matches a schema column case-insensitively,
// or is a recognizable partial reference to a multi-word column name.
func (v *validator) isColumn(name string) bool {
	if _, ok := schema.FindColumn(v.cols, name); ok {
		return true
	}
	// Partial reference: one word of a spaced column name, e.g. "Sales"
	// standing in for "Sales Date".
	for _, c := range v.cols {
		if !strings.Contains(c.Name, " ") {
			continue
		}
		for _, part := range strings.Fields(c.Name) {
			if strings.EqualFold(part, name) {
				return true
			}
		}
	}
	return false
}

func hasAggregateSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range aggregateSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// checkSelectList validates every column-like token in the SELECT list.
func (v *validator) checkSelectList(tokens []Token) error {
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch tok.Kind {
		case KindKeyword:
			// An alias introduced via AS is not a column reference; record
			// it so later clauses can skip it too.
			if strings.EqualFold(tok.Text, "AS") && i+1 < len(tokens) {
				next := tokens[i+1]
				if next.Kind == KindIdent || next.Kind == KindQuotedIdent {
					v.aliases[strings.ToLower(next.Text)] = true
					i++
				}
			}

		case KindIdent, KindQuotedIdent:
			if skip, qualified := v.dottedSkip(tokens, i); skip {
				continue
			} else if qualified {
				// Validated below as a plain column reference.
			}
			if err := v.checkColumnToken(tok); err != nil {
				return err
			}
		}
	}
	return nil
}

// dottedSkip handles qualified references like t.col: the qualifier before
// the dot is skipped, the part after the dot is validated as a column.
func (v *validator) dottedSkip(tokens []Token, i int) (skip, qualified bool) {
	if i+1 < len(tokens) && tokens[i+1].Kind == KindOperator && tokens[i+1].Text == "." {
		return true, false
	}
	if i > 0 && tokens[i-1].Kind == KindOperator && tokens[i-1].Text == "." {
		return false, true
	}
	return false, false
}

// checkColumnToken validates a single identifier as a column reference.
func (v *validator) checkColumnToken(tok Token) error {
	if v.aliases[strings.ToLower(tok.Text)] {
		return nil
	}
	if hasAggregateSuffix(tok.Text) {
		return nil
	}
	if v.isColumn(tok.Text) {
		v.found = true
		return nil
	}
	return fmt.Errorf("invalid column reference: %q", tok.Text)
}

// checkWhere validates the WHERE clause. It alternates between expecting a
// column and expecting an operator/value so literal values are never
// mis-validated as column references.
func (v *validator) checkWhere(tokens []Token) error {
	const (
		expectColumn = iota
		expectValue
	)
	state := expectColumn
	betweenPending := false

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch tok.Kind {
		case KindKeyword:
			switch strings.ToUpper(tok.Text) {
			case "AND":
				if betweenPending {
					betweenPending = false
					state = expectValue
				} else {
					state = expectColumn
				}
			case "OR":
				state = expectColumn
			case "BETWEEN":
				betweenPending = true
				state = expectValue
			case "IN", "LIKE", "ILIKE", "IS":
				state = expectValue
			}

		case KindOperator:
			if tok.Text != "." {
				state = expectValue
			}

		case KindNumber, KindString:
			if state == expectValue && !betweenPending {
				state = expectColumn
			}

		case KindIdent, KindQuotedIdent:
			if skip, _ := v.dottedSkip(tokens, i); skip {
				continue
			}
			if state == expectColumn {
				if err := v.checkColumnToken(tok); err != nil {
					return err
				}
				state = expectValue
			} else if !betweenPending {
				// Bare identifier used as a value; consume it.
				state = expectColumn
			}
		}
	}
	return nil
}
