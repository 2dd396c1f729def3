// Package sqlproc validates LLM-generated SQL fragments against a dataset
// schema and composes them into fully-qualified statements. It works on a
// token stream rather than an AST: enough structure to separate clauses and
// classify identifiers, without a full grammar.
package sqlproc

import (
	"strings"
	"unicode"
)

// Kind classifies a token.
type Kind int

const (
	KindIdent Kind = iota
	KindQuotedIdent
	KindKeyword
	KindNumber
	KindString
	KindOperator
	KindLParen
	KindRParen
	KindComma
	KindStar
)

// Token is a single lexical element of a SQL fragment.
type Token struct {
	Kind Kind
	// Text is the token text. For quoted identifiers the quotes are
	// stripped; Quote records the original quote character.
	Text  string
	Quote byte
	// Pos and End are byte offsets into the source string.
	Pos int
	End int
	// Depth is the parenthesis nesting depth at the token.
	Depth int
}

// keywords covers clause keywords, logical/predicate keywords, common
// functions and date parts. Tokens in this set are never treated as column
// references.
var keywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "BY": true,
	"ORDER": true, "HAVING": true, "LIMIT": true, "OFFSET": true,
	"AS": true, "AND": true, "OR": true, "NOT": true, "IN": true,
	"BETWEEN": true, "LIKE": true, "ILIKE": true, "IS": true, "NULL": true,
	"ASC": true, "DESC": true, "DISTINCT": true, "ON": true, "JOIN": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "OUTER": true, "CROSS": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"CAST": true, "INTERVAL": true, "TRUE": true, "FALSE": true,
	"SUM": true, "AVG": true, "COUNT": true, "MIN": true, "MAX": true,
	"ROUND": true, "ABS": true, "COALESCE": true, "NULLIF": true,
	"UPPER": true, "LOWER": true, "TRIM": true, "LENGTH": true, "CONCAT": true,
	"SUBSTR": true, "SUBSTRING": true, "DATE": true, "EXTRACT": true,
	"YEAR": true, "QUARTER": true, "MONTH": true, "WEEK": true, "DAY": true,
	"HOUR": true, "MINUTE": true, "SECOND": true, "DOW": true, "DOY": true,
	"NOW": true, "CURRENT_DATE": true, "CURRENT_TIMESTAMP": true,
	"DATE_TRUNC": true, "STRFTIME": true,
}

// IsKeyword reports whether word is a recognized SQL keyword or function name.
func IsKeyword(word string) bool {
	return keywords[strings.ToUpper(word)]
}

// Tokenize splits a SQL fragment into tokens, tracking parenthesis depth so
// callers can tell a top-level FROM clause apart from the FROM inside
// EXTRACT(part FROM column).
func Tokenize(sql string) []Token {
	var tokens []Token
	depth := 0
	i := 0
	n := len(sql)

	for i < n {
		c := sql[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			tokens = append(tokens, Token{Kind: KindLParen, Text: "(", Pos: i, End: i + 1, Depth: depth})
			depth++
			i++

		case c == ')':
			if depth > 0 {
				depth--
			}
			tokens = append(tokens, Token{Kind: KindRParen, Text: ")", Pos: i, End: i + 1, Depth: depth})
			i++

		case c == ',':
			tokens = append(tokens, Token{Kind: KindComma, Text: ",", Pos: i, End: i + 1, Depth: depth})
			i++

		case c == '*':
			tokens = append(tokens, Token{Kind: KindStar, Text: "*", Pos: i, End: i + 1, Depth: depth})
			i++

		case c == '\'':
			// String literal with '' escaping.
			start := i
			i++
			for i < n {
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			tokens = append(tokens, Token{Kind: KindString, Text: sql[start:i], Pos: start, End: i, Depth: depth})

		case c == '"' || c == '`':
			// Quoted identifier; may contain spaces.
			quote := c
			start := i
			i++
			for i < n && sql[i] != quote {
				i++
			}
			text := sql[start+1 : min(i, n)]
			if i < n {
				i++ // closing quote
			}
			tokens = append(tokens, Token{Kind: KindQuotedIdent, Text: text, Quote: quote, Pos: start, End: i, Depth: depth})

		case c >= '0' && c <= '9':
			start := i
			for i < n && (sql[i] >= '0' && sql[i] <= '9' || sql[i] == '.') {
				i++
			}
			tokens = append(tokens, Token{Kind: KindNumber, Text: sql[start:i], Pos: start, End: i, Depth: depth})

		case isIdentStart(rune(c)):
			start := i
			for i < n && isIdentPart(rune(sql[i])) {
				i++
			}
			text := sql[start:i]
			kind := KindIdent
			if IsKeyword(text) {
				kind = KindKeyword
			}
			tokens = append(tokens, Token{Kind: kind, Text: text, Pos: start, End: i, Depth: depth})

		default:
			// Operator characters, possibly multi-byte (<=, >=, !=, <>, ||).
			start := i
			i++
			if i < n && isOperatorPair(sql[start], sql[i]) {
				i++
			}
			tokens = append(tokens, Token{Kind: KindOperator, Text: sql[start:i], Pos: start, End: i, Depth: depth})
		}
	}

	return tokens
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isOperatorPair(a, b byte) bool {
	switch {
	case a == '<' && (b == '=' || b == '>'):
		return true
	case a == '>' && b == '=':
		return true
	case a == '!' && b == '=':
		return true
	case a == '|' && b == '|':
		return true
	}
	return false
}
