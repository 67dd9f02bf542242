// Package sqlparse implements the hand-written recursive descent parser for
// the SELECT-oriented dialect described in spec section 4.14: projection
// lists (expressions, *, aggregates), FROM with a single JOIN form, WHERE,
// GROUP BY, ORDER BY, LIMIT/OFFSET, compound operators, a flattened
// non-recursive WITH clause, and the CACHED/JIT statement-head hints.
package sqlparse

import (
	"fmt"
	"strings"
)

// TokenType discriminates lexer tokens.
type TokenType int

const (
	TokEOF TokenType = iota
	TokIdent
	TokNumber
	TokString
	TokParam // $name
	TokQMark // ? positional placeholder

	TokLParen
	TokRParen
	TokComma
	TokDot
	TokStar
	TokSemicolon

	TokPlus
	TokMinus
	TokSlash
	TokPercent
	TokEq
	TokNeq
	TokLt
	TokLte
	TokGt
	TokGte
	TokConcat // ||

	// keywords
	TokSelect
	TokFrom
	TokWhere
	TokAs
	TokJoin
	TokLeft
	TokInner
	TokOn
	TokGroup
	TokBy
	TokOrder
	TokAsc
	TokDesc
	TokLimit
	TokOffset
	TokAnd
	TokOr
	TokNot
	TokNull
	TokIs
	TokIn
	TokLike
	TokBetween
	TokUnion
	TokIntersect
	TokExcept
	TokAll
	TokWith
	TokCached
	TokJit
	TokDistinct
	TokHaving
	TokTrue
	TokFalse
)

var keywords = map[string]TokenType{
	"SELECT":    TokSelect,
	"FROM":      TokFrom,
	"WHERE":     TokWhere,
	"AS":        TokAs,
	"JOIN":      TokJoin,
	"LEFT":      TokLeft,
	"INNER":     TokInner,
	"ON":        TokOn,
	"GROUP":     TokGroup,
	"BY":        TokBy,
	"ORDER":     TokOrder,
	"ASC":       TokAsc,
	"DESC":      TokDesc,
	"LIMIT":     TokLimit,
	"OFFSET":    TokOffset,
	"AND":       TokAnd,
	"OR":        TokOr,
	"NOT":       TokNot,
	"NULL":      TokNull,
	"IS":        TokIs,
	"IN":        TokIn,
	"LIKE":      TokLike,
	"BETWEEN":   TokBetween,
	"UNION":     TokUnion,
	"INTERSECT": TokIntersect,
	"EXCEPT":    TokExcept,
	"ALL":       TokAll,
	"WITH":      TokWith,
	"CACHED":    TokCached,
	"JIT":       TokJit,
	"DISTINCT":  TokDistinct,
	"HAVING":    TokHaving,
	"TRUE":      TokTrue,
	"FALSE":     TokFalse,
}

// Token is one lexical unit. Start is the byte offset into the source
// where the token begins, used to slice verbatim subquery/view text.
type Token struct {
	Type  TokenType
	Text  string
	Start int
}

type lexer struct {
	src []byte
	pos int
}

func newLexer(src string) *lexer { return &lexer{src: []byte(src)} }

func (l *lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			l.pos++
			continue
		}
		if c == '-' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '-' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		break
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func (l *lexer) next() (Token, error) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.src) {
		return Token{Type: TokEOF, Start: start}, nil
	}
	c := l.src[l.pos]

	switch {
	case isIdentStart(c):
		s := l.pos
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		text := string(l.src[s:l.pos])
		if tt, ok := keywords[strings.ToUpper(text)]; ok {
			return Token{Type: tt, Text: text, Start: start}, nil
		}
		return Token{Type: TokIdent, Text: text, Start: start}, nil

	case c == '"' || c == '`' || c == '[':
		closer := byte('"')
		if c == '`' {
			closer = '`'
		} else if c == '[' {
			closer = ']'
		}
		l.pos++
		s := l.pos
		for l.pos < len(l.src) && l.src[l.pos] != closer {
			l.pos++
		}
		if l.pos >= len(l.src) {
			return Token{}, fmt.Errorf("sqlparse: unterminated quoted identifier")
		}
		text := string(l.src[s:l.pos])
		l.pos++
		return Token{Type: TokIdent, Text: text, Start: start}, nil

	case c == '\'':
		l.pos++
		var b strings.Builder
		for l.pos < len(l.src) {
			if l.src[l.pos] == '\'' {
				if l.pos+1 < len(l.src) && l.src[l.pos+1] == '\'' {
					b.WriteByte('\'')
					l.pos += 2
					continue
				}
				break
			}
			b.WriteByte(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return Token{}, fmt.Errorf("sqlparse: unterminated string literal")
		}
		l.pos++
		return Token{Type: TokString, Text: b.String(), Start: start}, nil

	case isDigit(c):
		s := l.pos
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
		if l.pos < len(l.src) && l.src[l.pos] == '.' {
			l.pos++
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
		if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
			l.pos++
			if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
				l.pos++
			}
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
		return Token{Type: TokNumber, Text: string(l.src[s:l.pos]), Start: start}, nil

	case c == '$':
		l.pos++
		s := l.pos
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return Token{Type: TokParam, Text: string(l.src[s:l.pos]), Start: start}, nil

	case c == '?':
		l.pos++
		return Token{Type: TokQMark, Start: start}, nil

	case c == '(':
		l.pos++
		return Token{Type: TokLParen, Start: start}, nil
	case c == ')':
		l.pos++
		return Token{Type: TokRParen, Start: start}, nil
	case c == ',':
		l.pos++
		return Token{Type: TokComma, Start: start}, nil
	case c == '.':
		l.pos++
		return Token{Type: TokDot, Start: start}, nil
	case c == '*':
		l.pos++
		return Token{Type: TokStar, Start: start}, nil
	case c == ';':
		l.pos++
		return Token{Type: TokSemicolon, Start: start}, nil
	case c == '+':
		l.pos++
		return Token{Type: TokPlus, Start: start}, nil
	case c == '-':
		l.pos++
		return Token{Type: TokMinus, Start: start}, nil
	case c == '/':
		l.pos++
		return Token{Type: TokSlash, Start: start}, nil
	case c == '%':
		l.pos++
		return Token{Type: TokPercent, Start: start}, nil
	case c == '=':
		l.pos++
		return Token{Type: TokEq, Start: start}, nil
	case c == '!':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '=' {
			l.pos += 2
			return Token{Type: TokNeq, Start: start}, nil
		}
		return Token{}, fmt.Errorf("sqlparse: unexpected '!' at offset %d", l.pos)
	case c == '<':
		l.pos++
		if l.peekByte() == '=' {
			l.pos++
			return Token{Type: TokLte, Start: start}, nil
		}
		if l.peekByte() == '>' {
			l.pos++
			return Token{Type: TokNeq, Start: start}, nil
		}
		return Token{Type: TokLt, Start: start}, nil
	case c == '>':
		l.pos++
		if l.peekByte() == '=' {
			l.pos++
			return Token{Type: TokGte, Start: start}, nil
		}
		return Token{Type: TokGt, Start: start}, nil
	case c == '|':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '|' {
			l.pos += 2
			return Token{Type: TokConcat, Start: start}, nil
		}
		return Token{}, fmt.Errorf("sqlparse: unexpected '|' at offset %d", l.pos)
	}

	return Token{}, fmt.Errorf("sqlparse: unexpected character %q at offset %d", c, l.pos)
}
