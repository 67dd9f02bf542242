package schema

import (
	"errors"
	"strings"
)

// ErrParse is returned for any malformed DDL statement.
var ErrParse = errors.New("schema: DDL parse error")

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokPunct
	tokString
	tokEOF
)

type token struct {
	kind  tokenKind
	text  string
	start int // rune offset where this token begins, after whitespace
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(s string) *lexer { return &lexer{src: []rune(s)} }

func (l *lexer) peekRune() rune {
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
		break
	}
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (l *lexer) next() token {
	l.skipSpace()
	tokenStart := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, start: tokenStart}
	}
	c := l.src[l.pos]

	if c == '"' || c == '`' || c == '\'' {
		quote := c
		l.pos++
		start := l.pos
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			l.pos++
		}
		text := string(l.src[start:l.pos])
		if l.pos < len(l.src) {
			l.pos++
		}
		if quote == '\'' {
			return token{kind: tokString, text: text, start: tokenStart}
		}
		return token{kind: tokIdent, text: text, start: tokenStart}
	}

	if c == '[' {
		l.pos++
		start := l.pos
		for l.pos < len(l.src) && l.src[l.pos] != ']' {
			l.pos++
		}
		text := string(l.src[start:l.pos])
		if l.pos < len(l.src) {
			l.pos++
		}
		return token{kind: tokIdent, text: text, start: tokenStart}
	}

	if isIdentStart(c) {
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.src[start:l.pos]), start: tokenStart}
	}

	if c >= '0' && c <= '9' {
		start := l.pos
		for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.src[start:l.pos]), start: tokenStart}
	}

	l.pos++
	return token{kind: tokPunct, text: string(c), start: tokenStart}
}

// parser is a small recursive-descent reader over one DDL statement's
// tokens, consumed left to right with one token of lookahead.
type parser struct {
	lex *lexer
	tok token
}

func newParser(sql string) *parser {
	p := &parser{lex: newLexer(sql)}
	p.advance()
	return p
}

func (p *parser) advance() { p.tok = p.lex.next() }

func (p *parser) atKeyword(kw string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) atPunct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parser) expectPunct(s string) error {
	if !p.atPunct(s) {
		return ErrParse
	}
	p.advance()
	return nil
}

func (p *parser) consumeKeyword(kw string) bool {
	if p.atKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) consumeIdentAnyCase(kws ...string) bool {
	if p.tok.kind != tokIdent {
		return false
	}
	for _, kw := range kws {
		if strings.EqualFold(p.tok.text, kw) {
			p.advance()
			return true
		}
	}
	return false
}

// ParseCreateTable parses a CREATE TABLE [IF NOT EXISTS] name (cols...)
// [WITHOUT ROWID] statement into a TableDef (RootPage left zero; the
// caller fills it in from the sqlite_master row).
func ParseCreateTable(sql string) (*TableDef, bool, error) {
	p := newParser(sql)
	if !p.consumeKeyword("CREATE") {
		return nil, false, ErrParse
	}
	if !p.consumeKeyword("TABLE") {
		return nil, false, ErrParse
	}
	ifNotExists := false
	if p.consumeKeyword("IF") {
		if !p.consumeKeyword("NOT") || !p.consumeKeyword("EXISTS") {
			return nil, false, ErrParse
		}
		ifNotExists = true
	}
	if p.tok.kind != tokIdent {
		return nil, false, ErrParse
	}
	name := p.tok.text
	p.advance()

	if err := p.expectPunct("("); err != nil {
		return nil, false, err
	}

	def := &TableDef{Name: name, RowidAlias: -1}
	for {
		if p.tok.kind != tokIdent {
			return nil, false, ErrParse
		}
		// Table-level constraints we don't model beyond PRIMARY KEY
		// detection are skipped up to the matching depth-0 comma/paren.
		if p.atKeyword("PRIMARY") || p.atKeyword("UNIQUE") || p.atKeyword("CHECK") || p.atKeyword("FOREIGN") {
			skipBalancedClause(p)
		} else {
			col, err := parseColumnDef(p)
			if err != nil {
				return nil, false, err
			}
			if col.PrimaryKey && col.Affinity == AffinityInteger {
				def.RowidAlias = len(def.Columns)
			}
			def.Columns = append(def.Columns, *col)
		}

		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, false, err
	}

	if p.consumeKeyword("WITHOUT") {
		if !p.consumeKeyword("ROWID") {
			return nil, false, ErrParse
		}
		def.WithoutRowID = true
		def.RowidAlias = -1
	}

	return def, ifNotExists, nil
}

func parseColumnDef(p *parser) (*ColumnDef, error) {
	col := &ColumnDef{Name: p.tok.text}
	p.advance()

	var typeParts []string
	for p.tok.kind == tokIdent && !isColumnConstraintKeyword(p.tok.text) {
		typeParts = append(typeParts, p.tok.text)
		p.advance()
		// Skip a type's optional (N) or (N,M) parameter list.
		if p.atPunct("(") {
			depth := 0
			for {
				if p.atPunct("(") {
					depth++
				} else if p.atPunct(")") {
					depth--
				} else if p.tok.kind == tokEOF {
					return nil, ErrParse
				}
				p.advance()
				if depth == 0 {
					break
				}
			}
		}
	}
	col.Declared = strings.Join(typeParts, " ")
	col.Affinity = ColumnAffinity(col.Declared)

	for {
		switch {
		case p.atKeyword("PRIMARY"):
			p.advance()
			if !p.consumeKeyword("KEY") {
				return nil, ErrParse
			}
			col.PrimaryKey = true
			p.consumeIdentAnyCase("ASC", "DESC")
			if p.consumeKeyword("AUTOINCREMENT") {
			}
		case p.atKeyword("NOT"):
			p.advance()
			if !p.consumeKeyword("NULL") {
				return nil, ErrParse
			}
			col.NotNull = true
		case p.atKeyword("UNIQUE"):
			p.advance()
		case p.atKeyword("DEFAULT"):
			p.advance()
			// Skip a single token or parenthesized expression.
			if p.atPunct("(") {
				skipBalancedParens(p)
			} else {
				p.advance()
			}
		case p.atKeyword("CHECK"):
			p.advance()
			skipBalancedParens(p)
		case p.atKeyword("COLLATE"):
			p.advance()
			p.advance()
		case p.atKeyword("REFERENCES"):
			p.advance()
			p.advance() // table name
			if p.atPunct("(") {
				skipBalancedParens(p)
			}
		default:
			return col, nil
		}
	}
}

func isColumnConstraintKeyword(word string) bool {
	switch strings.ToUpper(word) {
	case "PRIMARY", "NOT", "UNIQUE", "DEFAULT", "CHECK", "COLLATE", "REFERENCES":
		return true
	}
	return false
}

func skipBalancedParens(p *parser) {
	if !p.atPunct("(") {
		return
	}
	depth := 0
	for {
		if p.atPunct("(") {
			depth++
		} else if p.atPunct(")") {
			depth--
		} else if p.tok.kind == tokEOF {
			return
		}
		p.advance()
		if depth == 0 {
			return
		}
	}
}

// skipBalancedClause advances past a table-level constraint clause up
// to (but not consuming) the next top-level comma or closing paren.
func skipBalancedClause(p *parser) {
	depth := 0
	for {
		if p.tok.kind == tokEOF {
			return
		}
		if depth == 0 && (p.atPunct(",") || p.atPunct(")")) {
			return
		}
		if p.atPunct("(") {
			depth++
		} else if p.atPunct(")") {
			depth--
		}
		p.advance()
	}
}

// ParseCreateIndex parses CREATE [UNIQUE] INDEX [IF NOT EXISTS] name ON
// table (col, col, ...).
func ParseCreateIndex(sql string) (*IndexDef, bool, error) {
	p := newParser(sql)
	if !p.consumeKeyword("CREATE") {
		return nil, false, ErrParse
	}
	unique := p.consumeKeyword("UNIQUE")
	if !p.consumeKeyword("INDEX") {
		return nil, false, ErrParse
	}
	ifNotExists := false
	if p.consumeKeyword("IF") {
		if !p.consumeKeyword("NOT") || !p.consumeKeyword("EXISTS") {
			return nil, false, ErrParse
		}
		ifNotExists = true
	}
	if p.tok.kind != tokIdent {
		return nil, false, ErrParse
	}
	name := p.tok.text
	p.advance()
	if !p.consumeKeyword("ON") {
		return nil, false, ErrParse
	}
	if p.tok.kind != tokIdent {
		return nil, false, ErrParse
	}
	table := p.tok.text
	p.advance()

	if err := p.expectPunct("("); err != nil {
		return nil, false, err
	}
	var cols []string
	for {
		if p.tok.kind != tokIdent {
			return nil, false, ErrParse
		}
		cols = append(cols, p.tok.text)
		p.advance()
		p.consumeIdentAnyCase("ASC", "DESC")
		if p.atPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, false, err
	}

	return &IndexDef{Name: name, TableName: table, Columns: cols, Unique: unique}, ifNotExists, nil
}

// ParseCreateView parses CREATE VIEW [IF NOT EXISTS] name AS select-text,
// preserving the select text verbatim (it is re-parsed by pkg/sqlparse
// as an inline subquery on each reference).
func ParseCreateView(sql string) (*ViewDef, bool, error) {
	p := newParser(sql)
	if !p.consumeKeyword("CREATE") {
		return nil, false, ErrParse
	}
	if !p.consumeKeyword("VIEW") {
		return nil, false, ErrParse
	}
	ifNotExists := false
	if p.consumeKeyword("IF") {
		if !p.consumeKeyword("NOT") || !p.consumeKeyword("EXISTS") {
			return nil, false, ErrParse
		}
		ifNotExists = true
	}
	if p.tok.kind != tokIdent {
		return nil, false, ErrParse
	}
	name := p.tok.text
	p.advance()
	if !p.consumeKeyword("AS") {
		return nil, false, ErrParse
	}

	selectText := strings.TrimSpace(string(p.lex.src[p.tok.start:]))

	return &ViewDef{Name: name, SQL: selectText}, ifNotExists, nil
}

// AlterTable describes one ALTER TABLE operation.
type AlterTable struct {
	Table      string
	AddColumn  *ColumnDef // non-nil for ADD COLUMN
	RenameTo   string     // non-empty for RENAME TO
}

// ParseAlterTable parses ALTER TABLE name ADD COLUMN coldef, or
// ALTER TABLE name RENAME TO newname.
func ParseAlterTable(sql string) (*AlterTable, error) {
	p := newParser(sql)
	if !p.consumeKeyword("ALTER") || !p.consumeKeyword("TABLE") {
		return nil, ErrParse
	}
	if p.tok.kind != tokIdent {
		return nil, ErrParse
	}
	table := p.tok.text
	p.advance()

	if p.consumeKeyword("RENAME") {
		if !p.consumeKeyword("TO") {
			return nil, ErrParse
		}
		if p.tok.kind != tokIdent {
			return nil, ErrParse
		}
		newName := p.tok.text
		return &AlterTable{Table: table, RenameTo: newName}, nil
	}

	if p.consumeKeyword("ADD") {
		p.consumeKeyword("COLUMN")
		if p.tok.kind != tokIdent {
			return nil, ErrParse
		}
		col, err := parseColumnDef(p)
		if err != nil {
			return nil, err
		}
		return &AlterTable{Table: table, AddColumn: col}, nil
	}

	return nil, ErrParse
}
