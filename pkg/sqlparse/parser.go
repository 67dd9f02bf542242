package sqlparse

import (
	"fmt"
	"strconv"
)

// precedence levels, lowest to highest, for the Pratt-style expression
// parser below. Grounded on the teacher's parser.go precedence table,
// trimmed to the operators this dialect supports.
const (
	precLowest = iota
	precOr
	precAnd
	precNot
	precIs // IS, IN, LIKE, BETWEEN
	precEquals
	precConcat
	precSum
	precProduct
	precUnary
)

var binaryPrecedence = map[TokenType]int{
	TokOr:      precOr,
	TokAnd:     precAnd,
	TokEq:      precEquals,
	TokNeq:     precEquals,
	TokLt:      precEquals,
	TokLte:     precEquals,
	TokGt:      precEquals,
	TokGte:     precEquals,
	TokConcat:  precConcat,
	TokPlus:    precSum,
	TokMinus:   precSum,
	TokStar:    precProduct,
	TokSlash:   precProduct,
	TokPercent: precProduct,
}

// Parser parses one statement from a SQL source string.
type Parser struct {
	lex  *lexer
	src  string
	cur  Token
	peek Token
	err  error

	positional int // count of ? placeholders seen so far
}

// New constructs a Parser over src. Call ParseSelect to parse the body.
func New(src string) *Parser {
	p := &Parser{lex: newLexer(src), src: src}
	p.advance()
	p.advance()
	return p
}

func (p *Parser) advance() {
	if p.err != nil {
		return
	}
	p.cur = p.peek
	tok, err := p.lex.next()
	if err != nil {
		p.err = err
		return
	}
	p.peek = tok
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("sqlparse: "+format, args...)
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	if p.cur.Type != tt {
		return Token{}, p.errorf("expected %s, got %q", what, p.cur.Text)
	}
	t := p.cur
	p.advance()
	return t, p.err
}

func (p *Parser) ident() (string, error) {
	if p.cur.Type != TokIdent {
		return "", p.errorf("expected identifier, got %q", p.cur.Text)
	}
	name := p.cur.Text
	p.advance()
	return name, p.err
}

// ParseSelect parses a full (possibly compound, possibly WITH-prefixed,
// possibly hinted) SELECT statement.
func ParseSelect(sql string) (*Select, error) {
	p := New(sql)
	sel, err := p.parseSelectStatement()
	if err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.cur.Type == TokSemicolon {
		p.advance()
	}
	if p.cur.Type != TokEOF {
		return nil, p.errorf("unexpected trailing input near %q", p.cur.Text)
	}
	return sel, nil
}

func (p *Parser) parseSelectStatement() (*Select, error) {
	sel := &Select{}

	switch p.cur.Type {
	case TokCached:
		sel.Hint = HintCached
		p.advance()
	case TokJit:
		sel.Hint = HintJIT
		p.advance()
	}

	if p.cur.Type == TokWith {
		p.advance()
		for {
			name, err := p.ident()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokAs, "AS"); err != nil {
				return nil, err
			}
			if _, err := p.expect(TokLParen, "("); err != nil {
				return nil, err
			}
			inner, err := p.parseSelectStatement()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return nil, err
			}
			sel.With = append(sel.With, CTE{Name: name, Query: inner})
			if p.cur.Type == TokComma {
				p.advance()
				continue
			}
			break
		}
	}

	core, err := p.parseSelectCore()
	if err != nil {
		return nil, err
	}
	sel.Core = core

	for {
		var op SetOp
		switch p.cur.Type {
		case TokUnion:
			p.advance()
			if p.cur.Type == TokAll {
				op = SetOpUnionAll
				p.advance()
			} else {
				op = SetOpUnion
			}
		case TokIntersect:
			op = SetOpIntersect
			p.advance()
		case TokExcept:
			op = SetOpExcept
			p.advance()
		default:
			goto tail
		}
		next, err := p.parseSelectCore()
		if err != nil {
			return nil, err
		}
		sel.Compound = append(sel.Compound, CompoundTerm{Op: op, Core: next})
	}

tail:
	if p.cur.Type == TokOrder {
		p.advance()
		if _, err := p.expect(TokBy, "BY"); err != nil {
			return nil, err
		}
		terms, err := p.parseOrderByList()
		if err != nil {
			return nil, err
		}
		sel.OrderBy = terms
	}

	if p.cur.Type == TokLimit {
		p.advance()
		lim, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		sel.Limit = lim
		if p.cur.Type == TokOffset {
			p.advance()
			off, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			sel.Offset = off
		} else if p.cur.Type == TokComma {
			// LIMIT offset, count (MySQL-style shorthand)
			p.advance()
			count, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			sel.Offset = lim
			sel.Limit = count
		}
	}

	return sel, p.err
}

func (p *Parser) parseOrderByList() ([]OrderTerm, error) {
	var terms []OrderTerm
	for {
		e, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		desc := false
		switch p.cur.Type {
		case TokAsc:
			p.advance()
		case TokDesc:
			desc = true
			p.advance()
		}
		terms = append(terms, OrderTerm{Expr: e, Desc: desc})
		if p.cur.Type == TokComma {
			p.advance()
			continue
		}
		break
	}
	return terms, nil
}

func (p *Parser) parseSelectCore() (*SelectCore, error) {
	if _, err := p.expect(TokSelect, "SELECT"); err != nil {
		return nil, err
	}
	core := &SelectCore{}
	if p.cur.Type == TokDistinct {
		core.Distinct = true
		p.advance()
	} else if p.cur.Type == TokAll {
		p.advance()
	}

	cols, err := p.parseResultColumns()
	if err != nil {
		return nil, err
	}
	core.Columns = cols

	if p.cur.Type == TokFrom {
		p.advance()
		from, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		core.From = from
	}

	if p.cur.Type == TokWhere {
		p.advance()
		w, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		core.Where = w
	}

	if p.cur.Type == TokGroup {
		p.advance()
		if _, err := p.expect(TokBy, "BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			core.GroupBy = append(core.GroupBy, e)
			if p.cur.Type == TokComma {
				p.advance()
				continue
			}
			break
		}
		if p.cur.Type == TokHaving {
			p.advance()
			h, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			core.Having = h
		}
	}

	return core, p.err
}

func (p *Parser) parseResultColumns() ([]ResultColumn, error) {
	var cols []ResultColumn
	for {
		col, err := p.parseResultColumn()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.cur.Type == TokComma {
			p.advance()
			continue
		}
		break
	}
	return cols, nil
}

func (p *Parser) parseResultColumn() (ResultColumn, error) {
	if p.cur.Type == TokStar {
		p.advance()
		return ResultColumn{Star: true}, p.err
	}
	if p.cur.Type == TokIdent && p.peek.Type == TokDot {
		save := p.cur.Text
		p.advance()
		p.advance()
		if p.cur.Type == TokStar {
			p.advance()
			return ResultColumn{Star: true, Table: save}, p.err
		}
		// put the identifier/dot path through the general expression
		// parser by re-synthesizing a ColumnRef.
		col, err := p.ident()
		if err != nil {
			return ResultColumn{}, err
		}
		rc := ResultColumn{Expr: &ColumnRef{Table: save, Column: col}}
		return p.maybeAlias(rc)
	}

	e, err := p.parseExpr(precLowest)
	if err != nil {
		return ResultColumn{}, err
	}
	return p.maybeAlias(ResultColumn{Expr: e})
}

func (p *Parser) maybeAlias(rc ResultColumn) (ResultColumn, error) {
	if p.cur.Type == TokAs {
		p.advance()
		name, err := p.ident()
		if err != nil {
			return rc, err
		}
		rc.Alias = name
		return rc, nil
	}
	if p.cur.Type == TokIdent {
		rc.Alias = p.cur.Text
		p.advance()
	}
	return rc, p.err
}

func (p *Parser) parseTableRef() (*TableRef, error) {
	ref, err := p.parseSingleTableRef()
	if err != nil {
		return nil, err
	}
	for p.cur.Type == TokJoin || p.cur.Type == TokLeft || p.cur.Type == TokInner {
		kind := JoinInner
		if p.cur.Type == TokLeft {
			kind = JoinLeft
			p.advance()
			if p.cur.Type == TokJoin {
				p.advance()
			}
		} else if p.cur.Type == TokInner {
			p.advance()
			if _, err := p.expect(TokJoin, "JOIN"); err != nil {
				return nil, err
			}
		} else {
			p.advance()
		}
		right, err := p.parseSingleTableRef()
		if err != nil {
			return nil, err
		}
		var on Expr
		if p.cur.Type == TokOn {
			p.advance()
			on, err = p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
		}
		ref.JoinKind = kind
		ref.Join = right
		ref.On = on
		return ref, nil
	}
	return ref, nil
}

func (p *Parser) parseSingleTableRef() (*TableRef, error) {
	if p.cur.Type == TokLParen {
		p.advance()
		sub, err := p.parseSelectStatement()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		ref := &TableRef{Subquery: sub}
		if p.cur.Type == TokAs {
			p.advance()
		}
		if p.cur.Type == TokIdent {
			ref.Alias = p.cur.Text
			p.advance()
		}
		return ref, p.err
	}

	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	ref := &TableRef{Name: name}
	if p.cur.Type == TokAs {
		p.advance()
		alias, err := p.ident()
		if err != nil {
			return nil, err
		}
		ref.Alias = alias
	} else if p.cur.Type == TokIdent {
		ref.Alias = p.cur.Text
		p.advance()
	}
	return ref, p.err
}

// parseExpr is the Pratt-style expression parser, grounded on the
// teacher's parser.go precedence-climbing loop.
func (p *Parser) parseExpr(precedence int) (Expr, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		if stopToken[p.cur.Type] {
			break
		}
		if p.cur.Type == TokNot || p.cur.Type == TokIs || p.cur.Type == TokIn || p.cur.Type == TokLike || p.cur.Type == TokBetween {
			if precedence >= precIs {
				break
			}
			left, err = p.parsePostfixKeyword(left)
			if err != nil {
				return nil, err
			}
			continue
		}
		prec, ok := binaryPrecedence[p.cur.Type]
		if !ok || precedence >= prec {
			break
		}
		op := p.cur.Type
		p.advance()
		right, err := p.parseExpr(prec)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}
	return left, p.err
}

var stopToken = map[TokenType]bool{
	TokEOF: true, TokSemicolon: true, TokRParen: true, TokComma: true,
	TokAsc: true, TokDesc: true, TokOrder: true, TokLimit: true, TokOffset: true,
	TokGroup: true, TokHaving: true, TokAs: true,
}

// parsePostfixKeyword handles the keyword-led postfix forms: IS [NOT]
// NULL, [NOT] IN (...), [NOT] BETWEEN a AND b, [NOT] LIKE pattern.
func (p *Parser) parsePostfixKeyword(left Expr) (Expr, error) {
	not := false
	if p.cur.Type == TokNot {
		not = true
		p.advance()
	}
	switch p.cur.Type {
	case TokIs:
		p.advance()
		isNot := not
		if p.cur.Type == TokNot {
			isNot = !isNot
			p.advance()
		}
		if _, err := p.expect(TokNull, "NULL"); err != nil {
			return nil, err
		}
		return &IsNullExpr{Expr: left, Not: isNot}, nil
	case TokIn:
		p.advance()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		var list []Expr
		for p.cur.Type != TokRParen {
			e, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			list = append(list, e)
			if p.cur.Type == TokComma {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return &InExpr{Expr: left, Not: not, List: list}, nil
	case TokBetween:
		p.advance()
		lo, err := p.parseExpr(precSum)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokAnd, "AND"); err != nil {
			return nil, err
		}
		hi, err := p.parseExpr(precSum)
		if err != nil {
			return nil, err
		}
		return &BetweenExpr{Expr: left, Not: not, Lo: lo, Hi: hi}, nil
	case TokLike:
		p.advance()
		pattern, err := p.parseExpr(precSum)
		if err != nil {
			return nil, err
		}
		op := TokLike
		be := &BinaryExpr{Left: left, Op: op, Right: pattern}
		if not {
			return &UnaryExpr{Op: TokNot, Expr: be}, nil
		}
		return be, nil
	}
	return nil, p.errorf("expected IS/IN/BETWEEN/LIKE after NOT, got %q", p.cur.Text)
}

func (p *Parser) parsePrefix() (Expr, error) {
	switch p.cur.Type {
	case TokNumber:
		text := p.cur.Text
		p.advance()
		if containsAny(text, ".eE") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, p.errorf("bad numeric literal %q", text)
			}
			return &Literal{IsReal: true, Float: f}, p.err
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, p.errorf("bad integer literal %q", text)
		}
		return &Literal{IsInt: true, Int: i}, p.err

	case TokString:
		s := p.cur.Text
		p.advance()
		return &Literal{IsStr: true, Str: s}, p.err

	case TokNull:
		p.advance()
		return &Literal{IsNull: true}, p.err

	case TokTrue:
		p.advance()
		return &Literal{IsBool: true, Bool: true}, p.err

	case TokFalse:
		p.advance()
		return &Literal{IsBool: true, Bool: false}, p.err

	case TokQMark:
		p.advance()
		p.positional++
		return &Param{Position: p.positional}, p.err

	case TokParam:
		name := p.cur.Text
		p.advance()
		return &Param{Name: name}, p.err

	case TokMinus, TokPlus:
		op := p.cur.Type
		p.advance()
		e, err := p.parseExpr(precUnary)
		if err != nil {
			return nil, err
		}
		if op == TokPlus {
			return e, nil
		}
		return &UnaryExpr{Op: TokMinus, Expr: e}, nil

	case TokNot:
		p.advance()
		e, err := p.parseExpr(precNot)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: TokNot, Expr: e}, nil

	case TokLParen:
		p.advance()
		e, err := p.parseExpr(precLowest)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return e, nil

	case TokIdent:
		return p.parseIdentOrCall()

	case TokStar:
		return nil, p.errorf("'*' is only valid as a top-level projection or inside COUNT(*)")
	}
	return nil, p.errorf("unexpected token %q in expression", p.cur.Text)
}

var aggregateNames = map[string]AggregateKind{
	"COUNT": AggCount,
	"SUM":   AggSum,
	"AVG":   AggAvg,
	"MIN":   AggMin,
	"MAX":   AggMax,
}

func (p *Parser) parseIdentOrCall() (Expr, error) {
	name := p.cur.Text
	p.advance()

	if p.cur.Type == TokLParen {
		if kind, ok := aggregateNames[upperASCII(name)]; ok {
			p.advance()
			if p.cur.Type == TokStar {
				p.advance()
				if _, err := p.expect(TokRParen, ")"); err != nil {
					return nil, err
				}
				return &AggregateExpr{Kind: kind, Star: true}, nil
			}
			arg, err := p.parseExpr(precLowest)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return nil, err
			}
			return &AggregateExpr{Kind: kind, Arg: arg}, nil
		}
		return nil, p.errorf("unknown function %q", name)
	}

	if p.cur.Type == TokDot {
		p.advance()
		col, err := p.ident()
		if err != nil {
			return nil, err
		}
		return &ColumnRef{Table: name, Column: col}, p.err
	}

	return &ColumnRef{Column: name}, nil
}

func containsAny(s, chars string) bool {
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(chars); j++ {
			if s[i] == chars[j] {
				return true
			}
		}
	}
	return false
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}
