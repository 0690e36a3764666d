package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Dacite syntax
// ---------------------------------------------------------------------------

// binaryPrecedence maps binary operators to their precedence level.
// All levels are left-associative.
var binaryPrecedence = map[TokenType]int{
	TokenComma:       0,
	TokenAssign:      1,
	TokenPlusAssign:  1,
	TokenMinusAssign: 1,
	TokenStarAssign:  1,
	TokenSlashAssign: 1,
	TokenOrOr:        2,
	TokenAndAnd:      3,
	TokenPipe:        4,
	TokenCaret:       5,
	TokenAmp:         6,
	TokenEq:          7,
	TokenNeq:         7,
	TokenGt:          8,
	TokenLt:          8,
	TokenGeq:         8,
	TokenLeq:         8,
	TokenPlus:        9,
	TokenMinus:       9,
	TokenStar:        10,
	TokenSlash:       10,
	TokenDot:         11,
}

// Parser parses Dacite source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []string
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	if p.curTokenIs(TokenError) {
		p.errorf("%s", p.curToken.Literal)
	} else {
		p.errorf("expected %s, got %s", t, p.curToken.Type)
	}
	return false
}

// errorf records a parse error.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.curToken.Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// synchronize skips tokens until a statement boundary so that one bad
// statement does not drown the rest of the file in follow-on errors.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) && !p.curTokenIs(TokenError) {
		if p.curTokenIs(TokenSemicolon) {
			p.nextToken()
			return
		}
		if p.curTokenIs(TokenRBrace) {
			return
		}
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses the whole input as a top-level statement list.
func (p *Parser) ParseProgram() *CodeBlock {
	start := p.curToken.Pos

	var stmts []Stmt
	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenError) {
			p.errorf("%s", p.curToken.Literal)
			break
		}
		stmt := p.ParseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}

	return &CodeBlock{
		SpanVal: MakeSpan(start, p.curToken.Pos),
		Stmts:   stmts,
	}
}

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() Stmt {
	switch p.curToken.Type {
	case TokenLet:
		return p.parseVarDecl()
	case TokenLBrace:
		return p.parseCodeBlock()
	case TokenIf:
		return p.parseIfElse()
	case TokenYield:
		return p.parseYield()
	case TokenSemicolon:
		p.nextToken() // empty statement
		return nil
	case TokenWhile, TokenDo, TokenFunc, TokenReturn, TokenConst, TokenUnique, TokenShared:
		p.errorf("%s is reserved and not yet supported", p.curToken.Type)
		p.synchronize()
		return nil
	default:
		return p.parseExprStatement()
	}
}

// parseVarDecl parses: let [lock] [ref] T name [= expr] ;
func (p *Parser) parseVarDecl() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume let

	typ, ok := p.parseType()
	if !ok {
		p.synchronize()
		return nil
	}

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected variable name, got %s", p.curToken.Type)
		p.synchronize()
		return nil
	}
	name := p.curToken
	p.nextToken()

	var init Expr
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		// The declaration's own = is a delimiter, not the assignment
		// operator, so the initializer starts above that level.
		init = p.parseBinary(2)
		if init == nil {
			p.synchronize()
			return nil
		}
	}

	end := p.curToken.Pos
	if !p.expect(TokenSemicolon) {
		p.synchronize()
	}

	return &VarDecl{
		SpanVal: MakeSpan(start, end),
		Type:    typ,
		Name:    name,
		Init:    init,
	}
}

// parseType parses a type: [lock] [ref] name [N]. The qualifier order is
// free; each may appear once.
func (p *Parser) parseType() (TypeDesc, bool) {
	var typ TypeDesc

	for {
		switch p.curToken.Type {
		case TokenLock:
			if typ.Locked {
				p.errorf("duplicate lock qualifier")
			}
			typ.Locked = true
			p.nextToken()
			continue
		case TokenRef:
			if typ.Ref {
				p.errorf("duplicate ref qualifier")
			}
			typ.Ref = true
			p.nextToken()
			continue
		}
		break
	}

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected type name, got %s", p.curToken.Type)
		return typ, false
	}
	typ.Name = p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenLBracket) {
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			p.errorf("expected array size, got %s", p.curToken.Type)
			return typ, false
		}
		n, err := strconv.Atoi(p.curToken.Literal)
		if err != nil || n <= 0 {
			p.errorf("invalid array size %q", p.curToken.Literal)
			return typ, false
		}
		typ.ArrSize = n
		p.nextToken()
		if !p.expect(TokenRBracket) {
			return typ, false
		}
	}

	return typ, true
}

// parseCodeBlock parses: { stmts... }
func (p *Parser) parseCodeBlock() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume {

	var stmts []Stmt
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenError) {
			p.errorf("%s", p.curToken.Literal)
			return nil
		}
		stmt := p.ParseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}

	end := p.curToken.Pos
	if !p.expect(TokenRBrace) {
		return nil
	}

	return &CodeBlock{
		SpanVal: MakeSpan(start, end),
		Stmts:   stmts,
	}
}

// parseIfElse parses: if (cond) stmt [else stmt]
func (p *Parser) parseIfElse() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume if

	if !p.expect(TokenLParen) {
		p.synchronize()
		return nil
	}
	cond := p.parseBinary(1)
	if cond == nil || !p.expect(TokenRParen) {
		p.synchronize()
		return nil
	}

	then := p.ParseStatement()
	if then == nil {
		return nil
	}

	var elseStmt Stmt
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		elseStmt = p.ParseStatement()
	}

	return &IfElse{
		SpanVal: MakeSpan(start, p.curToken.Pos),
		Cond:    cond,
		Then:    then,
		Else:    elseStmt,
	}
}

// parseYield parses: yield expr ;
func (p *Parser) parseYield() Stmt {
	start := p.curToken.Pos
	p.nextToken() // consume yield

	inner := p.parseBinary(1)
	if inner == nil {
		p.synchronize()
		return nil
	}

	end := p.curToken.Pos
	if !p.expect(TokenSemicolon) {
		p.synchronize()
	}

	return &Yield{
		SpanVal: MakeSpan(start, end),
		Inner:   inner,
	}
}

// parseExprStatement parses a bare expression statement: expr ;
func (p *Parser) parseExprStatement() Stmt {
	start := p.curToken.Pos

	expr := p.parseBinary(0)
	if expr == nil {
		p.synchronize()
		return nil
	}

	end := p.curToken.Pos
	if !p.expect(TokenSemicolon) {
		p.synchronize()
	}

	return &DoExpr{
		SpanVal: MakeSpan(start, end),
		Inner:   expr,
	}
}

// ---------------------------------------------------------------------------
// Expression parsing
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	return p.parseBinary(0)
}

// parseBinary parses binary operator chains at or above minPrec using
// precedence climbing.
func (p *Parser) parseBinary(minPrec int) Expr {
	left := p.parseUnary()
	if left == nil {
		return nil
	}

	for {
		prec, ok := binaryPrecedence[p.curToken.Type]
		if !ok || prec < minPrec {
			return left
		}
		op := p.curToken.Type
		p.nextToken()

		right := p.parseBinary(prec + 1)
		if right == nil {
			return nil
		}

		left = &Binary{
			SpanVal: MakeSpan(left.Span().Start, right.Span().End),
			Op:      op,
			Left:    left,
			Right:   right,
		}
	}
}

// parseUnary parses prefix operators, which bind tighter than any binary
// operator.
func (p *Parser) parseUnary() Expr {
	switch p.curToken.Type {
	case TokenBang, TokenTilde, TokenMinus:
		start := p.curToken.Pos
		op := p.curToken.Type
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &Unary{
			SpanVal: MakeSpan(start, operand.Span().End),
			Op:      op,
			Operand: operand,
		}
	}
	return p.parsePrimary()
}

// parsePrimary parses literals, identifiers, parenthesized expressions, and
// typed expression blocks.
func (p *Parser) parsePrimary() Expr {
	switch p.curToken.Type {
	case TokenNumber:
		tok := p.curToken
		p.nextToken()
		return &Number{
			SpanVal: MakeSpan(tok.Pos, p.curToken.Pos),
			Tok:     tok,
		}

	case TokenIdentifier:
		if p.peekTokenIs(TokenColon) {
			return p.parseExprBlock()
		}
		tok := p.curToken
		p.nextToken()
		return &Identifier{
			SpanVal: MakeSpan(tok.Pos, p.curToken.Pos),
			Tok:     tok,
		}

	case TokenLParen:
		p.nextToken()
		expr := p.parseBinary(0)
		if expr == nil {
			return nil
		}
		if !p.expect(TokenRParen) {
			return nil
		}
		return expr

	case TokenString:
		p.errorf("string literals are reserved and not yet supported")
		p.nextToken()
		return nil

	case TokenError:
		p.errorf("%s", p.curToken.Literal)
		p.nextToken()
		return nil

	default:
		p.errorf("unexpected %s in expression", p.curToken.Type)
		p.nextToken()
		return nil
	}
}

// parseExprBlock parses: T : { stmts... }. The type before the colon is a
// bare name; template arguments and array suffixes are not accepted here.
func (p *Parser) parseExprBlock() Expr {
	start := p.curToken.Pos
	typ := TypeDesc{Name: p.curToken.Literal}
	p.nextToken() // consume type name
	p.nextToken() // consume :

	if !p.curTokenIs(TokenLBrace) {
		p.errorf("expected { after expression block type, got %s", p.curToken.Type)
		return nil
	}
	p.nextToken()

	var stmts []Stmt
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenError) {
			p.errorf("%s", p.curToken.Literal)
			return nil
		}
		stmt := p.ParseStatement()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}

	end := p.curToken.Pos
	if !p.expect(TokenRBrace) {
		return nil
	}

	return &ExprBlock{
		SpanVal: MakeSpan(start, end),
		Type:    typ,
		Stmts:   stmts,
	}
}
