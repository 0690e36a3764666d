package compiler

import "testing"

func TestLexerPunctuationAndOperators(t *testing.T) {
	input := `( ) { } [ ] ; : , = + - * / . ! ~ | ^ & < >`

	expected := []TokenType{
		TokenLParen, TokenRParen, TokenLBrace, TokenRBrace,
		TokenLBracket, TokenRBracket, TokenSemicolon, TokenColon,
		TokenComma, TokenAssign, TokenPlus, TokenMinus,
		TokenStar, TokenSlash, TokenDot, TokenBang, TokenTilde,
		TokenPipe, TokenCaret, TokenAmp, TokenLt, TokenGt,
		TokenEOF,
	}

	lexer := NewLexer(input)
	for i, want := range expected {
		tok := lexer.NextToken()
		if tok.Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerCompoundOperators(t *testing.T) {
	input := `+= -= *= /= == != >= <= || &&`

	expected := []TokenType{
		TokenPlusAssign, TokenMinusAssign, TokenStarAssign, TokenSlashAssign,
		TokenEq, TokenNeq, TokenGeq, TokenLeq,
		TokenOrOr, TokenAndAnd,
		TokenEOF,
	}

	lexer := NewLexer(input)
	for i, want := range expected {
		tok := lexer.NextToken()
		if tok.Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input   string
		literal string
	}{
		{"0", "0"},
		{"42", "42"},
		{"3.5", "3.5"},
		{"2f", "2f"},
		{"9d", "9d"},
		{"1.25f", "1.25f"},
		{"0.5d", "0.5d"},
	}

	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("lex %q: type = %v, want NUMBER", tt.input, tok.Type)
		}
		if tok.Literal != tt.literal {
			t.Errorf("lex %q: literal = %q, want %q", tt.input, tok.Literal, tt.literal)
		}
	}
}

func TestLexerNumberDotWithoutDigit(t *testing.T) {
	// "1." is a number followed by a dot, not a fractional literal.
	lexer := NewLexer("1.x")
	tok := lexer.NextToken()
	if tok.Type != TokenNumber || tok.Literal != "1" {
		t.Errorf("first token = %v(%q), want NUMBER(\"1\")", tok.Type, tok.Literal)
	}
	if tok := lexer.NextToken(); tok.Type != TokenDot {
		t.Errorf("second token = %v, want .", tok.Type)
	}
}

func TestLexerIdentifiersAndReservedWords(t *testing.T) {
	input := `let lock ref if else yield foo _tmp u32 letx`

	expected := []struct {
		typ     TokenType
		literal string
	}{
		{TokenLet, "let"},
		{TokenLock, "lock"},
		{TokenRef, "ref"},
		{TokenIf, "if"},
		{TokenElse, "else"},
		{TokenYield, "yield"},
		{TokenIdentifier, "foo"},
		{TokenIdentifier, "_tmp"},
		{TokenIdentifier, "u32"},
		{TokenIdentifier, "letx"},
		{TokenEOF, ""},
	}

	lexer := NewLexer(input)
	for i, want := range expected {
		tok := lexer.NextToken()
		if tok.Type != want.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want.typ)
		}
		if tok.Literal != want.literal {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, want.literal)
		}
	}
}

func TestLexerFutureReservedWords(t *testing.T) {
	input := `while do func return const Unique Shared`

	expected := []TokenType{
		TokenWhile, TokenDo, TokenFunc, TokenReturn,
		TokenConst, TokenUnique, TokenShared, TokenEOF,
	}

	lexer := NewLexer(input)
	for i, want := range expected {
		tok := lexer.NextToken()
		if tok.Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, want)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input   string
		literal string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\"b"`, `a"b`},
		{`"back\\slash"`, `back\slash`},
	}

	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("lex %s: type = %v, want STRING", tt.input, tok.Type)
			continue
		}
		if tok.Literal != tt.literal {
			t.Errorf("lex %s: literal = %q, want %q", tt.input, tok.Literal, tt.literal)
		}
	}
}

func TestLexerStringErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{`"unterminated`, "unterminated string"},
		{"\"line\nbreak\"", "newline in string literal"},
		{`"trailing\`, "unterminated string"},
	}

	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("lex %q: type = %v, want ERROR", tt.input, tok.Type)
			continue
		}
		if tok.Literal != tt.msg {
			t.Errorf("lex %q: message = %q, want %q", tt.input, tok.Literal, tt.msg)
		}
	}
}

func TestLexerComments(t *testing.T) {
	input := `a // line comment
b /* block
comment */ c`

	expected := []string{"a", "b", "c"}
	lexer := NewLexer(input)
	for i, want := range expected {
		tok := lexer.NextToken()
		if tok.Type != TokenIdentifier || tok.Literal != want {
			t.Errorf("token[%d] = %v(%q), want IDENTIFIER(%q)", i, tok.Type, tok.Literal, want)
		}
	}
	if tok := lexer.NextToken(); tok.Type != TokenEOF {
		t.Errorf("trailing token = %v, want EOF", tok.Type)
	}
}

func TestLexerUnterminatedBlockComment(t *testing.T) {
	tok := NewLexer("a /* never closed").NextToken()
	if tok.Type != TokenIdentifier {
		t.Fatalf("first token = %v, want IDENTIFIER", tok.Type)
	}
	tok = NewLexer("/* never closed").NextToken()
	if tok.Type != TokenError || tok.Literal != "unterminated block comment" {
		t.Errorf("token = %v(%q), want ERROR(unterminated block comment)", tok.Type, tok.Literal)
	}
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	tok := NewLexer("@").NextToken()
	if tok.Type != TokenError {
		t.Fatalf("token type = %v, want ERROR", tok.Type)
	}
	if tok.Literal != "unexpected character: @" {
		t.Errorf("message = %q, want %q", tok.Literal, "unexpected character: @")
	}
}

func TestLexerPositions(t *testing.T) {
	input := "let\n  x"
	lexer := NewLexer(input)

	tok := lexer.NextToken()
	if tok.Pos.Line != 1 || tok.Pos.Column != 1 {
		t.Errorf("let at %d:%d, want 1:1", tok.Pos.Line, tok.Pos.Column)
	}
	tok = lexer.NextToken()
	if tok.Pos.Line != 2 || tok.Pos.Column != 3 {
		t.Errorf("x at %d:%d, want 2:3", tok.Pos.Line, tok.Pos.Column)
	}
}

func TestTokenizeStopsAtError(t *testing.T) {
	tokens := Tokenize(`let x @ y`)
	last := tokens[len(tokens)-1]
	if last.Type != TokenError {
		t.Errorf("last token = %v, want ERROR", last.Type)
	}
	for _, tok := range tokens[:len(tokens)-1] {
		if tok.Type == TokenError {
			t.Errorf("error token before the end of the stream")
		}
	}
}

func TestTokenizeFullDeclaration(t *testing.T) {
	tokens := Tokenize(`let lock u32 x = 1 + 2;`)

	expected := []TokenType{
		TokenLet, TokenLock, TokenIdentifier, TokenIdentifier,
		TokenAssign, TokenNumber, TokenPlus, TokenNumber,
		TokenSemicolon, TokenEOF,
	}
	if len(tokens) != len(expected) {
		t.Fatalf("token count = %d, want %d", len(tokens), len(expected))
	}
	for i, want := range expected {
		if tokens[i].Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, tokens[i].Type, want)
		}
	}
}

func BenchmarkLexer(b *testing.B) {
	src := `
let u32 total = 0;
{
	let lock u16 step = 3;
	total += step * 2;
	if (total >= 6 && total != 0) {
		total -= 1;
	} else {
		total = u32 : { yield 9; };
	}
}
// trailing comment
`
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Tokenize(src)
	}
}
