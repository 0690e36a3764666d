// Package server provides the Dacite language server.
package server

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/dacite-lang/dacite/compiler"
	"github.com/dacite-lang/dacite/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "dacite-lsp"

// LspServer provides diagnostics, hover and completion for Dacite sources.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI -> full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new language server.
func NewLSP(version string) *LspServer {
	s := &LspServer{
		docs:    make(map[string]string),
		version: version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := make([]protocol.Diagnostic, 0)
	for _, msg := range checkSource(text) {
		line := diagnosticLine(msg)
		severity := protocol.DiagnosticSeverityError
		source := lspName
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: 0},
				End:   protocol.Position{Line: line, Character: 0},
			},
			Severity: &severity,
			Source:   &source,
			Message:  msg,
		})
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// checkSource runs the front end and the lowering pass, returning all error
// messages.
func checkSource(text string) []string {
	parser := compiler.NewParser(text)
	top := parser.ParseProgram()
	if errs := parser.Errors(); len(errs) > 0 {
		return errs
	}
	_, errs := bytecode.Compile(top)
	return errs
}

// diagnosticLine extracts the zero-based line from a "line N: ..." message.
func diagnosticLine(msg string) protocol.UInteger {
	rest, ok := strings.CutPrefix(msg, "line ")
	if !ok {
		return 0
	}
	num, _, ok := strings.Cut(rest, ":")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return 0
	}
	return protocol.UInteger(n - 1)
}

// --- Language features ---

var keywordDocs = map[string]string{
	"let":   "Declares a variable: `let [lock] [ref] type name [= init];`",
	"if":    "Conditional statement: `if (cond) stmt [else stmt]`",
	"else":  "Alternative branch of an `if` statement",
	"yield": "Produces the value of the enclosing expression block",
	"ref":   "Reference qualifier; the variable aliases another variable's storage",
	"lock":  "Lock qualifier; the variable cannot be assigned after initialization",
}

var typeDocs = map[string]string{
	"u8": "Unsigned 8-bit integer", "u16": "Unsigned 16-bit integer",
	"u32": "Unsigned 32-bit integer", "u64": "Unsigned 64-bit integer",
	"i8": "Signed 8-bit integer", "i16": "Signed 16-bit integer",
	"i32": "Signed 32-bit integer", "i64": "Signed 64-bit integer",
	"f32": "32-bit IEEE float", "f64": "64-bit IEEE float",
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	prefix := strings.ToLower(extractPrefix(text, pos))
	var items []protocol.CompletionItem

	for word := range keywordDocs {
		if strings.HasPrefix(word, prefix) {
			kind := protocol.CompletionItemKindKeyword
			doc := keywordDocs[word]
			items = append(items, protocol.CompletionItem{
				Label:  word,
				Kind:   &kind,
				Detail: &doc,
			})
		}
	}
	for name := range typeDocs {
		if strings.HasPrefix(name, prefix) {
			kind := protocol.CompletionItemKindTypeParameter
			doc := typeDocs[name]
			items = append(items, protocol.CompletionItem{
				Label:  name,
				Kind:   &kind,
				Detail: &doc,
			})
		}
	}
	for name, typ := range declaredVars(text) {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			kind := protocol.CompletionItemKindVariable
			detail := typ
			items = append(items, protocol.CompletionItem{
				Label:  name,
				Kind:   &kind,
				Detail: &detail,
			})
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	word := extractWord(text, pos)
	if word == "" {
		return nil, nil
	}

	var value string
	switch {
	case typeDocs[word] != "":
		value = fmt.Sprintf("**%s**\n\n%s", word, typeDocs[word])
	case keywordDocs[word] != "":
		value = fmt.Sprintf("**%s**\n\n%s", word, keywordDocs[word])
	default:
		if typ, ok := declaredVars(text)[word]; ok {
			value = fmt.Sprintf("```\nlet %s %s\n```", typ, word)
		}
	}
	if value == "" {
		return nil, nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}, nil
}

// declaredVars collects variable declarations from a best-effort parse of the
// document, mapping name to declared type.
func declaredVars(text string) map[string]string {
	parser := compiler.NewParser(text)
	top := parser.ParseProgram()
	vars := make(map[string]string)
	collectDecls(top, vars)
	return vars
}

func collectDecls(stmt compiler.Stmt, vars map[string]string) {
	switch n := stmt.(type) {
	case *compiler.VarDecl:
		vars[n.Name.Literal] = n.Type.String()
	case *compiler.CodeBlock:
		for _, inner := range n.Stmts {
			collectDecls(inner, vars)
		}
	case *compiler.IfElse:
		collectDecls(n.Then, vars)
		if n.Else != nil {
			collectDecls(n.Else, vars)
		}
	}
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	end := col
	for end < len(line) {
		ch := rune(line[end])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			end++
		} else {
			break
		}
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
