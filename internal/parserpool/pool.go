// Package parserpool wraps tree-sitter grammars behind a lease discipline:
// parsers are not safe to share across goroutines, so callers borrow one per
// parse and return it when done.
package parserpool

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tsc "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tsjava "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tsphp "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tspython "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tsruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
	tsrust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tstypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Language names recognized by the default pool. The extension->language
// mapping is the fixed table in internal/pipeline (languages.go); parsing
// support is limited to this closed set; anything else falls back to
// sliding-window chunking with no AST.
const (
	Python     = "python"
	TypeScript = "typescript"
	TSX        = "tsx"
	Java       = "java"
	C          = "c"
	Ruby       = "ruby"
	Rust       = "rust"
	PHP        = "php"
)

// Pool hands out leased tree-sitter parsers per language.
type Pool struct {
	mu        sync.Mutex
	languages map[string]*sitter.Language
	free      map[string][]*sitter.Parser
}

// New builds a Pool with the default grammar set registered.
func New() *Pool {
	p := &Pool{
		languages: make(map[string]*sitter.Language),
		free:      make(map[string][]*sitter.Parser),
	}
	p.languages[Python] = sitter.NewLanguage(tspython.Language())
	p.languages[Java] = sitter.NewLanguage(tsjava.Language())
	p.languages[C] = sitter.NewLanguage(tsc.Language())
	p.languages[Ruby] = sitter.NewLanguage(tsruby.Language())
	p.languages[Rust] = sitter.NewLanguage(tsrust.Language())
	p.languages[PHP] = sitter.NewLanguage(tsphp.LanguagePHP())
	p.languages[TypeScript] = sitter.NewLanguage(tstypescript.LanguageTypescript())
	p.languages[TSX] = sitter.NewLanguage(tstypescript.LanguageTSX())
	return p
}

// Supports reports whether lang has a registered grammar.
func (p *Pool) Supports(lang string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.languages[lang]
	return ok
}

// Lease borrows a parser for lang, creating one if the free list is empty.
// Callers must call Release when done; the parser must not be used from
// another goroutine concurrently with this lease.
func (p *Pool) Lease(lang string) (*sitter.Parser, error) {
	p.mu.Lock()
	language, ok := p.languages[lang]
	if !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("parserpool: unsupported language %q", lang)
	}
	if free := p.free[lang]; len(free) > 0 {
		parser := free[len(free)-1]
		p.free[lang] = free[:len(free)-1]
		p.mu.Unlock()
		return parser, nil
	}
	p.mu.Unlock()

	parser := sitter.NewParser()
	if err := parser.SetLanguage(language); err != nil {
		parser.Close()
		return nil, fmt.Errorf("parserpool: set language %q: %w", lang, err)
	}
	return parser, nil
}

// Release returns a leased parser to the pool for reuse.
func (p *Pool) Release(lang string, parser *sitter.Parser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free[lang] = append(p.free[lang], parser)
}

// Parse leases a parser for lang, parses source, and releases the parser
// before returning. A parse failure (nil tree) is non-fatal: callers should
// fall back to sliding-window chunking rather than propagate an error that
// halts the file.
func (p *Pool) Parse(ctx context.Context, lang string, source []byte) (*sitter.Tree, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	parser, err := p.Lease(lang)
	if err != nil {
		return nil, err
	}
	defer p.Release(lang, parser)

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parserpool: %s parse returned no tree", lang)
	}
	return tree, nil
}

// Close releases every pooled parser. Safe to call once at shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for lang, parsers := range p.free {
		for _, parser := range parsers {
			parser.Close()
		}
		delete(p.free, lang)
	}
}
