// Package ignore compiles gitignore-style patterns into a predicate over
// repo-relative paths.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExtensions lists binary/image/data-file extensions that are always
// ignored regardless of project configuration.
var DefaultExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp",
	".zip", ".tar", ".gz", ".bz2", ".7z", ".rar",
	".so", ".dll", ".dylib", ".a", ".o", ".exe",
	".pdf", ".woff", ".woff2", ".ttf", ".eot",
	".db", ".sqlite", ".sqlite3",
}

// rule is a single compiled gitignore pattern.
type rule struct {
	regex    *regexp.Regexp
	negation bool
	dirOnly  bool
	anchored bool
}

// Matcher holds an ordered, immutable set of compiled patterns. A Matcher is
// safe for concurrent reads; build a new one (via Builder) to pick up
// changed source files and swap it in.
type Matcher struct {
	rules []rule
	exts  map[string]bool
	globs []string
}

// Builder accumulates pattern sources in priority order (engine defaults,
// then global configuration, then per-project ignore file) and compiles
// them into an immutable Matcher snapshot.
type Builder struct {
	mu         sync.Mutex
	patterns   []string
	globs      []string
	extensions map[string]bool
}

// NewBuilder creates a Builder seeded with the engine's default ignored
// extensions.
func NewBuilder() *Builder {
	b := &Builder{extensions: make(map[string]bool)}
	for _, ext := range DefaultExtensions {
		b.extensions[ext] = true
	}
	return b
}

// AddPatterns appends gitignore-syntax patterns from one ordered source.
// Call order matters: later sources override earlier ones for the same
// path per gitignore's last-match-wins semantics.
func (b *Builder) AddPatterns(patterns []string) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.patterns = append(b.patterns, patterns...)
	return b
}

// AddGlobs appends doublestar-syntax globs (config-supplied ignore
// patterns) matched independently of the gitignore rule chain: no
// negation, no last-match-wins, just an OR across all of them.
func (b *Builder) AddGlobs(patterns []string) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globs = append(b.globs, patterns...)
	return b
}

// AddExtensions marks additional extensions as always-ignored.
func (b *Builder) AddExtensions(exts []string) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ext := range exts {
		b.extensions[ext] = true
	}
	return b
}

// AddFile reads gitignore-syntax patterns from a file. A missing file is not
// an error; an empty per-project ignore file is the common case.
func (b *Builder) AddFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	b.AddPatterns(lines)
	return nil
}

// Build compiles the accumulated patterns into an immutable Matcher
// snapshot. The Builder can continue to be used after Build; readers keep
// the snapshot returned here even if the Builder is mutated afterward.
func (b *Builder) Build() *Matcher {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := &Matcher{exts: make(map[string]bool, len(b.extensions))}
	for ext := range b.extensions {
		m.exts[ext] = true
	}
	m.globs = append(m.globs, b.globs...)

	for _, pattern := range b.patterns {
		if r, ok := compilePattern(pattern); ok {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

// IsIgnored reports whether relPath (slash-separated, relative to the
// project root) should be excluded from indexing.
func (m *Matcher) IsIgnored(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)

	if !isDir {
		if m.exts[strings.ToLower(filepath.Ext(relPath))] {
			return true
		}
	}

	for _, g := range m.globs {
		if ok, _ := doublestar.Match(g, relPath); ok {
			return true
		}
	}

	ignored := false
	for _, r := range m.rules {
		if matchRule(relPath, isDir, r) {
			ignored = !r.negation
		}
	}
	return ignored
}

func compilePattern(pattern string) (rule, bool) {
	pattern = strings.TrimRight(pattern, "\r")
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return rule{}, false
	}
	pattern = trimmed

	var r rule
	if strings.HasPrefix(pattern, "\\#") || strings.HasPrefix(pattern, "\\!") {
		pattern = pattern[1:]
	} else if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	} else if strings.Contains(pattern, "/") {
		r.anchored = true
	}

	r.regex = regexp.MustCompile("^" + globToRegex(pattern) + "$")
	return r, true
}

func globToRegex(pattern string) string {
	var out strings.Builder
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					out.WriteString("(?:.*/)?")
					i += 3
					continue
				}
				out.WriteString(".*")
				i += 2
				continue
			}
			out.WriteString("[^/]*")
			i++
		case '?':
			out.WriteString("[^/]")
			i++
		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				out.WriteString(pattern[i : j+1])
				i = j + 1
			} else {
				out.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		case '.', '+', '^', '$', '(', ')', '{', '}', '|', '\\':
			out.WriteString(regexp.QuoteMeta(string(c)))
			i++
		default:
			out.WriteString(string(c))
			i++
		}
	}
	return out.String()
}

func matchRule(path string, isDir bool, r rule) bool {
	parts := strings.Split(path, "/")
	basename := parts[len(parts)-1]

	if r.anchored {
		if r.regex.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		if r.dirOnly {
			for i := range parts[:len(parts)-1] {
				if r.regex.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.regex.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.regex.MatchString(basename) || r.regex.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return false
}
