package chunker

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/code-rag-indexer/internal/parserpool"
)

// langSpec names the tree-sitter node kinds that mark a top-level function
// or class/type declaration for one language, and the field holding its
// name. Adding a language means adding an entry here; the chunker dispatch
// never needs an interface hierarchy for this (see SPEC_FULL.md §4.4).
type langSpec struct {
	functionKinds []string
	classKinds    []string
	nameField     string
}

var langSpecs = map[string]langSpec{
	parserpool.Python: {
		functionKinds: []string{"function_definition"},
		classKinds:    []string{"class_definition"},
		nameField:     "name",
	},
	parserpool.Java: {
		functionKinds: []string{"method_declaration", "constructor_declaration"},
		classKinds:    []string{"class_declaration", "interface_declaration"},
		nameField:     "name",
	},
	parserpool.C: {
		functionKinds: []string{"function_definition"},
		nameField:     "declarator",
	},
	parserpool.Ruby: {
		functionKinds: []string{"method", "singleton_method"},
		classKinds:    []string{"class", "module"},
		nameField:     "name",
	},
	parserpool.Rust: {
		functionKinds: []string{"function_item"},
		classKinds:    []string{"struct_item", "impl_item", "enum_item", "trait_item"},
		nameField:     "name",
	},
	parserpool.PHP: {
		functionKinds: []string{"function_definition", "method_declaration"},
		classKinds:    []string{"class_declaration"},
		nameField:     "name",
	},
	parserpool.TypeScript: {
		functionKinds: []string{"function_declaration", "method_definition"},
		classKinds:    []string{"class_declaration", "interface_declaration"},
		nameField:     "name",
	},
	parserpool.TSX: {
		functionKinds: []string{"function_declaration", "method_definition"},
		classKinds:    []string{"class_declaration", "interface_declaration"},
		nameField:     "name",
	},
}

// astChunks produces one chunk per top-level function/class declaration.
// Classes recurse into their methods, each a chunk with ParentChunkID set
// to the class chunk's id. A method chunk smaller than cfg.MinChunkSize is
// merged upward into its class chunk; top-level declarations are kept
// whatever their size. Non-blank, non-declaration lines before a declaration
// (package clause, imports) become a block chunk.
func astChunks(relPath, language string, content []byte, tree *sitter.Tree, cfg Config) []Chunk {
	spec, ok := langSpecs[language]
	if !ok {
		return nil
	}

	lines := strings.Split(string(content), "\n")
	root := tree.RootNode()

	var chunks []Chunk
	lastEndLine := 0

	addHeaderIfGap := func(nextStartLine int) {
		if nextStartLine-1 > lastEndLine {
			headerStart := lastEndLine + 1
			headerEnd := nextStartLine - 1
			if strings.TrimSpace(strings.Join(lines[headerStart-1:headerEnd], "\n")) == "" {
				return
			}
			chunks = append(chunks, Chunk{
				RelativePath: relPath,
				Language:     language,
				Kind:         KindBlock,
				StartLine:    headerStart,
				EndLine:      headerEnd,
				Text:         strings.Join(lines[headerStart-1:headerEnd], "\n"),
				ID:           ComputeID(relPath, KindBlock, "", headerStart, headerEnd),
			})
		}
	}

	childCount := int(root.ChildCount())
	for i := 0; i < childCount; i++ {
		child := root.Child(uint(i))
		if child == nil {
			continue
		}
		kind := child.Kind()

		switch {
		case containsKind(spec.classKinds, kind):
			addHeaderIfGap(int(child.StartPosition().Row) + 1)
			classChunk, methodChunks := astClassChunk(relPath, language, content, lines, child, spec)
			chunks = append(chunks, classChunk)
			chunks = append(chunks, methodChunks...)
			lastEndLine = classChunk.EndLine

		case containsKind(spec.functionKinds, kind):
			addHeaderIfGap(int(child.StartPosition().Row) + 1)
			fn := astLeafChunk(relPath, language, lines, child, spec, KindFunction, "")
			chunks = append(chunks, fn)
			lastEndLine = fn.EndLine
		}
	}

	return mergeSmallChunks(chunks, cfg.MinChunkSize)
}

func astClassChunk(relPath, language string, content []byte, lines []string, node *sitter.Node, spec langSpec) (Chunk, []Chunk) {
	class := astLeafChunk(relPath, language, lines, node, spec, KindClass, "")

	var methods []Chunk
	walkChildren(node, func(n *sitter.Node) {
		if containsKind(spec.functionKinds, n.Kind()) {
			m := astLeafChunk(relPath, language, lines, n, spec, KindFunction, class.ID)
			methods = append(methods, m)
		}
	})
	return class, methods
}

func astLeafChunk(relPath, language string, lines []string, node *sitter.Node, spec langSpec, kind Kind, parentID string) Chunk {
	startLine := int(node.StartPosition().Row) + 1
	endLine := int(node.EndPosition().Row) + 1

	name := ""
	if nameNode := node.ChildByFieldName(spec.nameField); nameNode != nil {
		name = nodeText(lines, nameNode)
	}

	text := strings.Join(lines[startLine-1:endLine], "\n")
	return Chunk{
		RelativePath:  relPath,
		Language:      language,
		Kind:          kind,
		Name:          name,
		StartLine:     startLine,
		EndLine:       endLine,
		Text:          text,
		ParentChunkID: parentID,
		ID:            ComputeID(relPath, kind, name, startLine, endLine),
	}
}

// nodeText extracts a node's text by line range; tree-sitter nodes carry
// byte offsets but line-based extraction keeps this helper independent of
// needing the raw []byte alongside the already-split lines.
func nodeText(lines []string, node *sitter.Node) string {
	startLine := int(node.StartPosition().Row)
	endLine := int(node.EndPosition().Row)
	if startLine < 0 || startLine >= len(lines) {
		return ""
	}
	if startLine == endLine {
		startCol := int(node.StartPosition().Column)
		endCol := int(node.EndPosition().Column)
		line := lines[startLine]
		if startCol >= 0 && endCol <= len(line) && startCol <= endCol {
			return line[startCol:endCol]
		}
		return strings.TrimSpace(line)
	}
	if endLine >= len(lines) {
		endLine = len(lines) - 1
	}
	return strings.Join(lines[startLine:endLine+1], "\n")
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func walkChildren(node *sitter.Node, visit func(*sitter.Node)) {
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		child := node.Child(uint(i))
		if child == nil {
			continue
		}
		visit(child)
		walkChildren(child, visit)
	}
}

// mergeSmallChunks folds any nested chunk (one with a ParentChunkID) smaller
// than minSize upward into its parent, whose text already spans it, so the
// nested chunk is dropped. Top-level chunks are kept as they are.
func mergeSmallChunks(chunks []Chunk, minSize int) []Chunk {
	if minSize <= 0 {
		return chunks
	}

	var out []Chunk
	for _, c := range chunks {
		if c.ParentChunkID != "" && len(c.Text) < minSize {
			continue
		}
		out = append(out, c)
	}
	return out
}
