package graph

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/code-rag-indexer/internal/parserpool"
)

// extractSpec names the tree-sitter node kinds that carry graph-relevant
// structure for one language: top-level function/class declarations, import
// statements, and call expressions. This mirrors the chunker's per-language
// table (see internal/chunker/ast.go) but is kept separate since the two
// concerns split nodes differently (a class chunk is one node; a class with
// three methods is four graph nodes plus three contains edges).
type extractSpec struct {
	functionKinds []string
	classKinds    []string
	importKinds   []string
	callKinds     []string
	nameField     string
	calleeField   string // field on the call node holding the callee expression
}

var extractSpecs = map[string]extractSpec{
	parserpool.Python: {
		functionKinds: []string{"function_definition"},
		classKinds:    []string{"class_definition"},
		importKinds:   []string{"import_statement", "import_from_statement"},
		callKinds:     []string{"call"},
		nameField:     "name",
		calleeField:   "function",
	},
	parserpool.Java: {
		functionKinds: []string{"method_declaration", "constructor_declaration"},
		classKinds:    []string{"class_declaration", "interface_declaration"},
		importKinds:   []string{"import_declaration"},
		callKinds:     []string{"method_invocation"},
		nameField:     "name",
		calleeField:   "name",
	},
	parserpool.Ruby: {
		functionKinds: []string{"method", "singleton_method"},
		classKinds:    []string{"class", "module"},
		importKinds:   []string{"call"}, // require/require_relative are plain calls
		callKinds:     []string{"call"},
		nameField:     "name",
		calleeField:   "method",
	},
	parserpool.Rust: {
		functionKinds: []string{"function_item"},
		classKinds:    []string{"struct_item", "impl_item", "enum_item", "trait_item"},
		importKinds:   []string{"use_declaration"},
		callKinds:     []string{"call_expression"},
		nameField:     "name",
		calleeField:   "function",
	},
	parserpool.PHP: {
		functionKinds: []string{"function_definition", "method_declaration"},
		classKinds:    []string{"class_declaration"},
		importKinds:   []string{"namespace_use_declaration"},
		callKinds:     []string{"function_call_expression", "member_call_expression"},
		nameField:     "name",
		calleeField:   "function",
	},
	parserpool.TypeScript: {
		functionKinds: []string{"function_declaration", "method_definition"},
		classKinds:    []string{"class_declaration", "interface_declaration"},
		importKinds:   []string{"import_statement"},
		callKinds:     []string{"call_expression"},
		nameField:     "name",
		calleeField:   "function",
	},
	parserpool.TSX: {
		functionKinds: []string{"function_declaration", "method_definition"},
		classKinds:    []string{"class_declaration", "interface_declaration"},
		importKinds:   []string{"import_statement"},
		callKinds:     []string{"call_expression"},
		nameField:     "name",
		calleeField:   "function",
	},
	parserpool.C: {
		functionKinds: []string{"function_definition"},
		importKinds:   []string{"preproc_include"},
		callKinds:     []string{"call_expression"},
		nameField:     "declarator",
		calleeField:   "function",
	},
}

// Extract walks a parsed syntax tree and produces the module/class/function
// nodes and contains/imports/calls edges for one file. Call resolution is
// intra-file only: a callee that isn't also declared in this file is
// dropped, never chased into other files (see SPEC_FULL.md §4.5). A language
// with no extractSpec entry (anything chunked via sliding-window) still gets
// a module node so the file is represented in the graph.
func Extract(relPath, language string, content []byte, tree *sitter.Tree) FileGraph {
	moduleID := NodeID(relPath, NodeModule, relPath, 0, 0)
	fg := FileGraph{
		FilePath: relPath,
		Nodes: []Node{{
			ID:       moduleID,
			Kind:     NodeModule,
			Name:     relPath,
			FilePath: relPath,
		}},
	}

	spec, ok := extractSpecs[language]
	if !ok || tree == nil {
		return fg
	}

	lines := strings.Split(string(content), "\n")
	root := tree.RootNode()

	declared := map[string]string{} // declaration name -> node id, for intra-file call resolution
	childCount := int(root.ChildCount())

	var classNodes []Node
	var funcNodes []Node

	for i := 0; i < childCount; i++ {
		child := root.Child(uint(i))
		if child == nil {
			continue
		}
		kind := child.Kind()

		switch {
		case containsKind(spec.importKinds, kind):
			targets, edges := extractImportEdges(moduleID, lines, child)
			fg.Nodes = append(fg.Nodes, targets...)
			fg.Edges = append(fg.Edges, edges...)

		case containsKind(spec.classKinds, kind):
			class := declNode(relPath, NodeClass, spec, lines, child)
			classNodes = append(classNodes, class)
			declared[class.Name] = class.ID
			fg.Edges = append(fg.Edges, Edge{SourceID: moduleID, TargetID: class.ID, Relation: RelContains})

			walkChildren(child, func(n *sitter.Node) {
				if containsKind(spec.functionKinds, n.Kind()) {
					method := declNode(relPath, NodeFunction, spec, lines, n)
					funcNodes = append(funcNodes, method)
					declared[class.Name+"."+method.Name] = method.ID
					fg.Edges = append(fg.Edges, Edge{SourceID: class.ID, TargetID: method.ID, Relation: RelContains})
				}
			})

		case containsKind(spec.functionKinds, kind):
			fn := declNode(relPath, NodeFunction, spec, lines, child)
			funcNodes = append(funcNodes, fn)
			declared[fn.Name] = fn.ID
			fg.Edges = append(fg.Edges, Edge{SourceID: moduleID, TargetID: fn.ID, Relation: RelContains})
		}
	}

	fg.Nodes = append(fg.Nodes, classNodes...)
	fg.Nodes = append(fg.Nodes, funcNodes...)

	for _, fn := range funcNodes {
		fg.Edges = append(fg.Edges, extractCallEdges(fn, spec, lines, findNodeByRange(root, fn.StartLine, fn.EndLine), declared)...)
	}

	return fg
}

func declNode(relPath string, kind NodeKind, spec extractSpec, lines []string, node *sitter.Node) Node {
	startLine := int(node.StartPosition().Row) + 1
	endLine := int(node.EndPosition().Row) + 1
	name := ""
	if nameNode := node.ChildByFieldName(spec.nameField); nameNode != nil {
		name = nodeText(lines, nameNode)
	}
	return Node{
		ID:        NodeID(relPath, kind, name, startLine, endLine),
		Kind:      kind,
		Name:      name,
		FilePath:  relPath,
		StartLine: startLine,
		EndLine:   endLine,
	}
}

// extractImportEdges emits one imports edge per import statement, targeting
// a synthetic module node keyed on the imported module's literal text.
// ApplyDiff drops any edge whose endpoint isn't a registered vertex (see
// store.go), so the target node is returned alongside the edge rather than
// left implicit; its id is deterministic from the import text, so every
// file importing the same module resolves to the same shared node instead
// of minting a duplicate.
func extractImportEdges(moduleID string, lines []string, node *sitter.Node) ([]Node, []Edge) {
	text := strings.TrimSpace(nodeText(lines, node))
	if text == "" {
		return nil, nil
	}
	target := NodeID("", NodeModule, text, 0, 0)
	targetNode := Node{ID: target, Kind: NodeModule, Name: text}
	edge := Edge{SourceID: moduleID, TargetID: target, Relation: RelImports}
	return []Node{targetNode}, []Edge{edge}
}

// extractCallEdges walks a function's body for call expressions, resolving
// each callee against the names declared anywhere in this same file. Calls to
// names not declared in this file are dropped: cross-file resolution is out
// of scope (Open Question resolved, SPEC_FULL.md §4.5).
func extractCallEdges(fn Node, spec extractSpec, lines []string, body *sitter.Node, declared map[string]string) []Edge {
	if body == nil || len(spec.callKinds) == 0 {
		return nil
	}
	var edges []Edge
	walkChildren(body, func(n *sitter.Node) {
		if !containsKind(spec.callKinds, n.Kind()) {
			return
		}
		calleeNode := n.ChildByFieldName(spec.calleeField)
		if calleeNode == nil {
			return
		}
		calleeName := lastSelector(nodeText(lines, calleeNode))
		if targetID, ok := declared[calleeName]; ok && targetID != fn.ID {
			edges = append(edges, Edge{SourceID: fn.ID, TargetID: targetID, Relation: RelCalls})
		}
	})
	return edges
}

// lastSelector reduces a dotted/arrow call expression like "self.helper" or
// "obj->method" to its final identifier, the piece that can match a
// same-file declaration name.
func lastSelector(expr string) string {
	expr = strings.TrimSpace(expr)
	if i := strings.LastIndexAny(expr, ".>"); i >= 0 {
		expr = expr[i+1:]
	}
	return strings.TrimSpace(expr)
}

// findNodeByRange re-locates the syntax node covering [startLine, endLine]
// under root; used to re-enter a function body for call-edge extraction
// after the declaration pass has already computed its Node.
func findNodeByRange(root *sitter.Node, startLine, endLine int) *sitter.Node {
	var found *sitter.Node
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if found != nil {
			return
		}
		s := int(n.StartPosition().Row) + 1
		e := int(n.EndPosition().Row) + 1
		if s == startLine && e == endLine {
			found = n
			return
		}
		count := int(n.ChildCount())
		for i := 0; i < count; i++ {
			if c := n.Child(uint(i)); c != nil {
				walk(c)
			}
		}
	}
	walk(root)
	return found
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
