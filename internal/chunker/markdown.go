package chunker

import (
	"regexp"
	"strings"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// markdownSection produces one chunk per heading section. Sub-headings
// nest under their nearest enclosing heading of lower level via
// ParentChunkID. A document with no headings yields a single section chunk
// covering the whole file.
func markdownSection(relPath, language string, content []byte, cfg Config) []Chunk {
	lines := strings.Split(string(content), "\n")
	if len(content) == 0 {
		return nil
	}

	type heading struct {
		level     int
		name      string
		startLine int
	}
	var headings []heading
	for i, line := range lines {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			headings = append(headings, heading{
				level:     len(m[1]),
				name:      strings.TrimSpace(m[2]),
				startLine: i + 1,
			})
		}
	}

	if len(headings) == 0 {
		text := strings.Join(lines, "\n")
		return []Chunk{{
			RelativePath: relPath,
			Language:     language,
			Kind:         KindSection,
			StartLine:    1,
			EndLine:      len(lines),
			Text:         text,
			ID:           ComputeID(relPath, KindSection, "", 1, len(lines)),
		}}
	}

	type stackEntry struct {
		level int
		id    string
	}
	var stack []stackEntry
	var chunks []Chunk

	for idx, h := range headings {
		endLine := len(lines)
		if idx+1 < len(headings) {
			endLine = headings[idx+1].startLine - 1
		}
		text := strings.Join(lines[h.startLine-1:endLine], "\n")
		id := ComputeID(relPath, KindSection, h.name, h.startLine, endLine)

		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		var parent string
		if len(stack) > 0 {
			parent = stack[len(stack)-1].id
		}
		stack = append(stack, stackEntry{level: h.level, id: id})

		chunks = append(chunks, Chunk{
			RelativePath:  relPath,
			Language:      language,
			Kind:          KindSection,
			Name:          h.name,
			StartLine:     h.startLine,
			EndLine:       endLine,
			Text:          text,
			ParentChunkID: parent,
			ID:            id,
		})
	}

	_ = cfg
	return chunks
}
