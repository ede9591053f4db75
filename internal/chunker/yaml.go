package chunker

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlDocument produces one chunk per "---"-separated YAML document. Each
// document is validated with a real YAML decode; a malformed document still
// yields a chunk (so retrieval keeps working) but is flagged in metadata.
func yamlDocument(relPath, language string, content []byte, cfg Config) []Chunk {
	lines := strings.Split(string(content), "\n")

	var chunks []Chunk
	docStart := 0 // 0-indexed line where the current document begins
	flush := func(endExclusive int) {
		if endExclusive <= docStart {
			docStart = endExclusive + 1
			return
		}
		docLines := lines[docStart:endExclusive]
		text := strings.Join(docLines, "\n")
		if strings.TrimSpace(text) == "" {
			docStart = endExclusive + 1
			return
		}

		startLine := docStart + 1
		endLine := endExclusive

		var probe any
		valid := yaml.Unmarshal([]byte(text), &probe) == nil

		meta := map[string]string{}
		if !valid {
			meta["yaml_valid"] = "false"
		}

		chunks = append(chunks, Chunk{
			RelativePath: relPath,
			Language:     language,
			Kind:         KindDocument,
			StartLine:    startLine,
			EndLine:      endLine,
			Text:         text,
			Metadata:     meta,
			ID:           ComputeID(relPath, KindDocument, "", startLine, endLine),
		})
	}

	for i, line := range lines {
		if strings.TrimRight(line, " \t\r") == "---" {
			flush(i)
			docStart = i + 1
		}
	}
	flush(len(lines))

	if len(chunks) == 0 {
		// No content at all: zero chunks, per the empty-file boundary case.
		return nil
	}

	_ = cfg // byte-size splitting of oversized YAML documents is not required by the spec
	return chunks
}
