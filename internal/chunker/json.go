package chunker

import (
	"encoding/json"
	"fmt"
	"sort"
)

// jsonObject chunks a JSON file one chunk per top-level property (or, for a
// top-level array, one chunk per element). A property whose raw value
// exceeds cfg.MaxChunkSize is itself split: if it is an object, split per
// key; otherwise fall back to sliding-window over its raw text. Key order is
// not preserved by encoding/json's map decoding, so keys are sorted for a
// deterministic, repeatable chunk order across runs.
func jsonObject(relPath, language string, content []byte, cfg Config) ([]Chunk, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("chunker: invalid json: %w", err)
	}

	trimmed := skipWhitespace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("chunker: invalid json object: %w", err)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var chunks []Chunk
		line := 1
		for _, key := range keys {
			value := obj[key]
			chunks = append(chunks, jsonProperty(relPath, language, key, value, cfg, &line)...)
		}
		return chunks, nil

	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, fmt.Errorf("chunker: invalid json array: %w", err)
		}
		var chunks []Chunk
		line := 1
		for i, elem := range arr {
			name := fmt.Sprintf("[%d]", i)
			chunks = append(chunks, jsonProperty(relPath, language, name, elem, cfg, &line)...)
		}
		return chunks, nil

	default:
		// A bare scalar document: one chunk for the whole file.
		return []Chunk{{
			RelativePath: relPath,
			Language:     language,
			Kind:         KindDocument,
			StartLine:    1,
			EndLine:      1,
			Text:         string(content),
			ID:           ComputeID(relPath, KindDocument, "", 1, 1),
		}}, nil
	}
}

// jsonProperty builds the chunk(s) for one top-level key (or array element),
// splitting recursively by key if the value is an oversized object and
// otherwise sliding-windowing the raw text.
func jsonProperty(relPath, language, name string, value json.RawMessage, cfg Config, line *int) []Chunk {
	text := string(value)
	lines := 1
	for _, b := range text {
		if b == '\n' {
			lines++
		}
	}
	startLine := *line
	endLine := startLine + lines - 1
	*line = endLine + 1

	if len(value) <= cfg.MaxChunkSize || cfg.MaxChunkSize <= 0 {
		return []Chunk{{
			RelativePath: relPath,
			Language:     language,
			Kind:         KindBlock,
			Name:         name,
			StartLine:    startLine,
			EndLine:      endLine,
			Text:         text,
			ID:           ComputeID(relPath, KindBlock, name, startLine, endLine),
		}}
	}

	trimmed := skipWhitespace(value)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(value, &obj); err == nil {
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			var chunks []Chunk
			sub := startLine
			for _, k := range keys {
				chunks = append(chunks, jsonProperty(relPath, language, name+"."+k, obj[k], cfg, &sub)...)
			}
			return chunks
		}
	}

	// Fall back to sliding-window for oversized scalar/array leaves.
	windows := slidingWindow(relPath, language, value, cfg)
	for i := range windows {
		windows[i].Name = name
		windows[i].Kind = KindBlock
		windows[i].StartLine += startLine - 1
		windows[i].EndLine += startLine - 1
		windows[i].ID = ComputeID(relPath, KindBlock, fmt.Sprintf("%s#%d", name, i), windows[i].StartLine, windows[i].EndLine)
	}
	return windows
}

func skipWhitespace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}
