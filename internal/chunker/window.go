package chunker

import "bytes"

// slidingWindow produces windows of cfg.MaxChunkSize bytes with
// cfg.ChunkOverlap bytes of overlap between consecutive windows, each cut at
// the nearest preceding line boundary so no window splits a line in half.
// Concatenating the returned chunks' text in order, after dropping the
// first cfg.ChunkOverlap bytes of every chunk but the first, reproduces the
// original content exactly.
func slidingWindow(relPath, language string, content []byte, cfg Config) []Chunk {
	if len(content) == 0 {
		return nil
	}

	maxSize := cfg.MaxChunkSize
	if maxSize <= 0 {
		maxSize = len(content)
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 || overlap >= maxSize {
		overlap = 0
	}

	var chunks []Chunk
	pos := 0
	for pos < len(content) {
		end := pos + maxSize
		if end >= len(content) {
			end = len(content)
		} else {
			// Cut at the nearest preceding newline so we never split a
			// line across two windows.
			if nl := bytes.LastIndexByte(content[pos:end], '\n'); nl >= 0 {
				end = pos + nl + 1
			}
			if end <= pos {
				// No newline in range (e.g. one very long line): take the
				// full window rather than loop forever.
				end = pos + maxSize
			}
		}

		startLine := 1 + bytes.Count(content[:pos], []byte{'\n'})
		endLine := startLine + bytes.Count(content[pos:end], []byte{'\n'})
		if content[end-1] != '\n' {
			// endLine counts the line the window ends mid-way through too.
		} else {
			endLine--
		}

		chunks = append(chunks, Chunk{
			RelativePath: relPath,
			Language:     language,
			Kind:         KindWindow,
			StartLine:    startLine,
			EndLine:      endLine,
			Text:         string(content[pos:end]),
		})

		if end == len(content) {
			break
		}
		next := end - overlap
		if next <= pos {
			next = end
		}
		pos = next
	}

	for i := range chunks {
		chunks[i].ID = ComputeID(relPath, KindWindow, "", chunks[i].StartLine, chunks[i].EndLine)
	}
	return chunks
}
