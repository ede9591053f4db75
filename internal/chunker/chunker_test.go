package chunker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-rag-indexer/internal/parserpool"
)

func TestChunk_Python_TwoFunctions(t *testing.T) {
	pool := parserpool.New()
	defer pool.Close()

	src := []byte("def f(): return 1\n\ndef g(): return 2\n")
	tree, err := pool.Parse(context.Background(), parserpool.Python, src)
	require.NoError(t, err)
	defer tree.Close()

	chunks, err := Chunk(context.Background(), Input{
		RelativePath: "a.py",
		Language:     parserpool.Python,
		Strategy:     StrategyAST,
		Content:      src,
		Tree:         tree,
	}, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, KindFunction, chunks[0].Kind)
	assert.Equal(t, "f", chunks[0].Name)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 1, chunks[0].EndLine)

	assert.Equal(t, "g", chunks[1].Name)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, 3, chunks[1].EndLine)
}

func TestChunk_Deterministic(t *testing.T) {
	pool := parserpool.New()
	defer pool.Close()

	src := []byte("def f(): return 1\n")
	cfg := DefaultConfig()

	parseAndChunk := func() []Chunk {
		tree, err := pool.Parse(context.Background(), parserpool.Python, src)
		require.NoError(t, err)
		defer tree.Close()
		chunks, err := Chunk(context.Background(), Input{
			RelativePath: "a.py",
			Language:     parserpool.Python,
			Strategy:     StrategyAST,
			Content:      src,
			Tree:         tree,
		}, cfg)
		require.NoError(t, err)
		return chunks
	}

	first := parseAndChunk()
	second := parseAndChunk()
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestChunk_ParseFailureFallsBackToWindow(t *testing.T) {
	src := []byte("def (\nbroken python\n")
	chunks, err := Chunk(context.Background(), Input{
		RelativePath: "broken.py",
		Language:     parserpool.Python,
		Strategy:     StrategyAST,
		Content:      src,
		Tree:         nil, // parser pool failed to produce a usable tree
	}, DefaultConfig())
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, KindWindow, chunks[0].Kind)
}

func TestSlidingWindow_ReproducesContent(t *testing.T) {
	content := make([]byte, 0)
	for i := 0; i < 50; i++ {
		content = append(content, []byte("line number which is reasonably long to force splitting\n")...)
	}

	cfg := Config{MaxChunkSize: 500, MinChunkSize: 50, ChunkOverlap: 50}
	chunks := slidingWindow("big.txt", "", content, cfg)
	require.NotEmpty(t, chunks)

	var rebuilt []byte
	for i, c := range chunks {
		text := []byte(c.Text)
		if i > 0 {
			text = text[cfg.ChunkOverlap:]
		}
		rebuilt = append(rebuilt, text...)
	}
	assert.Equal(t, string(content), string(rebuilt))
}

func TestSlidingWindow_EmptyFile(t *testing.T) {
	chunks := slidingWindow("empty.txt", "", nil, DefaultConfig())
	assert.Empty(t, chunks)
}

func TestJSONObject_TopLevelProperties(t *testing.T) {
	content := []byte(`{"a": 1, "b": {"c": 2}}`)
	chunks, err := jsonObject("data.json", "json", content, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].Name)
	assert.Equal(t, "b", chunks[1].Name)
}

func TestJSONObject_TopLevelArray(t *testing.T) {
	content := []byte(`[1, 2, 3]`)
	chunks, err := jsonObject("data.json", "json", content, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "[0]", chunks[0].Name)
}

func TestYAMLDocument_MultiDoc(t *testing.T) {
	content := []byte("a: 1\n---\nb: 2\n---\nc: 3\n")
	chunks := yamlDocument("data.yaml", "yaml", content, DefaultConfig())
	require.Len(t, chunks, 3)
	assert.Contains(t, chunks[0].Text, "a: 1")
	assert.Contains(t, chunks[2].Text, "c: 3")
}

func TestMarkdownSection_Nesting(t *testing.T) {
	content := []byte("# Title\n\nintro\n\n## Sub\n\nbody\n")
	chunks := markdownSection("doc.md", "markdown", content, DefaultConfig())
	require.Len(t, chunks, 2)
	assert.Equal(t, "Title", chunks[0].Name)
	assert.Equal(t, "Sub", chunks[1].Name)
	assert.Equal(t, chunks[0].ID, chunks[1].ParentChunkID)
}

func TestMarkdownSection_NoHeadings(t *testing.T) {
	content := []byte("just text\nmore text\n")
	chunks := markdownSection("doc.md", "markdown", content, DefaultConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, KindSection, chunks[0].Kind)
}
