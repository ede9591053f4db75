package parserpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ParsePython(t *testing.T) {
	p := New()
	defer p.Close()

	tree, err := p.Parse(context.Background(), Python, []byte("def f():\n    return 1\n"))
	require.NoError(t, err)
	require.NotNil(t, tree)
	defer tree.Close()

	assert.Equal(t, "module", tree.RootNode().Kind())
}

func TestPool_UnsupportedLanguage(t *testing.T) {
	p := New()
	defer p.Close()

	_, err := p.Parse(context.Background(), "cobol", []byte("IDENTIFICATION DIVISION."))
	assert.Error(t, err)
}

func TestPool_LeaseRelease_Reuse(t *testing.T) {
	p := New()
	defer p.Close()

	parser, err := p.Lease(Python)
	require.NoError(t, err)
	p.Release(Python, parser)

	again, err := p.Lease(Python)
	require.NoError(t, err)
	assert.Same(t, parser, again)
	p.Release(Python, again)
}

func TestPool_Supports(t *testing.T) {
	p := New()
	defer p.Close()
	assert.True(t, p.Supports(Python))
	assert.False(t, p.Supports("cobol"))
}
