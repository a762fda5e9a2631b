package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	c := NewCounter()

	n, err := c.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = c.CountTokens("hello world")
	require.NoError(t, err)
	assert.Positive(t, n)

	longer, err := c.CountTokens("hello world, hello again")
	require.NoError(t, err)
	assert.Greater(t, longer, n)
}

func TestCountTokensStable(t *testing.T) {
	c := NewCounter()
	a, err := c.CountTokens("the same text twice")
	require.NoError(t, err)
	b, err := c.CountTokens("the same text twice")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
