package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/llmspell/pkg/core"
)

func TestNewCounterFallsBackForUnknownModel(t *testing.T) {
	c, err := NewCounter("some-unreleased-model")
	require.NoError(t, err)
	assert.Greater(t, c.Count("hello world"), 0)
}

func TestCountConversationIncludesFramingOverhead(t *testing.T) {
	c, err := NewCounter("gpt-4")
	require.NoError(t, err)

	bare := c.Count("hi")
	withOverhead := c.CountConversation([]core.ConversationMessage{
		{Role: core.RoleUser, Content: "hi"},
	})

	assert.Greater(t, withOverhead, bare)
}

func TestCounterIsDeterministic(t *testing.T) {
	c, err := NewCounter("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, c.Count("the quick brown fox"), c.Count("the quick brown fox"))
}
