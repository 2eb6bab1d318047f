package adapters

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByID(t *testing.T) {
	a, ok := ByID("chatgpt")
	require.True(t, ok)
	assert.Equal(t, "ChatGPT", a.DisplayName)

	_, ok = ByID("notachat")
	assert.False(t, ok)
}

func TestByHostname(t *testing.T) {
	tests := []struct {
		host   string
		wantID string
		found  bool
	}{
		{"chatgpt.com", "chatgpt", true},
		{"chat.openai.com", "chatgpt", true},
		{"claude.ai", "claude", true},
		{"www.perplexity.ai", "perplexity", true},
		{"gemini.google.com", "gemini", true},
		{"kimi.moonshot.cn", "kimi", true},
		{"notchatgpt.com", "", false},
		{"chatgpt.com.evil.example", "", false},
		{"example.com", "", false},
	}

	for _, tt := range tests {
		a, ok := ByHostname(tt.host)
		assert.Equal(t, tt.found, ok, "host %s", tt.host)
		if tt.found {
			assert.Equal(t, tt.wantID, a.ID, "host %s", tt.host)
		}
	}
}

func TestMatchIsSuffixNotSubstring(t *testing.T) {
	a, ok := ByID("claude")
	require.True(t, ok)

	assert.True(t, a.Match("claude.ai"))
	assert.True(t, a.Match("www.claude.ai"))
	assert.False(t, a.Match("claude.ai.example.com"))
	assert.False(t, a.Match("notclaude.ai"))
}

func TestBuildURLEmbedsPrompt(t *testing.T) {
	a, ok := ByID("perplexity")
	require.True(t, ok)

	built := a.BuildURL("summarize this:\nhttps://example.com/a b")
	u, err := url.Parse(built)
	require.NoError(t, err)
	assert.Equal(t, "summarize this:\nhttps://example.com/a b", u.Query().Get("q"))
}

func TestBuildURLWithoutParam(t *testing.T) {
	a, ok := ByID("chatgpt")
	require.True(t, ok)
	assert.Equal(t, a.ChatURL, a.BuildURL("anything"))
}

func TestRegistryShape(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range All() {
		require.NotEmpty(t, a.ID)
		assert.False(t, seen[a.ID], "duplicate id %s", a.ID)
		seen[a.ID] = true

		assert.NotEmpty(t, a.DisplayName, "%s display name", a.ID)
		assert.NotEmpty(t, a.Hostnames, "%s hostnames", a.ID)
		assert.NotEmpty(t, a.ComposerSelectors, "%s composer selectors", a.ID)
		assert.NotEmpty(t, a.SendSelectors, "%s send selectors", a.ID)
		assert.True(t, strings.HasPrefix(a.ChatURL, "https://"), "%s chat url", a.ID)
	}
	assert.True(t, seen[DefaultID], "default destination must be registered")
}

func TestDefault(t *testing.T) {
	assert.Equal(t, DefaultID, Default().ID)
}
