package prompts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/gherkin-agent/internal/infra/ai/prompt"
)

func TestGetPrefersRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/public/v2/prompts/gherkin-generator", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "pk", user)
		assert.Equal(t, "sk", pass)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"gherkin-generator","version":7,"prompt":"remote {{url}}"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "pk", "sk", nil)
	p, err := c.Get(context.Background(), prompt.GherkinGeneratorName)
	require.NoError(t, err)
	assert.Equal(t, "remote", p.Source)
	assert.Equal(t, 7, p.Version)
	assert.Equal(t, "remote https://x", p.Compile(map[string]string{"url": "https://x"}))
}

func TestGetFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "pk", "sk", nil)
	p, err := c.Get(context.Background(), prompt.GherkinChatAgentName)
	require.NoError(t, err)
	assert.Equal(t, "fallback", p.Source)
	assert.Equal(t, prompt.GherkinChatAgentFallback, p.Template)
}

func TestGetFallsBackOnEmptyTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"gherkin-generator","version":1,"prompt":""}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "pk", "sk", nil)
	p, err := c.Get(context.Background(), prompt.GherkinGeneratorName)
	require.NoError(t, err)
	assert.Equal(t, "fallback", p.Source)
}

func TestGetWithoutBaseURLServesFallback(t *testing.T) {
	c := New("", "", "", nil)
	p, err := c.Get(context.Background(), prompt.GherkinGeneratorName)
	require.NoError(t, err)
	assert.Equal(t, "fallback", p.Source)
	assert.Equal(t, prompt.GherkinGeneratorFallback, p.Template)
}

func TestGetUnknownNameWithoutFallbackFails(t *testing.T) {
	c := New("", "", "", nil)
	_, err := c.Get(context.Background(), "does-not-exist")
	assert.Error(t, err)
}
