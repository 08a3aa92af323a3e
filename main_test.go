package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patient-rag-assistant/llm"
	"patient-rag-assistant/rag"
)

func TestOpenAIBackend(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAI.EmbeddingModel = "text-embedding-ada-002"

	embedder, generator, err := openAIBackend(cfg, nil)("sk-test-key")
	require.NoError(t, err)
	assert.IsType(t, &llm.Client{}, embedder)
	assert.IsType(t, &llm.Client{}, generator)
}

func TestOpenAIBackend_SimpleEmbedder(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAI.EmbeddingModel = "simple"

	embedder, generator, err := openAIBackend(cfg, nil)("sk-test-key")
	require.NoError(t, err)
	assert.IsType(t, &rag.SimpleEmbedder{}, embedder)
	assert.IsType(t, &llm.Client{}, generator)
}

func TestOpenAIBackend_RequiresKey(t *testing.T) {
	_, _, err := openAIBackend(testConfig(), nil)("")
	assert.Error(t, err)
}
