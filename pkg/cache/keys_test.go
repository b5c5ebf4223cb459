package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "chat_engine:42", ChatEngineKey(42))
	assert.Equal(t, "model_config:gemini-1.5-pro", ModelConfigKey("gemini-1.5-pro"))
	assert.Equal(t, "retriever:7", RetrieverKey(7))
	assert.Equal(t, "prompt_template:7", PromptTemplateKey(7))
	assert.Equal(t, "history:user-123", HistoryKey("user-123"))
}
