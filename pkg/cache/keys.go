package cache

import "fmt"

// Key namespaces. Every component writing into a shared store prefixes its
// keys so invalidation and debugging stay scoped.
const (
	ChatEnginePrefix     = "chat_engine:"
	ModelConfigPrefix    = "model_config:"
	RetrieverPrefix      = "retriever:"
	PromptTemplatePrefix = "prompt_template:"
	HistoryPrefix        = "history:"
)

// ChatEngineKey builds the cache key for a chat engine.
func ChatEngineKey(engineID int) string {
	return fmt.Sprintf("%s%d", ChatEnginePrefix, engineID)
}

// ModelConfigKey builds the cache key for a model configuration.
func ModelConfigKey(modelName string) string {
	return ModelConfigPrefix + modelName
}

// RetrieverKey builds the cache key for a retriever.
func RetrieverKey(engineID int) string {
	return fmt.Sprintf("%s%d", RetrieverPrefix, engineID)
}

// PromptTemplateKey builds the cache key for a prompt template.
func PromptTemplateKey(engineID int) string {
	return fmt.Sprintf("%s%d", PromptTemplatePrefix, engineID)
}

// HistoryKey builds the cache key for a user's conversation history.
func HistoryKey(userID string) string {
	return HistoryPrefix + userID
}
