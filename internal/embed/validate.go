package embed

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelFragments contains name fragments identifying chat/completion
// models that are not embedding models. A matching EMBEDDING_MODEL almost
// always means a misconfigured pipeline producing useless vectors.
var chatModelFragments = []string{
	"gpt-4", "gpt-3.5", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "deepseek", "qwen", "gemini-1", "gemini-2",
}

// looksLikeChatModel reports whether the model name resembles a known chat
// model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, f := range chatModelFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check of the embedding configuration. Call it at
// command start so operators get a clear startup error rather than a cryptic
// failure on the first embed call. Returns an error for clearly broken
// configuration and logs a warning when EMBEDDING_MODEL looks like a chat
// model.
func Validate(log *slog.Logger) error {
	switch backend := Backend(); backend {
	case "ollama":
		// Local, keyless — nothing to validate.
	case "openai":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("embed: no OpenAI API key found: set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("AZURE_OPENAI_API_KEY") == "" {
			return fmt.Errorf("embed: no Azure API key found: set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if os.Getenv("EMBEDDING_ENDPOINT") == "" && os.Getenv("AZURE_OPENAI_ENDPOINT") == "" {
			return fmt.Errorf("embed: no Azure endpoint found: set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "gemini":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("embed: no Google API key found: set GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	default:
		return fmt.Errorf("embed: unknown backend %q (valid values: ollama, openai, azure, gemini)", backend)
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embed: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
	return nil
}
