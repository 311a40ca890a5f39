package model

import "time"

// ================ Config ================
type LLMConfig struct {
	APIKey   string `envconfig:"GEMINI_API_KEY"`
	BaseURL  string `envconfig:"GEMINI_BASE_URL"`
	Project  string `envconfig:"GOOGLE_CLOUD_PROJECT"`
	Location string `envconfig:"GOOGLE_CLOUD_LOCATION" default:"us-central1"`
}

// UseVertex reports whether the Vertex AI backend is selected instead of an API key.
func (c LLMConfig) UseVertex() bool {
	return c.APIKey == "" && c.Project != ""
}

type RetrieverModelConfig struct {
	Model          string        `envconfig:"RETRIEVER_MODEL" default:"gemini-2.5-pro"`
	MaxTokens      int           `envconfig:"RETRIEVER_MAX_TOKENS" default:"2048"`
	Temperature    float32       `envconfig:"RETRIEVER_TEMPERATURE" default:"0.1"`
	ThinkingBudget int32         `envconfig:"RETRIEVER_THINKING_BUDGET" default:"1024"`
	Timeout        time.Duration `envconfig:"RETRIEVER_TIMEOUT" default:"90s"`
	MaxToolCalls   int           `envconfig:"RETRIEVER_MAX_TOOL_CALLS" default:"8"`
}

type PresenterModelConfig struct {
	Model          string        `envconfig:"PRESENTER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int           `envconfig:"PRESENTER_MAX_TOKENS" default:"3072"`
	Temperature    float32       `envconfig:"PRESENTER_TEMPERATURE" default:"0.3"`
	ThinkingBudget int32         `envconfig:"PRESENTER_THINKING_BUDGET" default:"512"`
	Timeout        time.Duration `envconfig:"PRESENTER_TIMEOUT" default:"60s"`
	MaxAttempts    int           `envconfig:"PRESENTER_MAX_ATTEMPTS" default:"2"`
}

type PromptConfig struct {
	CompanyName string `envconfig:"COMPANY_NAME" default:"TechCorp"`
}

type SessionConfig struct {
	AppName string        `envconfig:"SESSION_APP_NAME" default:"corporate_agent"`
	TTL     time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	// HistoryTurns bounds how many earlier turns are shown to the retriever.
	HistoryTurns int `envconfig:"SESSION_HISTORY_TURNS" default:"3"`
}
