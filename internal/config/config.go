package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/core"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
	"github.com/smartsearch/corporate-agent/internal/toolbox"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
	pkgredis "github.com/smartsearch/corporate-agent/pkg/redis"
)

// AppConfig defines all configurable parameters of the service, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Runtime
	Environment      string `envconfig:"ENVIRONMENT" default:"development"`
	Port             int    `envconfig:"PORT" default:"8080"`
	EnableCloudTrace bool   `envconfig:"ENABLE_CLOUD_TRACE" default:"false"`
	OTLPEndpoint     string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogFile          string `envconfig:"LOG_FILE"`

	// Infrastructure
	Redis   pkgredis.Config
	Toolbox toolbox.Config

	// LLM provider
	LLM model.LLMConfig

	// Agent configs
	Retriever model.RetrieverModelConfig
	Presenter model.PresenterModelConfig
	Prompt    model.PromptConfig
	Session   model.SessionConfig
}

// Env returns the parsed deployment environment.
func (c *AppConfig) Env() core.Environment {
	return core.ParseEnvironment(c.Environment)
}

// answerMargin covers session reads and writes around a pipeline run.
const answerMargin = 15 * time.Second

// AnswerBudget is the longest one question can take end to end: loading the
// operation registry, the retrieval stage and every presenter attempt.
func (c *AppConfig) AnswerBudget() time.Duration {
	attempts := c.Presenter.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return c.Toolbox.LoadTimeout + c.Retriever.Timeout + time.Duration(attempts)*c.Presenter.Timeout + answerMargin
}

// Load reads .env files (when present) and the process environment.
// The returned config is validated; any error is fatal for the caller.
func Load(envFiles ...string) (*AppConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	if err := godotenv.Load(envFiles...); err != nil {
		logx.Debug().Err(err).Msg("No .env file loaded; using process environment")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errx.Config(fmt.Errorf("process environment config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errx.Config(err)
	}
	return &cfg, nil
}

// Validate enforces required fields and value ranges.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if err := c.Toolbox.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.LLM.APIKey == "" && c.LLM.Project == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT is required"))
	}
	if c.Retriever.Model == "" || c.Presenter.Model == "" {
		errs = append(errs, errors.New("RETRIEVER_MODEL and PRESENTER_MODEL must be set"))
	}
	for name, t := range map[string]float32{
		"RETRIEVER_TEMPERATURE": c.Retriever.Temperature,
		"PRESENTER_TEMPERATURE": c.Presenter.Temperature,
	} {
		if t < 0 || t > 2 {
			errs = append(errs, fmt.Errorf("%s %.2f out of range [0,2]", name, t))
		}
	}
	if c.Retriever.Timeout <= 0 || c.Presenter.Timeout <= 0 {
		errs = append(errs, errors.New("stage timeouts must be positive"))
	}
	if c.Presenter.MaxAttempts < 1 {
		errs = append(errs, errors.New("PRESENTER_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Prompt.CompanyName == "" {
		errs = append(errs, errors.New("COMPANY_NAME must not be empty"))
	}
	return errors.Join(errs...)
}
