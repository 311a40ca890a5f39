package toolbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config describes how the operation registry is reached.
type Config struct {
	URL           string        `envconfig:"MCP_TOOLBOX_SERVICE_URL"`
	Toolset       string        `envconfig:"TOOLBOX_TOOLSET" default:"ecommerce-toolset"`
	DiscoveryTool string        `envconfig:"TOOLBOX_DISCOVERY_TOOL" default:"list-tables"`
	DiscoveryArgs string        `envconfig:"TOOLBOX_DISCOVERY_ARGS" default:"{}"`
	InvokeTimeout time.Duration `envconfig:"TOOLBOX_INVOKE_TIMEOUT" default:"30s"`
	LoadTimeout   time.Duration `envconfig:"TOOLBOX_LOAD_TIMEOUT" default:"10s"`
	ManifestTTL   time.Duration `envconfig:"TOOLBOX_MANIFEST_TTL" default:"5m"`

	// LocalToolsFile selects the local SQL toolset instead of the remote
	// service; DatabaseURL is then the DSN it runs against.
	LocalToolsFile string `envconfig:"TOOLBOX_LOCAL_TOOLS_FILE"`
	DatabaseURL    string `envconfig:"TOOLBOX_DATABASE_URL"`
}

// Local reports whether the local SQL toolset is configured.
func (c Config) Local() bool {
	return c.LocalToolsFile != ""
}

// Validate checks the fields that make the registry reachable at all.
func (c Config) Validate() error {
	if c.Local() {
		if c.DatabaseURL == "" {
			return errors.New("TOOLBOX_DATABASE_URL is required with TOOLBOX_LOCAL_TOOLS_FILE")
		}
	} else {
		if c.URL == "" {
			return errors.New("MCP_TOOLBOX_SERVICE_URL is required")
		}
		u, err := url.Parse(c.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("MCP_TOOLBOX_SERVICE_URL %q is not an http(s) URL", c.URL)
		}
	}
	if c.Toolset == "" {
		return errors.New("TOOLBOX_TOOLSET is required")
	}
	if _, err := c.discoveryArgs(); err != nil {
		return fmt.Errorf("TOOLBOX_DISCOVERY_ARGS: %w", err)
	}
	if c.InvokeTimeout <= 0 || c.LoadTimeout <= 0 {
		return errors.New("toolbox timeouts must be positive")
	}
	return nil
}

func (c Config) discoveryArgs() (map[string]any, error) {
	args := map[string]any{}
	if c.DiscoveryArgs == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(c.DiscoveryArgs), &args); err != nil {
		return nil, err
	}
	return args, nil
}
