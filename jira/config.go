package jira

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AuthType identifies the authentication scheme.
type AuthType string

const (
	// AuthAPIToken is Jira Cloud email + API token basic auth.
	AuthAPIToken AuthType = "api_token"

	// AuthBasic is Server/Data Center username + password.
	AuthBasic AuthType = "basic"

	// AuthPAT is a Data Center personal access token (bearer).
	AuthPAT AuthType = "pat"
)

// AuthConfig holds credentials for one auth scheme.
type AuthConfig struct {
	Type     AuthType `yaml:"type"`
	Email    string   `yaml:"email,omitempty"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	Token    string   `yaml:"token,omitempty"`
}

// RetryConfig bounds retries on rate-limited requests.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryWaitMin time.Duration `yaml:"retry_wait_min"`
	RetryWaitMax time.Duration `yaml:"retry_wait_max"`
}

// Config configures the Jira client.
type Config struct {
	// URL is the Jira base URL, e.g. https://example.atlassian.net.
	URL string `yaml:"url"`

	Auth  AuthConfig  `yaml:"auth"`
	Retry RetryConfig `yaml:"retry"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// Project limits searches to one project key. Optional.
	Project string `yaml:"project"`

	// JQL overrides the default eligible-ticket query. Optional.
	JQL string `yaml:"jql"`
}

// DefaultConfig returns a config with production defaults applied.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Retry: RetryConfig{
			MaxRetries:   3,
			RetryWaitMin: 1 * time.Second,
			RetryWaitMax: 30 * time.Second,
		},
	}
}

// Validate checks the config for required fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("jira url is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("jira url must start with http:// or https://")
	}

	switch c.Auth.Type {
	case AuthAPIToken:
		if c.Auth.Email == "" || c.Auth.Token == "" {
			return fmt.Errorf("api_token auth requires email and token")
		}
	case AuthBasic:
		if c.Auth.Username == "" || c.Auth.Password == "" {
			return fmt.Errorf("basic auth requires username and password")
		}
	case AuthPAT:
		if c.Auth.Token == "" {
			return fmt.Errorf("pat auth requires token")
		}
	case "":
		return fmt.Errorf("auth type is required")
	default:
		return fmt.Errorf("unknown auth type %q", c.Auth.Type)
	}
	return nil
}

// issueKeyRe matches a Jira issue key like PROJ-123.
var issueKeyRe = regexp.MustCompile(`^[A-Z][A-Z0-9]+-\d+$`)

// ValidateIssueKey reports whether key has valid Jira issue key form.
func ValidateIssueKey(key string) bool {
	return issueKeyRe.MatchString(key)
}
