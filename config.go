package driftline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML config file, expanding ${VAR} references, then applies
// environment fallbacks. An empty path or missing file yields a config built from
// the environment alone.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
				return Config{}, &ConfigurationError{Record: path, Reason: "decode: " + err.Error()}
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills unset fields from the environment.
func (c *Config) applyEnv() {
	setIfEmpty(&c.DBPath, "DRIFTLINE_DB_PATH")
	setIfEmpty(&c.PersonaDir, "DRIFTLINE_PERSONA_DIR")
	setIfEmpty(&c.ScenarioPath, "DRIFTLINE_SCENARIOS")

	setIfEmpty(&c.Hosted.Host, "OLLAMA_HOST")
	if c.Hosted.Provider == "" {
		switch {
		case os.Getenv("OLLAMA_MODEL") != "":
			c.Hosted.Provider = "ollama"
		case os.Getenv("GEMINI_API_KEY") != "":
			c.Hosted.Provider = "gemini"
		}
	}
	switch c.Hosted.Provider {
	case "ollama":
		setIfEmpty(&c.Hosted.Model, "OLLAMA_MODEL")
	case "gemini":
		setIfEmpty(&c.Hosted.APIKey, "GEMINI_API_KEY")
		setIfEmpty(&c.Hosted.Model, "GEMINI_MODEL")
	}

	setIfEmpty(&c.Remote.APIKey, "ANTHROPIC_API_KEY")
	if c.Remote.Provider == "" && c.Remote.APIKey != "" {
		c.Remote.Provider = "anthropic"
	}
	setIfEmpty(&c.Remote.Model, "ANTHROPIC_MODEL")
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}
