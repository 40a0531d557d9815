package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models aegis.yml.
type Config struct {
	Artifact struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"artifact"`
	Lenses struct {
		Catalog map[string]LensSpec `yaml:"catalog"`
		// Synthesis lenses are universal, not domain-scoped; both must be
		// represented on high-impact or tension artifacts.
		Synthesis []string `yaml:"synthesis"`
	} `yaml:"lenses"`
	Awareness struct {
		Epsilon float64 `yaml:"epsilon"`
	} `yaml:"awareness"`
	Conduit struct {
		Readers        []string `yaml:"readers"`
		InlineCapBytes int      `yaml:"inline_cap_bytes"`
		PreviewChars   int      `yaml:"preview_chars"`
	} `yaml:"conduit"`
	Sessions struct {
		InactivityMinutes int `yaml:"inactivity_minutes"`
	} `yaml:"sessions"`
}

type LensSpec struct {
	Domains     []string `yaml:"domains"`
	AutoReview  bool     `yaml:"auto_review"`
	Description string   `yaml:"description"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with aegis artifact config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Artifact.ID == "" {
		return fmt.Errorf("config.artifact.id is required")
	}
	if c.Artifact.Kind != "deliberation-artifact" {
		return fmt.Errorf("config.artifact.kind must be 'deliberation-artifact'")
	}
	if len(c.Lenses.Synthesis) == 0 {
		return fmt.Errorf("config.lenses.synthesis is required")
	}
	for _, id := range c.Lenses.Synthesis {
		if id == "" {
			return fmt.Errorf("config.lenses.synthesis contains empty lens id")
		}
	}
	for id, spec := range c.Lenses.Catalog {
		if id == "" {
			return fmt.Errorf("config.lenses.catalog contains empty lens id")
		}
		for _, d := range spec.Domains {
			if d == "" {
				return fmt.Errorf("lens %s has empty domain", id)
			}
		}
	}
	if c.Awareness.Epsilon < 0 || c.Awareness.Epsilon >= 0.5 {
		return fmt.Errorf("config.awareness.epsilon must be in [0, 0.5)")
	}
	if c.Conduit.InlineCapBytes < 0 {
		return fmt.Errorf("config.conduit.inline_cap_bytes must be >= 0")
	}
	if c.Conduit.PreviewChars < 0 {
		return fmt.Errorf("config.conduit.preview_chars must be >= 0")
	}
	if len(c.Conduit.Readers) == 0 {
		return fmt.Errorf("config.conduit.readers is required")
	}
	for _, name := range c.Conduit.Readers {
		if name == "" {
			return fmt.Errorf("config.conduit.readers contains empty tool name")
		}
	}
	if c.Sessions.InactivityMinutes <= 0 {
		return fmt.Errorf("config.sessions.inactivity_minutes must be > 0")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "aegis.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(artifactID string) string {
	return fmt.Sprintf(defaultTemplate, artifactID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an artifact.
func Default(artifactID string) *Config {
	var cfg Config
	cfg.Artifact.ID = artifactID
	cfg.Artifact.Kind = "deliberation-artifact"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, artifactID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `artifact:
  id: %s
  kind: deliberation-artifact

lenses:
  catalog:
    Security Review:
      domains: [security, infrastructure]
      auto_review: false
      description: "Threat and access review"
    Ethics Review:
      domains: [ethics, policy]
      auto_review: false
      description: "Ethical and policy review"
    Technical Review:
      domains: [engineering, infrastructure]
      auto_review: true
      description: "Implementation soundness review"
    Rational Synthesis:
      domains: []
      auto_review: false
      description: "Cross-domain logical synthesis"
    Affective Synthesis:
      domains: []
      auto_review: false
      description: "Cross-domain emotional-tone synthesis"
  synthesis: ["Rational Synthesis", "Affective Synthesis"]

awareness:
  epsilon: 0.001

conduit:
  readers: [read_file, readfile, file.read, fs.readfile]
  inline_cap_bytes: 102400
  preview_chars: 500

sessions:
  inactivity_minutes: 30
`
