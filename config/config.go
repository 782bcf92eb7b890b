package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/quill-agent/quill/errors"
	"github.com/quill-agent/quill/policy"
	"gopkg.in/yaml.v3"
)

// ConfigDirName is the per-user and per-project configuration directory.
// It doubles as the state directory the policy always hides.
const ConfigDirName = policy.StateDirName

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

// PolicySection holds the raw capability-policy settings. Zero values fall
// back to the documented defaults when the policy is compiled.
type PolicySection struct {
	Filesystem            FilesystemAccess `yaml:"filesystem"`
	AllowedCommands       []string         `yaml:"allowed_commands"`
	CommandTimeoutSeconds int              `yaml:"command_timeout_seconds"`
	MaxOutputBytes        int              `yaml:"max_output_bytes"`
	MaxOutputLines        int              `yaml:"max_output_lines"`
	MaxFileBytes          int64            `yaml:"max_file_bytes"`
	SearchMaxResults      int              `yaml:"search_max_results"`
}

// Capabilities toggles remote capabilities. Both default to enabled; a
// capability without its credential is disabled at startup with a
// configuration error rather than failing the whole process.
type Capabilities struct {
	WebSearch bool `yaml:"web_search"`
	Repo      bool `yaml:"repo"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Config struct {
	LLMClient            string        `yaml:"llm"`
	Model                string        `yaml:"model"`
	Toolsets             []Toolset     `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer   `yaml:"additional_mcp_servers"`
	Policy               PolicySection `yaml:"policy"`
	Capabilities         Capabilities  `yaml:"capabilities"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Capabilities: Capabilities{WebSearch: true, Repo: true},
	}

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ConfigDirName, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ConfigDirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a simple
	// merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyDefaults() {
	if len(c.Toolsets) == 0 {
		c.Toolsets = []Toolset{{
			Name: "default",
			Tools: []string{
				"read_file", "write_file", "edit_file", "delete_file",
				"list_files", "search_files", "execute_command",
				"web_search", "repo",
			},
		}}
	}
}

// PolicyConfig translates the YAML policy section into the compile input,
// rooted at the given workspace directory.
func (c *Config) PolicyConfig(workspaceRoot string) policy.Config {
	return policy.Config{
		WorkspaceRoot:    workspaceRoot,
		Hidden:           c.Policy.Filesystem.Hidden,
		ReadOnly:         c.Policy.Filesystem.ReadOnly,
		AllowedCommands:  c.Policy.AllowedCommands,
		CommandTimeout:   time.Duration(c.Policy.CommandTimeoutSeconds) * time.Second,
		MaxOutputBytes:   c.Policy.MaxOutputBytes,
		MaxOutputLines:   c.Policy.MaxOutputLines,
		MaxFileBytes:     c.Policy.MaxFileBytes,
		SearchMaxResults: c.Policy.SearchMaxResults,
	}
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for i := range c.Toolsets {
		if c.Toolsets[i].Name == name {
			return &c.Toolsets[i], nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	return c.GetToolset("default")
}
