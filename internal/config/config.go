package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"polyglot/internal/logging"
	"polyglot/internal/naming"

	"gopkg.in/yaml.v3"
)

// FileName is the repository-level configuration file.
const FileName = ".polyglot.yml"

var (
	// ErrConfigNotFound is returned when no configuration file can be discovered.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidConfig wraps structurally invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds the parsed .polyglot.yml.
type Config struct {
	Settings Settings                 `yaml:"settings"`
	Projects map[string]ProjectConfig `yaml:"projects"`

	// Path is the file the configuration was read from ("" for defaults).
	Path string `yaml:"-"`
}

// Settings is the top-level settings section.
type Settings struct {
	// Repository-wide fallback for projects without their own acronym_scheme.
	AcronymScheme naming.AcronymPolicy `yaml:"acronym_scheme"`

	// Root of the source tree, absolute or relative to the config file.
	SourceRoot string `yaml:"source_root"`

	// Glob patterns (relative to the source root) of directories to skip.
	Ignore []string `yaml:"ignore"`

	Container  ContainerConfig  `yaml:"container"`
	TestRunner TestRunnerConfig `yaml:"test_runner"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ProjectConfig is one entry of the projects section.
type ProjectConfig struct {
	Words              []string             `yaml:"words"`
	RequiresParameters bool                 `yaml:"requires_parameters"`
	Acronyms           []string             `yaml:"acronyms"`
	AcronymScheme      naming.AcronymPolicy `yaml:"acronym_scheme"`

	// Test function names registered for this project in the external suite.
	Tests []string `yaml:"tests"`
}

// ContainerConfig configures the container engine.
type ContainerConfig struct {
	Engine      string `yaml:"engine"`       // api, docker, podman
	MountPoint  string `yaml:"mount_point"`  // in-container workspace path
	IdleCommand string `yaml:"idle_command"` // keeps the container alive between execs
}

// TestRunnerConfig configures the external test framework.
type TestRunnerConfig struct {
	Collect string `yaml:"collect"` // prints one node id per line
	Run     string `yaml:"run"`     // node ids are appended as arguments
	Dir     string `yaml:"dir"`     // working directory, relative to the config file
}

// Container engines understood by internal/container.
const (
	EngineAPI    = "api"
	EngineDocker = "docker"
	EnginePodman = "podman"
)

// ValidEngines lists all supported container engines.
var ValidEngines = []string{EngineAPI, EngineDocker, EnginePodman}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			Container: ContainerConfig{
				Engine:      EngineAPI,
				MountPoint:  "/src",
				IdleCommand: "sleep 1h",
			},
			TestRunner: TestRunnerConfig{
				Collect: "pytest -qq --collect-only",
				Run:     "pytest -v",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.Path = abs
	logging.Config("Loaded configuration from %s (%d projects)", abs, len(cfg.Projects))
	return cfg, nil
}

// Parse decodes configuration bytes on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover finds and loads the configuration for startDir. A missing file is
// not fatal: defaults are returned with a warning so that catalog-dependent
// commands degrade to empty results.
func Discover(startDir string) (*Config, error) {
	path, err := Locate(startDir)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			logging.ConfigWarn("No %s found from %s; continuing with an empty project catalog", FileName, startDir)
			cfg := DefaultConfig()
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, err
	}
	return Load(path)
}

// Locate searches for FileName in startDir and its ancestors, then falls
// back to a recursive search below startDir.
func Locate(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for cur := dir; ; {
		candidate := filepath.Join(cur, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			logging.ConfigDebug("Found %s walking up from %s", candidate, dir)
			return candidate, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	var found string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == FileName {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}
	if found == "" {
		return "", fmt.Errorf("%w: searched %s and its ancestors", ErrConfigNotFound, dir)
	}
	logging.ConfigDebug("Found %s below %s", found, dir)
	return found, nil
}

// Dir returns the directory containing the configuration file, or the
// working directory when running on defaults.
func (c *Config) Dir() string {
	if c.Path != "" {
		return filepath.Dir(c.Path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// SourceRoot resolves settings.source_root against the config directory.
func (c *Config) SourceRoot() string {
	root := c.Settings.SourceRoot
	if root == "" {
		return c.Dir()
	}
	if filepath.IsAbs(root) {
		return filepath.Clean(root)
	}
	return filepath.Join(c.Dir(), root)
}

// TestRunnerDir resolves settings.test_runner.dir against the config directory.
func (c *Config) TestRunnerDir() string {
	dir := c.Settings.TestRunner.Dir
	if dir == "" {
		return c.Dir()
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Dir(), dir)
}

// HasProjects reports whether a projects section was present.
func (c *Config) HasProjects() bool {
	return c.Projects != nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("POLYGLOT_SOURCE_ROOT"); root != "" {
		c.Settings.SourceRoot = root
	}
	if engine := os.Getenv("POLYGLOT_CONTAINER_ENGINE"); engine != "" {
		c.Settings.Container.Engine = strings.ToLower(engine)
	}
	if level := os.Getenv("POLYGLOT_LOG_LEVEL"); level != "" {
		c.Settings.Logging.Level = level
	}
}

// Validate validates the configuration. Project entries are validated by
// the catalog, which owns their semantics.
func (c *Config) Validate() error {
	validEngine := false
	for _, e := range ValidEngines {
		if c.Settings.Container.Engine == e {
			validEngine = true
			break
		}
	}
	if !validEngine {
		return fmt.Errorf("%w: container engine %q (valid: %v)", ErrInvalidConfig, c.Settings.Container.Engine, ValidEngines)
	}

	if c.Settings.Container.MountPoint == "" || !strings.HasPrefix(c.Settings.Container.MountPoint, "/") {
		return fmt.Errorf("%w: container mount_point must be an absolute path, got %q", ErrInvalidConfig, c.Settings.Container.MountPoint)
	}

	if _, err := logging.ParseLevel(c.Settings.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
