package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/cardshelf/internal/logging"
	"github.com/mesh-intelligence/cardshelf/internal/paths"
	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// Config keys. Every key can be overridden by SHELF_<KEY> in the
// environment or in the .env file of the configuration directory.
const (
	cfgKeyStore        = "store"
	cfgKeyStagingDir   = "staging_dir"
	cfgKeyLogLevel     = "log_level"
	cfgKeyLogFormat    = "log_format"
	cfgKeyOrdering     = "ordering"
	cfgKeyRepairOnOpen = "repair_on_open"

	envPrefix = "SHELF"
)

// configFile is the structure written to a fresh config.yaml.
type configFile struct {
	Store        string `yaml:"store,omitempty"`
	StagingDir   string `yaml:"staging_dir,omitempty"`
	Ordering     string `yaml:"ordering"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	RepairOnOpen bool   `yaml:"repair_on_open"`
}

func defaultConfigFile() configFile {
	return configFile{
		Ordering:     types.OrderingWorklist,
		LogLevel:     "info",
		LogFormat:    types.LogFormatConsole,
		RepairOnOpen: true,
	}
}

// setup resolves configuration and builds the logger. It runs before every
// subcommand.
func (a *app) setup() error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return sysError(err)
	}

	storePath, err := paths.ResolveStorePath(a.flags.store, v.GetString(cfgKeyStore))
	if err != nil {
		return sysError(fmt.Errorf("resolve store path: %w", err))
	}
	cfg := types.Config{
		StorePath:    storePath,
		StagingDir:   v.GetString(cfgKeyStagingDir),
		Ordering:     v.GetString(cfgKeyOrdering),
		LogLevel:     v.GetString(cfgKeyLogLevel),
		LogFormat:    v.GetString(cfgKeyLogFormat),
		RepairOnOpen: v.GetBool(cfgKeyRepairOnOpen),
	}
	if a.flags.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return userError(fmt.Errorf("invalid configuration: %w", err))
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return userError(err)
	}
	a.config = cfg
	a.log = log.Named("shelf")
	return nil
}

// loadConfig reads config.yaml from configDir using Viper, creating the
// directory and a default config.yaml on first run. A .env file in the same
// directory is loaded into the environment without overriding variables that
// are already set.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := writeConfigIfMissing(filepath.Join(configDir, paths.ConfigFileName)); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	envFile := filepath.Join(configDir, paths.EnvFileName)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	def := defaultConfigFile()
	v := viper.New()
	v.SetDefault(cfgKeyStore, "")
	v.SetDefault(cfgKeyStagingDir, "")
	v.SetDefault(cfgKeyOrdering, def.Ordering)
	v.SetDefault(cfgKeyLogLevel, def.LogLevel)
	v.SetDefault(cfgKeyLogFormat, def.LogFormat)
	v.SetDefault(cfgKeyRepairOnOpen, def.RepairOnOpen)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetConfigFile(filepath.Join(configDir, paths.ConfigFileName))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. If it already exists, the function returns nil.
func writeConfigIfMissing(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	cfg := defaultConfigFile()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# shelf configuration; SHELF_<KEY> environment variables override these values.\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
