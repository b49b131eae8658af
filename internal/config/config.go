// Package config implements C7: the job queue's namespaced key/value
// settings store, loaded in precedence order from CLI flags, JOBQUEUE_
// environment variables, and an optional config file — a viper-backed
// stand-in for the original's per-application QSettings namespace.
package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Keys used to read and write settings; also the viper/env/flag names.
const (
	KeyFilesFrom      = "filesFrom"
	KeyPresetFrom     = "presetFrom"
	KeyPresetSelected = "presetselected"
	KeySaveTo         = "saveTo"
	KeyCreateFolders  = "createFolders"
	KeySearchPaths    = "searchpaths"
	KeyThreads        = "threads"
)

const envPrefix = "JOBQUEUE"

// Config is a resolved view over the settings store, read once per command
// invocation after flags are parsed.
type Config struct {
	v *viper.Viper
}

// New builds a Config bound to cmd's flag set. It establishes the
// precedence order: explicit flag > environment variable > config file >
// default. cfgFile may be empty, in which case only flags, env and defaults
// apply.
func New(cmd *cobra.Command, cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	return &Config{v: v}, nil
}

// Flags registers the flags backing every settings key on cmd.
func Flags(cmd *cobra.Command) {
	cmd.Flags().String(KeyFilesFrom, "", "directory to read dropped input files from")
	cmd.Flags().String(KeyPresetFrom, "", "directory to load preset documents from")
	cmd.Flags().String(KeyPresetSelected, "", "name of the preset to expand against")
	cmd.Flags().String(KeySaveTo, "", "output directory for generated jobs")
	cmd.Flags().Bool(KeyCreateFolders, false, "create a per-input subfolder under the output directory")
	cmd.Flags().StringSlice(KeySearchPaths, nil, "additional directories to search for a bare command")
	cmd.Flags().Int(KeyThreads, 1, "number of jobs to run concurrently")
}

func (c *Config) FilesFrom() string      { return c.v.GetString(KeyFilesFrom) }
func (c *Config) PresetFrom() string     { return c.v.GetString(KeyPresetFrom) }
func (c *Config) PresetSelected() string { return c.v.GetString(KeyPresetSelected) }
func (c *Config) SaveTo() string         { return c.v.GetString(KeySaveTo) }
func (c *Config) CreateFolders() bool    { return c.v.GetBool(KeyCreateFolders) }
func (c *Config) SearchPaths() []string  { return c.v.GetStringSlice(KeySearchPaths) }
func (c *Config) Threads() int           { return c.v.GetInt(KeyThreads) }
