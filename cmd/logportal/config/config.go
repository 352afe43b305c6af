package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/SpatiumPortae/logportal/internal/logfetch"
	"github.com/fatih/structs"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	CONFIGS_DIR_NAME          = ".config"
	LOGPORTAL_CONFIG_DIR_NAME = "logportal"
	CONFIG_FILE_NAME          = "config"
	CONFIG_FILE_EXT           = "yml"

	StyleRich = "rich"
	StyleRaw  = "raw"
)

type Config struct {
	Link            string `mapstructure:"link"`
	Baud            int    `mapstructure:"baud"`
	TargetSystem    int    `mapstructure:"target_system"`
	TargetComponent int    `mapstructure:"target_component"`
	OutputDir       string `mapstructure:"output_dir"`
	Compress        bool   `mapstructure:"compress"`
	TickMs          int    `mapstructure:"tick_ms"`
	StallMs         int    `mapstructure:"stall_ms"`
	EntryRetries    int    `mapstructure:"entry_retries"`
	DataRetries     int    `mapstructure:"data_retries"`
	Monitor         string `mapstructure:"monitor"`
	Verbose         bool   `mapstructure:"verbose"`
	TuiStyle        string `mapstructure:"tui_style"`
}

func GetDefault() Config {
	session := logfetch.DefaultConfig()
	return Config{
		Link:            "udpout:127.0.0.1:14550",
		Baud:            57600,
		TargetSystem:    int(session.TargetSystem),
		TargetComponent: int(session.TargetComponent),
		OutputDir:       ".",
		Compress:        false,
		TickMs:          int(session.TickInterval / time.Millisecond),
		StallMs:         int(session.StallTimeout / time.Millisecond),
		EntryRetries:    session.EntryRetries,
		DataRetries:     session.DataRetries,
		Monitor:         "",
		Verbose:         false,
		TuiStyle:        StyleRich,
	}
}

func (config Config) Map() map[string]any {
	m := map[string]any{}
	for _, field := range structs.Fields(config) {
		key := field.Tag("mapstructure")
		value := field.Value()
		m[key] = value
	}
	return m
}

// Yaml renders the config with sorted keys. Strings are quoted so that values such
// as an empty monitor address survive a round trip.
func (config Config) Yaml() []byte {
	m := config.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			builder.WriteString(fmt.Sprintf("%s: %q", k, v))
		default:
			builder.WriteString(fmt.Sprintf("%s: %v", k, v))
		}
		builder.WriteRune('\n')
	}
	return []byte(builder.String())
}

func IsDefault(key string) bool {
	defaults := GetDefault().Map()
	return viper.Get(key) == defaults[key]
}

// Session returns the session parameters configured in viper.
func Session() logfetch.Config {
	return logfetch.Config{
		TargetSystem:    uint8(viper.GetUint("target_system")),
		TargetComponent: uint8(viper.GetUint("target_component")),
		TickInterval:    time.Duration(viper.GetInt("tick_ms")) * time.Millisecond,
		StallTimeout:    time.Duration(viper.GetInt("stall_ms")) * time.Millisecond,
		EntryRetries:    viper.GetInt("entry_retries"),
		DataRetries:     viper.GetInt("data_retries"),
	}
}

// Init initializes the viper config.
// `config.yml` is created in $HOME/.config/logportal if not already existing.
// NOTE: The precedence levels of viper are the following: flags -> config file -> defaults.
func Init() error {
	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("resolving home dir: %w", err)
	}

	configPath := filepath.Join(home, CONFIGS_DIR_NAME, LOGPORTAL_CONFIG_DIR_NAME)
	viper.AddConfigPath(configPath)
	viper.SetConfigName(CONFIG_FILE_NAME)
	viper.SetConfigType(CONFIG_FILE_EXT)
	viper.SetEnvPrefix("logportal")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Create config file if not found.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			err := os.MkdirAll(configPath, os.ModePerm)
			if err != nil {
				return fmt.Errorf("Could not create config directory: %w", err)
			}

			configFile, err := os.Create(filepath.Join(configPath, fmt.Sprintf("%s.%s", CONFIG_FILE_NAME, CONFIG_FILE_EXT)))
			if err != nil {
				return fmt.Errorf("Could not create config file: %w", err)
			}
			defer configFile.Close()

			_, err = configFile.Write(GetDefault().Yaml())
			if err != nil {
				return fmt.Errorf("Could not write defaults to config file: %w", err)
			}
			// Reading again makes ConfigFileUsed point at the new file.
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("Could not read config file: %w", err)
			}
		} else {
			return fmt.Errorf("Could not read config file: %w", err)
		}
	}
	for k, v := range GetDefault().Map() {
		viper.SetDefault(k, v)
	}
	return nil
}
