package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app       = "resumax"
	envPrefix = "RESUMAX"

	geminiKeyEnv     = "GEMINI_API_KEY"
	geminiKeyFileEnv = "GEMINI_API_KEY_FILE"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Chat   ChatConfig   `mapstructure:"chat"`
	AI     AIConfig     `mapstructure:"ai"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read-timeout"`
	WriteTimeout    time.Duration `mapstructure:"write-timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
}

type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type ChatConfig struct {
	Retention    int `mapstructure:"retention"`
	ContextTurns int `mapstructure:"context-turns"`
	DetailLength int `mapstructure:"detail-length"`
	ResumeLength int `mapstructure:"resume-length"`
}

type AIConfig struct {
	Provider string       `mapstructure:"provider"`
	Gemini   GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey          string        `mapstructure:"api-key"`
	APIKeyFile      string        `mapstructure:"api-key-file"`
	BaseURL         string        `mapstructure:"base-url"`
	Model           string        `mapstructure:"model"`
	MaxRetries      int           `mapstructure:"max-retries"`
	InitialDelay    time.Duration `mapstructure:"initial-delay"`
	Temperature     float32       `mapstructure:"temperature"`
	TopK            float32       `mapstructure:"top-k"`
	TopP            float32       `mapstructure:"top-p"`
	MaxOutputTokens int32         `mapstructure:"max-output-tokens"`
	MaxLogLength    int           `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string
	envFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "resumax is a career advice assistant backed by Gemini",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resumax.yaml in current directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("store", "", "record store driver: sqlite or memory")
	rootCmd.PersistentFlags().String("db", "", "path of the sqlite database")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("store.driver", rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("db"))

	setDefaults(viper.GetViper())
	if err := bindEnv(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "binding environment variables: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	// A missing dotenv file is fine; a broken one is not.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "loading %s: %v\n", envFile, err)
			os.Exit(1)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless it was asked for explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read-timeout", 15*time.Second)
	v.SetDefault("server.write-timeout", 90*time.Second)
	v.SetDefault("server.shutdown-timeout", 10*time.Second)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/resumax.db")

	v.SetDefault("chat.retention", 10)
	v.SetDefault("chat.context-turns", 5)
	v.SetDefault("chat.detail-length", 100)
	v.SetDefault("chat.resume-length", 3000)

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("ai.gemini.base-url", "")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.initial-delay", time.Second)
	v.SetDefault("ai.gemini.temperature", 0.7)
	v.SetDefault("ai.gemini.top-k", 40)
	v.SetDefault("ai.gemini.top-p", 0.95)
	v.SetDefault("ai.gemini.max-output-tokens", 2048)
	v.SetDefault("ai.gemini.max-log-length", 200)
}

// bindEnv maps every key to RESUMAX_<KEY> (dots and dashes become
// underscores). The key file also honours GEMINI_API_KEY_FILE; GEMINI_API_KEY
// itself is read by the secret loader.
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v.BindEnv("ai.gemini.api-key-file", envPrefix+"_AI_GEMINI_API_KEY_FILE", geminiKeyFileEnv)
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &config, nil
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}
