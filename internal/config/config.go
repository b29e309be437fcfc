package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Generation   GenerationConfig   `mapstructure:"generation"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	S3           S3Config           `mapstructure:"s3"`
	Notification NotificationConfig `mapstructure:"notification"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// LLMConfig configures the text-generation backend client.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// GenerationConfig carries the plan-generation tunables. The defaults
// (10 messages, 0.7 completeness) are load-bearing: the conversation is
// force-cut at max_messages user turns, and generated payloads at or above
// partial_threshold completeness are accepted with disclosure instead of
// rejected.
type GenerationConfig struct {
	MaxMessages      int     `mapstructure:"max_messages"`
	PartialThreshold float64 `mapstructure:"partial_threshold"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type NotificationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Environment variables override the file, e.g. llm.api_key -> LLM_API_KEY,
	// generation.max_messages -> GENERATION_MAX_MESSAGES.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "coach_app")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.request_timeout", "90s")
	viper.SetDefault("generation.max_messages", 10)
	viper.SetDefault("generation.partial_threshold", 0.7)
	viper.SetDefault("jwt.expiration", "1h")
	viper.SetDefault("s3.use_ssl", true)
	viper.SetDefault("notification.enabled", true)

	err = viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// No config file is fine; env vars and defaults carry the run.
		err = nil
	} else if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}
