package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Corpus  CorpusConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Session SessionConfig
	Images  ImagesConfig
	Notify  NotifyConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	// RateLimitPerMinute caps ask requests per client. 0 disables the limiter.
	RateLimitPerMinute int
}

type CorpusConfig struct {
	IndexDir       string
	ChunkSize      int
	MaxParagraph   int
	Workers        int
	RateIntervalMS int
	RetrievalK     int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Provider           string
	APIKey             string
	Endpoint           string
	Model              string
	VisionModel        string
	EmbeddingAPIKey    string
	EmbeddingEndpoint  string
	EmbeddingModel     string
	EmbeddingDim       int
	Temperature        float32
	MaxTokens          int
	EmbedTimeoutSec    int
	CompleteTimeoutSec int
}

type SessionConfig struct {
	MaxTurns   int
	TTLMinutes int
}

type ImagesConfig struct {
	Strategy      string
	VisionEnabled bool
}

type NotifyConfig struct {
	Destinations []string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/apolo-agent")

	viper.SetEnvPrefix("APOLO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 90)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.rateLimitPerMinute", 60)

	viper.SetDefault("corpus.indexDir", "./data/apolo_index")
	viper.SetDefault("corpus.chunkSize", 4)
	viper.SetDefault("corpus.maxParagraph", 2000)
	viper.SetDefault("corpus.workers", 4)
	viper.SetDefault("corpus.rateIntervalMS", 500)
	viper.SetDefault("corpus.retrievalK", 10)

	viper.SetDefault("sqlite.path", "./data/apolo.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.provider", "azure")
	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.visionModel", "gpt-4-vision-preview")
	viper.SetDefault("llm.embeddingModel", "text-embedding-ada-002")
	viper.SetDefault("llm.embeddingDim", 1536)
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.embedTimeoutSec", 15)
	viper.SetDefault("llm.completeTimeoutSec", 60)

	viper.SetDefault("session.maxTurns", 40)
	viper.SetDefault("session.ttlMinutes", 30)

	viper.SetDefault("images.strategy", "rules")
	viper.SetDefault("images.visionEnabled", false)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
