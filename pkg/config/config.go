package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Data       DataConfig
	Memory     MemoryConfig
	LLM        LLMConfig
	Plot       PlotConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Validation ValidationConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	Development  bool
}

// DataConfig locates the documents the context store reads.
type DataConfig struct {
	GeneralDir        string
	IDADir            string
	GraphDir          string
	DescriptionSuffix string
	Watch             bool
}

type MemoryConfig struct {
	Driver     string
	Dir        string
	Window     int
	TTLMinutes int
}

type LLMConfig struct {
	RetryLimit      int
	TimeoutSec      int
	AnswerMaxTokens int
	IntentMaxTokens int
	Temperature     float32
	OpenAI          OpenAIConfig
	Llama           LlamaConfig
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type LlamaConfig struct {
	Transport string
	Model     string
	Region    string
	OllamaURL string
}

type PlotConfig struct {
	Python        string
	OutputDir     string
	TimeoutSec    int
	CPUSeconds    int
	MemoryLimitMB int
	RetryLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled              bool
	MaxRequestsPerMinute int
}

type ValidationConfig struct {
	MaxQuestionLength int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from file when set, otherwise from the default
// search paths. Environment variables prefixed with INSIGHT override both.
func LoadFrom(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/insight-router")
	}

	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The OpenAI key is conventionally provided without the prefix.
	if config.LLM.OpenAI.APIKey == "" {
		_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
		config.LLM.OpenAI.APIKey = v.GetString("openai_api_key")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 60)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.development", false)

	v.SetDefault("data.generalDir", "./data/general_answering_data")
	v.SetDefault("data.idaDir", "./data/insight_direction_action_data")
	v.SetDefault("data.graphDir", "./data/graph_data")
	v.SetDefault("data.descriptionSuffix", "txt")
	v.SetDefault("data.watch", true)

	v.SetDefault("memory.driver", "file")
	v.SetDefault("memory.dir", "./chat_history")
	v.SetDefault("memory.window", 10)
	v.SetDefault("memory.ttlMinutes", 0)

	v.SetDefault("llm.retryLimit", 3)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.answerMaxTokens", 512)
	v.SetDefault("llm.intentMaxTokens", 5)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.openai.apiKey", "")
	v.SetDefault("llm.openai.baseURL", "")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.llama.transport", "bedrock")
	v.SetDefault("llm.llama.model", "meta.llama3-8b-instruct-v1:0")
	v.SetDefault("llm.llama.region", "us-east-1")
	v.SetDefault("llm.llama.ollamaURL", "http://localhost:11434")

	v.SetDefault("plot.python", "python3")
	v.SetDefault("plot.outputDir", "./graphs")
	v.SetDefault("plot.timeoutSec", 30)
	v.SetDefault("plot.cpuSeconds", 20)
	v.SetDefault("plot.memoryLimitMB", 1024)
	v.SetDefault("plot.retryLimit", 3)

	v.SetDefault("sqlite.path", "./data/insight.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.maxRequestsPerMinute", 60)

	v.SetDefault("validation.maxQuestionLength", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
