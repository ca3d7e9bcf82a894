// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Personas      PersonasConfig      `mapstructure:"personas"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// AuthConfig 存储 API Key 认证配置。key_hash 为 bcrypt 哈希，明文 key 不落盘。
type AuthConfig struct {
	APIKeys []APIKeyConfig `mapstructure:"api_keys"`
}

// APIKeyConfig 描述一个租户的 API Key。
type APIKeyConfig struct {
	TenantID string `mapstructure:"tenant_id"`
	KeyID    string `mapstructure:"key_id"`
	KeyHash  string `mapstructure:"key_hash"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布审计事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
	Dims      int    `mapstructure:"dims"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时跳过语料清单同步。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	CorpusPrefix    string `mapstructure:"corpus_prefix"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// VanillaTemperature 用于对比模式中的无护栏生成
	VanillaTemperature float64 `mapstructure:"vanilla_temperature"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式（可选）。
type LLMPromptConfig struct {
	Rules         string `mapstructure:"rules"`
	RefStart      string `mapstructure:"ref_start"`
	RefEnd        string `mapstructure:"ref_end"`
	NoResultText  string `mapstructure:"no_result_text"`
	VanillaSystem string `mapstructure:"vanilla_system"`
}

// PipelineConfig 存储校验流水线的参数。
type PipelineConfig struct {
	TopK                   int              `mapstructure:"top_k"`
	HallucinationThreshold float64          `mapstructure:"hallucination_threshold"`
	RefusalMessage         string           `mapstructure:"refusal_message"`
	GenerationFailedText   string           `mapstructure:"generation_failed_message"`
	Timeouts               TimeoutsConfig   `mapstructure:"timeouts"`
	Comparison             ComparisonConfig `mapstructure:"comparison"`
}

// TimeoutsConfig 每个阶段的超时时间。
type TimeoutsConfig struct {
	Guardrail       time.Duration `mapstructure:"guardrail"`
	Retrieval       time.Duration `mapstructure:"retrieval"`
	Generation      time.Duration `mapstructure:"generation"`
	GenerationRetry time.Duration `mapstructure:"generation_retry"`
	Verification    time.Duration `mapstructure:"verification"`
	Audit           time.Duration `mapstructure:"audit"`
}

// ComparisonConfig 对比模式两个分支各自的整体超时。
type ComparisonConfig struct {
	GuardedTimeout time.Duration `mapstructure:"guarded_timeout"`
	RawTimeout     time.Duration `mapstructure:"raw_timeout"`
}

// AuditConfig 审计存储后端配置，backend 取值 mysql 或 badger。
type AuditConfig struct {
	Backend    string `mapstructure:"backend"`
	BadgerPath string `mapstructure:"badger_path"`
	InMemory   bool   `mapstructure:"in_memory"`
}

// PersonasConfig 人设配置。Path 为空时只使用内置人设。
type PersonasConfig struct {
	Path      string `mapstructure:"path"`
	DefaultID string `mapstructure:"default_id"`
}

// TracingConfig OpenTelemetry 追踪配置。
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// DefaultPipeline 返回流水线的默认参数。
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		TopK:                   5,
		HallucinationThreshold: 0.1,
		RefusalMessage:         "I can't help with that request. It was blocked by the assistant's safety and compliance guardrails.",
		GenerationFailedText:   "The answer could not be generated because the language model is unavailable. Please try again later.",
		Timeouts: TimeoutsConfig{
			Guardrail:       2 * time.Second,
			Retrieval:       3 * time.Second,
			Generation:      10 * time.Second,
			GenerationRetry: 5 * time.Second,
			Verification:    2 * time.Second,
			Audit:           3 * time.Second,
		},
		Comparison: ComparisonConfig{
			GuardedTimeout: 30 * time.Second,
			RawTimeout:     15 * time.Second,
		},
	}
}

// Normalize 用默认值填充缺失的流水线参数。
func (p PipelineConfig) Normalize() PipelineConfig {
	def := DefaultPipeline()
	if p.TopK <= 0 {
		p.TopK = def.TopK
	}
	// 0 是合法阈值，表示任何风险都标记；未配置时由 Load 填入默认值
	if p.HallucinationThreshold < 0 || p.HallucinationThreshold > 1 {
		p.HallucinationThreshold = def.HallucinationThreshold
	}
	if p.RefusalMessage == "" {
		p.RefusalMessage = def.RefusalMessage
	}
	if p.GenerationFailedText == "" {
		p.GenerationFailedText = def.GenerationFailedText
	}
	t := &p.Timeouts
	if t.Guardrail <= 0 {
		t.Guardrail = def.Timeouts.Guardrail
	}
	if t.Retrieval <= 0 {
		t.Retrieval = def.Timeouts.Retrieval
	}
	if t.Generation <= 0 {
		t.Generation = def.Timeouts.Generation
	}
	if t.GenerationRetry <= 0 {
		t.GenerationRetry = def.Timeouts.GenerationRetry
	}
	if t.Verification <= 0 {
		t.Verification = def.Timeouts.Verification
	}
	if t.Audit <= 0 {
		t.Audit = def.Timeouts.Audit
	}
	if p.Comparison.GuardedTimeout <= 0 {
		p.Comparison.GuardedTimeout = def.Comparison.GuardedTimeout
	}
	if p.Comparison.RawTimeout <= 0 {
		p.Comparison.RawTimeout = def.Comparison.RawTimeout
	}
	return p
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load 读取配置文件并返回解析后的配置，不修改全局变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SMEPLUG")
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("elasticsearch.index_name", "sme_chunks")
	v.SetDefault("minio.corpus_prefix", "corpus")
	v.SetDefault("kafka.topic", "smeplug.audit")
	v.SetDefault("kafka.group_id", "smeplug-auditctl")
	v.SetDefault("audit.backend", "badger")
	v.SetDefault("audit.badger_path", "./data/audit")
	v.SetDefault("personas.default_id", "legal")
	v.SetDefault("pipeline.hallucination_threshold", DefaultPipeline().HallucinationThreshold)
	v.SetDefault("tracing.service_name", "sme-plug-go")

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.Pipeline = cfg.Pipeline.Normalize()
	return cfg, nil
}
