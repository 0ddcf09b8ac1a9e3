// config предоставляет структуру конфигурации digest-service
// и функции загрузки из YAML/ENV с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/pribylovaa/go-news-digest/internal/models"
)

// Драйверы хранилища состояния.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config - корневая конфигурация сервиса.
// Приоритет источников:
//  1. явный путь, переданный в MustLoad/Load;
//  2. переменная окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения.
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Mongo    MongoConfig    `yaml:"mongo"`
	S3       S3Config       `yaml:"s3"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Digest   DigestConfig   `yaml:"digest"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Rotation RotationConfig `yaml:"rotation"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Admin    AdminConfig    `yaml:"admin"`
	// Catalog - YAML-файл с источниками и промо-слотами (см. internal/catalog).
	Catalog string `yaml:"catalog" env:"CATALOG_PATH"`
}

// HTTPConfig - сетевые настройки HTTP-сервера (админ-API, /metrics, health).
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50085"`
}

// GRPCConfig - сетевые настройки служебного gRPC-сервера (health).
type GRPCConfig struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50055"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Addr возвращает адрес в формате host:port.
func (g GRPCConfig) Addr() string {
	return net.JoinHostPort(g.Host, g.Port)
}

// StorageConfig - хранилище состояния (допуски, ротация, журнал циклов).
type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	// URL - DSN PostgreSQL или путь к файлу SQLite.
	URL string `yaml:"url" env:"DATABASE_URL"`
}

// RedisConfig - распределённая блокировка цикла. Пустой URL - только локальная защита.
type RedisConfig struct {
	URL     string        `yaml:"url" env:"REDIS_URL"`
	LockKey string        `yaml:"lock_key" env:"REDIS_LOCK_KEY" env-default:"digest:cycle:lock"`
	LockTTL time.Duration `yaml:"lock_ttl" env:"REDIS_LOCK_TTL" env-default:"30m"`
}

// MongoConfig - индекс архива дайджестов. Пустой URL - индекс не ведётся.
type MongoConfig struct {
	URL string `yaml:"url" env:"MONGO_URL"`
}

// S3Config - хранилище артефактов дайджестов (MinIO/S3).
// Если Endpoint пуст, артефакты пишутся в локальный каталог Dir.
type S3Config struct {
	Endpoint     string `yaml:"endpoint" env:"S3_ENDPOINT"`
	RootUser     string `yaml:"root_user" env:"S3_ROOT_USER"`
	RootPassword string `yaml:"root_password" env:"S3_ROOT_PASSWORD"`
	Bucket       string `yaml:"bucket" env:"S3_BUCKET" env-default:"digests"`
	Dir          string `yaml:"dir" env:"DIGEST_DIR" env-default:"./digests"`
}

// GeminiConfig - обогащение через Gemini. Пустой APIKey - обогащение без модели.
type GeminiConfig struct {
	APIKey string `yaml:"api_key" env:"GEMINI_API_KEY"`
	Model  string `yaml:"model" env:"GEMINI_MODEL" env-default:"gemini-2.5-flash"`
}

// DigestConfig - оформление дайджеста.
type DigestConfig struct {
	Title string `yaml:"title" env:"DIGEST_TITLE" env-default:"Digest"`
}

// FetcherConfig - источники, заданные прямо в конфиге.
type FetcherConfig struct {
	Sources []models.Source `yaml:"sources"`
	// URLs - короткая форма через ENV RSS_SOURCES, разделитель - запятая.
	URLs            []string `yaml:"urls" env:"RSS_SOURCES" env-separator:","`
	DefaultMaxItems int      `yaml:"default_max_items" env:"DEFAULT_MAX_ITEMS" env-default:"5"`
}

// All объединяет Sources и URLs; дубликаты по URL отбрасываются.
func (f FetcherConfig) All() []models.Source {
	out := make([]models.Source, 0, len(f.Sources)+len(f.URLs))
	seen := make(map[string]struct{}, cap(out))

	add := func(s models.Source) {
		s.URL = strings.TrimSpace(s.URL)
		if s.URL == "" {
			return
		}
		if _, ok := seen[s.URL]; ok {
			return
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}

	for _, s := range f.Sources {
		add(s)
	}
	for _, u := range f.URLs {
		add(models.Source{URL: u})
	}

	return out
}

// PipelineConfig - ограничения параллелизма внутри цикла.
type PipelineConfig struct {
	FetchConcurrency  int `yaml:"fetch_concurrency" env:"FETCH_CONCURRENCY" env-default:"6"`
	EnrichConcurrency int `yaml:"enrich_concurrency" env:"ENRICH_CONCURRENCY" env-default:"4"`
}

// DedupConfig - хранение ключей идентичности. Отпечатки хранятся бессрочно.
type DedupConfig struct {
	Retention time.Duration `yaml:"retention" env:"DEDUP_RETENTION" env-default:"2160h"`
}

// RotationConfig - параметры ротации промо-слотов.
type RotationConfig struct {
	HistoryLimit int `yaml:"history_limit" env:"ROTATION_HISTORY_LIMIT" env-default:"100"`
}

// ScheduleConfig - периодичность циклов в режиме serve.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval" env:"CYCLE_INTERVAL" env-default:"24h"`
}

// TimeoutConfig - таймауты внешних вызовов и сервиса.
type TimeoutConfig struct {
	Service  time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
	Fetch    time.Duration `yaml:"fetch" env:"FETCH_TIMEOUT" env-default:"15s"`
	Enrich   time.Duration `yaml:"enrich" env:"ENRICH_TIMEOUT" env-default:"60s"`
	Subject  time.Duration `yaml:"subject" env:"SUBJECT_TIMEOUT" env-default:"30s"`
	Assemble time.Duration `yaml:"assemble" env:"ASSEMBLE_TIMEOUT" env-default:"30s"`
	Cycle    time.Duration `yaml:"cycle" env:"CYCLE_TIMEOUT" env-default:"30m"`
}

// AdminConfig - доступ к админ-API. Пустой секрет - API без авторизации (только local).
type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"ADMIN_JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ADMIN_JWT_ISSUER" env-default:"digest-service"`
}

// MustLoad - обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
func Load(path string) (*Config, error) {
	var cfg Config

	read := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", p)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	switch {
	case path != "":
		return read(path)
	case os.Getenv("CONFIG_PATH") != "":
		return read(os.Getenv("CONFIG_PATH"))
	}

	if _, err := os.Stat("local.yaml"); err == nil {
		return read("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate - базовая валидация значений.
func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Storage.URL == "" {
			return fmt.Errorf("storage.url is required for driver %q", c.Storage.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be one of postgres, sqlite, memory")
	}

	if len(c.Fetcher.All()) == 0 && c.Catalog == "" {
		return fmt.Errorf("fetcher.sources or catalog must provide at least one feed")
	}
	if c.Schedule.Interval < time.Minute {
		return fmt.Errorf("schedule.interval must be at least 1m")
	}
	if c.Pipeline.FetchConcurrency <= 0 || c.Pipeline.EnrichConcurrency <= 0 {
		return fmt.Errorf("pipeline concurrency must be > 0")
	}
	if c.Dedup.Retention <= 0 {
		return fmt.Errorf("dedup.retention must be > 0")
	}
	if c.Rotation.HistoryLimit <= 0 {
		return fmt.Errorf("rotation.history_limit must be > 0")
	}
	if c.S3.Endpoint != "" && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when s3.endpoint is set")
	}
	if c.Env == "prod" && c.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is required in prod")
	}

	return nil
}
