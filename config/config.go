package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CLOVER_LOG_LEVEL.
const EnvPrefix = "CLOVER"

type Config struct {
	AppName    string `mapstructure:"app_name" validate:"required"`
	LogLevel   string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	PrettyLogs bool   `mapstructure:"pretty_logs"`
	DataDir    string `mapstructure:"data_dir" validate:"required"`

	// Snapshot store
	StoreDriver            string        `mapstructure:"store_driver" validate:"oneof=file sqlite postgres"`
	StorePath              string        `mapstructure:"store_path"`
	DatabaseDSN            string        `mapstructure:"db_dsn" validate:"required_if=StoreDriver postgres"`
	DatabaseMaxOpenConns   int           `mapstructure:"db_max_open_conns" validate:"gte=1"`
	DatabaseMaxIdleConns   int           `mapstructure:"db_max_idle_conns" validate:"gte=0"`
	DatabaseConnMaxLife    time.Duration `mapstructure:"db_conn_max_lifetime"`
	DatabaseMigrationPath  string        `mapstructure:"db_migration_folder_path"`
	DatabaseMigrationAuto  bool          `mapstructure:"db_migration_auto"`
	DatabaseInsertChunkLen int           `mapstructure:"db_insert_chunk_size" validate:"gte=1"`

	// Upstream data
	CacheDir        string        `mapstructure:"cache_dir"`
	Sources         []string      `mapstructure:"sources" validate:"min=1,dive,oneof=draft roster player map"`
	FirstSeason     int           `mapstructure:"first_season" validate:"gte=1920"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	HTTPRetryMax    int           `mapstructure:"http_retry_max" validate:"gte=0"`
	HTTPRetryWait   time.Duration `mapstructure:"http_retry_wait"`
	RefreshExisting bool          `mapstructure:"refresh_existing"`

	// Resolution
	KeyFields []string `mapstructure:"key_fields" validate:"min=1,unique,dive,required"`

	// HTTP read API
	Port                          int      `mapstructure:"port" validate:"gte=1,lte=65535"`
	HttpServerReadTimeoutSeconds  int      `mapstructure:"http_server_read_timeout_seconds"`
	HttpServerWriteTimeoutSeconds int      `mapstructure:"http_server_write_timeout_seconds"`
	HttpServerIdleTimeoutSeconds  int      `mapstructure:"http_server_idle_timeout_seconds"`
	AllowOrigins                  []string `mapstructure:"http_server_allow_origins"`
	StartupMaxAttempts            int      `mapstructure:"startup_max_attempts" validate:"gte=1"`

	// Graph Database (Memgraph / Neo4j)
	GraphEnabled    bool   `mapstructure:"graph_enabled"`
	GraphDBHost     string `mapstructure:"graph_db_host" validate:"required_if=GraphEnabled true"`
	GraphDBPort     int    `mapstructure:"graph_db_port"`
	GraphDBUser     string `mapstructure:"graph_db_user"`
	GraphDBPassword string `mapstructure:"graph_db_password"`

	// Kafka Producer settings
	KafkaEnabled      bool     `mapstructure:"kafka_enabled"`
	KafkaBrokers      []string `mapstructure:"kafka_brokers" validate:"required_if=KafkaEnabled true"`
	KafkaOutputTopic  string   `mapstructure:"kafka_output_topic"`
	KafkaBatchSize    int      `mapstructure:"kafka_batch_size"`
	KafkaBatchTimeout int      `mapstructure:"kafka_batch_timeout_ms"`
	KafkaRequiredAcks int      `mapstructure:"kafka_required_acks"`
	KafkaCompression  string   `mapstructure:"kafka_compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd"`

	// Tracing
	TracingEnabled  bool   `mapstructure:"tracing_enabled"`
	TracingExporter string `mapstructure:"tracing_exporter" validate:"oneof=console otlp"`
	OTLPEndpoint    string `mapstructure:"otlp_endpoint"`
	OTLPProtocol    string `mapstructure:"otlp_protocol" validate:"oneof=grpc http"`
	OTLPInsecure    bool   `mapstructure:"otlp_insecure"`
}

// Defaults returns the value of every setting when neither a config file nor
// the environment supplies one.
func Defaults() map[string]any {
	return map[string]any{
		"app_name":    "clover",
		"log_level":   "info",
		"pretty_logs": false,
		"data_dir":    "data",

		"store_driver":             "sqlite",
		"store_path":               "",
		"db_dsn":                   "",
		"db_max_open_conns":        1,
		"db_max_idle_conns":        1,
		"db_conn_max_lifetime":     "0s",
		"db_migration_folder_path": "",
		"db_migration_auto":        true,
		"db_insert_chunk_size":     500,

		"cache_dir":        "",
		"sources":          []string{"draft", "roster", "player", "map"},
		"first_season":     2002,
		"http_timeout":     "60s",
		"http_retry_max":   3,
		"http_retry_wait":  "1s",
		"refresh_existing": false,

		"key_fields": []string{"esb_id", "gsis_id", "cfbref_id", "pfr_id", "draft_id"},

		"port":                              3010,
		"http_server_read_timeout_seconds":  10,
		"http_server_write_timeout_seconds": 10,
		"http_server_idle_timeout_seconds":  10,
		"http_server_allow_origins":         []string{"*"},
		"startup_max_attempts":              5,

		"graph_enabled":     false,
		"graph_db_host":     "localhost",
		"graph_db_port":     7687,
		"graph_db_user":     "",
		"graph_db_password": "",

		"kafka_enabled":          false,
		"kafka_brokers":          []string{"localhost:9092"},
		"kafka_output_topic":     "entity-events",
		"kafka_batch_size":       100,
		"kafka_batch_timeout_ms": 100,
		"kafka_required_acks":    1,
		"kafka_compression":      "snappy",

		"tracing_enabled":  false,
		"tracing_exporter": "console",
		"otlp_endpoint":    "localhost:4317",
		"otlp_protocol":    "grpc",
		"otlp_insecure":    true,
	}
}

// Load reads configuration from defaults, an optional config file, an
// optional .env file and CLOVER_ environment variables, in increasing order
// of precedence.
func Load(configFile string) (*Config, error) {
	// A missing .env is fine; anything else is a broken file.
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "failed to load .env: %s", err)
	}

	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "failed to read config file %s: %s", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "failed to decode config: %s", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDerived fills settings whose default depends on another setting.
func (c *Config) applyDerived() {
	if c.CacheDir == "" {
		c.CacheDir = c.DataDir + "/cache"
	}
	if c.StorePath == "" {
		switch c.StoreDriver {
		case "file":
			c.StorePath = c.DataDir + "/clover.snapshot.zst"
		case "sqlite":
			c.StorePath = c.DataDir + "/clover.db"
		}
	}
}

// LockPath is the file writers lock for the duration of a run.
func (c *Config) LockPath() string {
	return c.DataDir + "/clover.lock"
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every setting and reports the failing fields as a 400 error.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid config: %s", err)
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		messages = append(messages, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid config: %s", strings.Join(messages, "; "))
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
