package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Source       SourceConfig
	OpenAI       OpenAIConfig
	Render       RenderConfig
	YouTube      YouTubeConfig
	Instagram    InstagramConfig
	Pipeline     PipelineConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLIPBLAZE_APP_ENV" required:"true"`
	Port         string `envconfig:"CLIPBLAZE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CLIPBLAZE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLIPBLAZE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CLIPBLAZE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CLIPBLAZE_DB_DSN"`
	Driver string `envconfig:"CLIPBLAZE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CLIPBLAZE_DB_HOST"`
	LegacyPort     int    `envconfig:"CLIPBLAZE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CLIPBLAZE_DB_USER"`
	LegacyPassword string `envconfig:"CLIPBLAZE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CLIPBLAZE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CLIPBLAZE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CLIPBLAZE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLIPBLAZE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLIPBLAZE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLIPBLAZE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CLIPBLAZE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CLIPBLAZE_REDIS_ADDR"`
	Password     string        `envconfig:"CLIPBLAZE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLIPBLAZE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLIPBLAZE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLIPBLAZE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLIPBLAZE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLIPBLAZE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CLIPBLAZE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CLIPBLAZE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CLIPBLAZE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CLIPBLAZE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CLIPBLAZE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CLIPBLAZE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CLIPBLAZE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CLIPBLAZE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CLIPBLAZE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"CLIPBLAZE_GCS_BUCKET_NAME" required:"true"`
	UploadURLExpiry   time.Duration `envconfig:"CLIPBLAZE_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"CLIPBLAZE_GCS_DOWNLOAD_URL_EXPIRY" default:"1h"`
}

type PubSubConfig struct {
	JobsTopic           string `envconfig:"CLIPBLAZE_PUBSUB_JOBS_TOPIC" required:"true"`
	JobsSubscription    string `envconfig:"CLIPBLAZE_PUBSUB_JOBS_SUBSCRIPTION" required:"true"`
	BillingTopic        string `envconfig:"CLIPBLAZE_PUBSUB_BILLING_TOPIC" required:"true"`
	BillingSubscription string `envconfig:"CLIPBLAZE_PUBSUB_BILLING_SUBSCRIPTION" required:"true"`
	DomainTopic         string `envconfig:"CLIPBLAZE_PUBSUB_DOMAIN_TOPIC" default:"cb-domain-events"`
	AnalyticsTopic      string `envconfig:"CLIPBLAZE_PUBSUB_ANALYTICS_TOPIC" default:"cb-analytics-events"`
}

type BigQueryConfig struct {
	Dataset             string `envconfig:"CLIPBLAZE_BIGQUERY_DATASET" default:"clipblaze"`
	PipelineEventsTable string `envconfig:"CLIPBLAZE_BIGQUERY_PIPELINE_TABLE" default:"pipeline_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CLIPBLAZE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CLIPBLAZE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CLIPBLAZE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// SourceConfig configures the source download resolvers. Providers is the
// ordered list of resolver names tried per submitted URL.
type SourceConfig struct {
	Providers      []string `envconfig:"CLIPBLAZE_SOURCE_PROVIDERS" default:"ytstream"`
	YtstreamAPIKey string   `envconfig:"CLIPBLAZE_SOURCE_YTSTREAM_API_KEY"`
	YtstreamHost   string   `envconfig:"CLIPBLAZE_SOURCE_YTSTREAM_HOST" default:"ytstream-download-youtube-videos.p.rapidapi.com"`
	MinBytes       int64    `envconfig:"CLIPBLAZE_SOURCE_MIN_BYTES" default:"10240"`
}

type OpenAIConfig struct {
	APIKey         string `envconfig:"CLIPBLAZE_OPENAI_API_KEY"`
	BaseURL        string `envconfig:"CLIPBLAZE_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	WhisperModel   string `envconfig:"CLIPBLAZE_OPENAI_WHISPER_MODEL" default:"whisper-1"`
	HighlightModel string `envconfig:"CLIPBLAZE_OPENAI_HIGHLIGHT_MODEL" default:"gpt-4o-mini"`
}

// RenderConfig configures the external clip rendering service.
type RenderConfig struct {
	BaseURL      string        `envconfig:"CLIPBLAZE_RENDER_BASE_URL"`
	APIKey       string        `envconfig:"CLIPBLAZE_RENDER_API_KEY"`
	PollInterval time.Duration `envconfig:"CLIPBLAZE_RENDER_POLL_INTERVAL" default:"5s"`
	PollBudget   time.Duration `envconfig:"CLIPBLAZE_RENDER_POLL_BUDGET" default:"10m"`
	Concurrency  int           `envconfig:"CLIPBLAZE_RENDER_CONCURRENCY" default:"3"`
}

type YouTubeConfig struct {
	ClientID     string `envconfig:"CLIPBLAZE_YOUTUBE_CLIENT_ID"`
	ClientSecret string `envconfig:"CLIPBLAZE_YOUTUBE_CLIENT_SECRET"`
	CategoryID   string `envconfig:"CLIPBLAZE_YOUTUBE_CATEGORY_ID" default:"22"`
}

type InstagramConfig struct {
	GraphBaseURL string        `envconfig:"CLIPBLAZE_INSTAGRAM_GRAPH_BASE_URL" default:"https://graph.facebook.com/v19.0"`
	PollInterval time.Duration `envconfig:"CLIPBLAZE_INSTAGRAM_POLL_INTERVAL" default:"3s"`
	PollBudget   time.Duration `envconfig:"CLIPBLAZE_INSTAGRAM_POLL_BUDGET" default:"3m"`
}

// PipelineConfig bounds orchestration: retries, lease TTL, clip constraints.
type PipelineConfig struct {
	LeaseTTL        time.Duration `envconfig:"CLIPBLAZE_PIPELINE_LEASE_TTL" default:"15m"`
	StepTimeout     time.Duration `envconfig:"CLIPBLAZE_PIPELINE_STEP_TIMEOUT" default:"20m"`
	StepMaxAttempts int           `envconfig:"CLIPBLAZE_PIPELINE_STEP_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay  time.Duration `envconfig:"CLIPBLAZE_PIPELINE_RETRY_BASE_DELAY" default:"2s"`
	ClipMinSeconds  float64       `envconfig:"CLIPBLAZE_PIPELINE_CLIP_MIN_SECONDS" default:"15"`
	ClipMaxSeconds  float64       `envconfig:"CLIPBLAZE_PIPELINE_CLIP_MAX_SECONDS" default:"60"`
	MaxClipsPerRun  int           `envconfig:"CLIPBLAZE_PIPELINE_MAX_CLIPS_PER_RUN" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
