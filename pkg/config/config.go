package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Clock    ClockConfig
	Queues   QueuesConfig
	Mailer   MailerConfig
	Notify   NotifyConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ClockConfig pins the institutional time zone and allows freezing "now"
// for tests and rehearsals of session openings.
type ClockConfig struct {
	Timezone string
	FixedNow string
}

// QueuesConfig names the broker queues consumed and published by the
// score sheet bridge.
type QueuesConfig struct {
	ScoreEncodingPDFRequest string
	ConsumerTimeout         time.Duration
	RestartBackoffMin       time.Duration
	RestartBackoffMax       time.Duration
}

// MailerConfig selects the outbound mail driver.
type MailerConfig struct {
	Driver         string
	SendgridAPIKey string
	FromName       string
	FromAddress    string
	SubjectPrefix  string
	Workers        int
}

// NotifyConfig toggles submission notifications.
type NotifyConfig struct {
	TutorSubmissionEnabled  bool
	ManagerCompletedEnabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Clock = ClockConfig{
		Timezone: v.GetString("TIMEZONE"),
		FixedNow: v.GetString("FIXED_NOW"),
	}

	cfg.Queues = QueuesConfig{
		ScoreEncodingPDFRequest: v.GetString("QUEUE_SCORE_ENCODING_PDF_REQUEST"),
		ConsumerTimeout:         parseDuration(v.GetString("QUEUE_CONSUMER_TIMEOUT"), 5*time.Second),
		RestartBackoffMin:       parseDuration(v.GetString("QUEUE_RESTART_BACKOFF_MIN"), time.Second),
		RestartBackoffMax:       parseDuration(v.GetString("QUEUE_RESTART_BACKOFF_MAX"), 30*time.Second),
	}

	cfg.Mailer = MailerConfig{
		Driver:         v.GetString("MAILER_DRIVER"),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		SubjectPrefix:  v.GetString("MAIL_SUBJECT_PREFIX"),
		Workers:        v.GetInt("MAIL_WORKERS"),
	}

	cfg.Notify = NotifyConfig{
		TutorSubmissionEnabled:  v.GetBool("NOTIFY_TUTOR_SUBMISSION"),
		ManagerCompletedEnabled: v.GetBool("NOTIFY_MANAGER_COMPLETED"),
	}

	return cfg, nil
}

// Location resolves the institutional time zone, falling back to UTC when
// the zone database lacks the configured name.
func (c *Config) Location() *time.Location {
	if c.Clock.Timezone != "" {
		if loc, err := time.LoadLocation(c.Clock.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// Now builds the clock injected into the calendar. When FIXED_NOW is set
// the returned func always yields that instant.
func (c *Config) Now() func() time.Time {
	loc := c.Location()
	if c.Clock.FixedNow != "" {
		if fixed, err := time.ParseInLocation(time.RFC3339, c.Clock.FixedNow, loc); err == nil {
			return func() time.Time { return fixed }
		}
	}
	return func() time.Time { return time.Now().In(loc) }
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "osis_score_encoding")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TIMEZONE", "Europe/Brussels")
	v.SetDefault("FIXED_NOW", "")

	v.SetDefault("QUEUE_SCORE_ENCODING_PDF_REQUEST", "score_encoding_pdf_request")
	v.SetDefault("QUEUE_CONSUMER_TIMEOUT", "5s")
	v.SetDefault("QUEUE_RESTART_BACKOFF_MIN", "1s")
	v.SetDefault("QUEUE_RESTART_BACKOFF_MAX", "30s")

	v.SetDefault("MAILER_DRIVER", "console")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "OSIS")
	v.SetDefault("MAIL_FROM_ADDRESS", "noreply@osis.uclouvain.be")
	v.SetDefault("MAIL_SUBJECT_PREFIX", "[OSIS] ")
	v.SetDefault("MAIL_WORKERS", 2)

	v.SetDefault("NOTIFY_TUTOR_SUBMISSION", true)
	v.SetDefault("NOTIFY_MANAGER_COMPLETED", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
