package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config contains runtime configuration required by the service.
type Config struct {
	Env         string
	Port        string
	DBURL       string
	RedisURL    string // empty -> in-process buffer, cache and lock
	ServiceName string
	SnowflakeID int64
	Debug       bool

	Notion    NotionConfig
	Slack     SlackConfig
	Calendar  CalendarConfig
	Hours     HoursConfig
	Queue     QueueConfig
	Retention RetentionConfig
	Tasks     TasksConfig

	UserCacheTTL  time.Duration
	LockTimeout   time.Duration
	PublicBaseURL string
}

type NotionConfig struct {
	Token     string
	WebhookID string
	BaseURL   string
}

type SlackConfig struct {
	BotToken string
	Channel  string
	BaseURL  string
}

type CalendarConfig struct {
	APIKey     string
	CalendarID string
	BaseURL    string
}

// HoursConfig describes the working window; everything outside is off-hours.
type HoursConfig struct {
	Location   *time.Location
	StartHour  int
	EndHour    int
	ReportHour int
}

type QueueConfig struct {
	TTL        time.Duration
	Capacity   int
	DrainDelay time.Duration
}

type RetentionConfig struct {
	MaxRows int
	Block   int
}

type TasksConfig struct {
	APIKey           string
	SchedulerEnabled bool
}

// Load reads configuration from the environment. A .env file is honoured
// outside production so `go run ./cmd/api` works locally.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("app_env", "development")
	if strings.ToLower(v.GetString("app_env")) != "production" {
		_ = godotenv.Load()
	}

	v.SetDefault("port", "8080")
	v.SetDefault("db_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("otel_service_name", "offhours-digest")
	v.SetDefault("snowflake_node", 1)
	v.SetDefault("debug", false)
	v.SetDefault("notion_token", "")
	v.SetDefault("notion_webhook_id", "")
	v.SetDefault("notion_base_url", "https://api.notion.com")
	v.SetDefault("slack_bot_token", "")
	v.SetDefault("slack_channel", "")
	v.SetDefault("slack_base_url", "https://slack.com/api")
	v.SetDefault("google_api_key", "")
	v.SetDefault("holiday_calendar_id", "ja.japanese#holiday@group.v.calendar.google.com")
	v.SetDefault("calendar_base_url", "https://www.googleapis.com/calendar/v3")
	v.SetDefault("timezone", "Asia/Tokyo")
	v.SetDefault("work_start_hour", 9)
	v.SetDefault("work_end_hour", 20)
	v.SetDefault("report_hour", 9)
	v.SetDefault("queue_ttl", "10m")
	v.SetDefault("queue_capacity", 10_000)
	v.SetDefault("queue_drain_delay", "1m")
	v.SetDefault("retention_max_rows", 2000)
	v.SetDefault("retention_prune_block", 1000)
	v.SetDefault("user_cache_ttl", "6h")
	v.SetDefault("lock_timeout", "3s")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("tasks_api_key", "")
	v.SetDefault("scheduler_enabled", true)

	dbURL := strings.TrimSpace(v.GetString("db_url"))
	if dbURL == "" {
		return Config{}, errors.New("DB_URL required")
	}
	notionToken := strings.TrimSpace(v.GetString("notion_token"))
	if notionToken == "" {
		return Config{}, errors.New("NOTION_TOKEN required")
	}

	tz := strings.TrimSpace(v.GetString("timezone"))
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("TIMEZONE %q: %w", tz, err)
	}

	start, end := v.GetInt("work_start_hour"), v.GetInt("work_end_hour")
	if start < 0 || end > 24 || start >= end {
		return Config{}, fmt.Errorf("WORK_START_HOUR/WORK_END_HOUR must satisfy 0 <= start < end <= 24, got %d/%d", start, end)
	}
	reportHour := v.GetInt("report_hour")
	if reportHour < 0 || reportHour > 23 {
		return Config{}, fmt.Errorf("REPORT_HOUR must be in [0,23], got %d", reportHour)
	}

	maxRows, block := v.GetInt("retention_max_rows"), v.GetInt("retention_prune_block")
	if block <= 0 || maxRows <= block {
		return Config{}, fmt.Errorf("RETENTION_MAX_ROWS (%d) must exceed RETENTION_PRUNE_BLOCK (%d) > 0", maxRows, block)
	}

	capacity := v.GetInt("queue_capacity")
	if capacity <= 0 {
		capacity = 10_000
	}

	return Config{
		Env:         strings.ToLower(strings.TrimSpace(v.GetString("app_env"))),
		Port:        strings.TrimSpace(v.GetString("port")),
		DBURL:       dbURL,
		RedisURL:    strings.TrimSpace(v.GetString("redis_url")),
		ServiceName: strings.TrimSpace(v.GetString("otel_service_name")),
		SnowflakeID: v.GetInt64("snowflake_node"),
		Debug:       v.GetBool("debug"),
		Notion: NotionConfig{
			Token:     notionToken,
			WebhookID: strings.TrimSpace(v.GetString("notion_webhook_id")),
			BaseURL:   strings.TrimRight(v.GetString("notion_base_url"), "/"),
		},
		Slack: SlackConfig{
			BotToken: strings.TrimSpace(v.GetString("slack_bot_token")),
			Channel:  strings.TrimSpace(v.GetString("slack_channel")),
			BaseURL:  strings.TrimRight(v.GetString("slack_base_url"), "/"),
		},
		Calendar: CalendarConfig{
			APIKey:     strings.TrimSpace(v.GetString("google_api_key")),
			CalendarID: strings.TrimSpace(v.GetString("holiday_calendar_id")),
			BaseURL:    strings.TrimRight(v.GetString("calendar_base_url"), "/"),
		},
		Hours: HoursConfig{
			Location:   loc,
			StartHour:  start,
			EndHour:    end,
			ReportHour: reportHour,
		},
		Queue: QueueConfig{
			TTL:        v.GetDuration("queue_ttl"),
			Capacity:   capacity,
			DrainDelay: v.GetDuration("queue_drain_delay"),
		},
		Retention: RetentionConfig{
			MaxRows: maxRows,
			Block:   block,
		},
		Tasks: TasksConfig{
			APIKey:           strings.TrimSpace(v.GetString("tasks_api_key")),
			SchedulerEnabled: v.GetBool("scheduler_enabled"),
		},
		UserCacheTTL:  v.GetDuration("user_cache_ttl"),
		LockTimeout:   v.GetDuration("lock_timeout"),
		PublicBaseURL: strings.TrimRight(v.GetString("public_base_url"), "/"),
	}, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// RedisEnabled reports whether the shared Redis backend should be used.
func (c Config) RedisEnabled() bool {
	return c.RedisURL != ""
}
