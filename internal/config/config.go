package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"cellreport/internal/logger"
	"cellreport/internal/reportwindow"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultDBPath           = "./cellreport.db"
	defaultChurchName       = "My Church"
	defaultReminderSchedule = "0 22 * * 4"
	defaultLogLevel         = "info"

	defaultExternalHTTPTimeoutSeconds = 30
)

// Leader is a cell leader expected to submit one report per week.
// Slack may be a user ID or a display/real name resolved at startup.
type Leader struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Cell           string `yaml:"cell"`
	Slack          string `yaml:"slack"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type Config struct {
	SlackBotToken    string `yaml:"slack_bot_token" envconfig:"SLACK_BOT_TOKEN"`
	SlackAppToken    string `yaml:"slack_app_token" envconfig:"SLACK_APP_TOKEN"`
	TelegramBotToken string `yaml:"telegram_bot_token" envconfig:"TELEGRAM_BOT_TOKEN"`

	DBPath          string `yaml:"db_path" envconfig:"DB_PATH"`
	ReportChannelID string `yaml:"report_channel_id" envconfig:"REPORT_CHANNEL_ID"`
	ChurchName      string `yaml:"church_name" envconfig:"CHURCH_NAME"`
	LogLevel        string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds" envconfig:"EXTERNAL_HTTP_TIMEOUT_SECONDS"`

	ManagerSlackIDs  []string `yaml:"manager_slack_ids" envconfig:"MANAGER_SLACK_IDS"`
	Leaders          []Leader `yaml:"leaders" ignored:"true"`
	ReminderSchedule string   `yaml:"reminder_schedule" envconfig:"REMINDER_SCHEDULE"`
	Timezone         string   `yaml:"timezone" envconfig:"TIMEZONE"`

	Location *time.Location `yaml:"-" ignored:"true"` // computed from Timezone, not from YAML
}

// LoadConfig reads config.yaml (or CONFIG_PATH), then lets environment
// variables, including those from an optional .env file, override it.
func LoadConfig() (Config, error) {
	var cfg Config

	envPath := ".env"
	if p := os.Getenv("DOTENV_PATH"); p != "" {
		envPath = p
	}
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", envPath, err)
	}

	configPath := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		configPath = p
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read %s: %w", configPath, err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	cfg.ManagerSlackIDs = trimNonEmpty(cfg.ManagerSlackIDs)

	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.ChurchName == "" {
		cfg.ChurchName = defaultChurchName
	}
	if cfg.ReminderSchedule == "" {
		cfg.ReminderSchedule = defaultReminderSchedule
	}
	if cfg.Timezone == "" {
		cfg.Timezone = reportwindow.DefaultTimezone
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
		cfg.Timezone = time.Local.String()
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if _, err := ParseReminderSchedule(cfg.ReminderSchedule); err != nil {
		return cfg, fmt.Errorf("invalid reminder_schedule '%s': %w", cfg.ReminderSchedule, err)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		return cfg, fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("invalid log_level: %w", err)
	}
	if err := normalizeLeaders(cfg.Leaders); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ValidateForServe checks the settings only the long-running bot needs.
func (c Config) ValidateForServe() error {
	required := []struct{ name, val string }{
		{"slack_bot_token", c.SlackBotToken},
		{"slack_app_token", c.SlackAppToken},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("required config '%s' is not set (via config.yaml or env var)", r.name)
		}
	}
	return nil
}

// ParseReminderSchedule parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ParseReminderSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(strings.TrimSpace(spec))
}

func (c Config) IsManagerID(userID string) bool {
	for _, id := range c.ManagerSlackIDs {
		if strings.TrimSpace(id) == userID {
			return true
		}
	}
	return false
}

func (c Config) TelegramConfigured() bool {
	return c.TelegramBotToken != ""
}

func (c Config) LeaderByID(id string) (Leader, bool) {
	id = strings.TrimSpace(id)
	for _, l := range c.Leaders {
		if strings.EqualFold(l.ID, id) {
			return l, true
		}
	}
	return Leader{}, false
}

func (c Config) LeaderIDs() []string {
	ids := make([]string, 0, len(c.Leaders))
	for _, l := range c.Leaders {
		ids = append(ids, l.ID)
	}
	return ids
}

// DisplayName is the leader's name with the cell in parentheses when known.
func (l Leader) DisplayName() string {
	if l.Cell == "" {
		return l.Name
	}
	return fmt.Sprintf("%s (%s)", l.Name, l.Cell)
}

func normalizeLeaders(leaders []Leader) error {
	seen := make(map[string]bool, len(leaders))
	for i := range leaders {
		l := &leaders[i]
		l.ID = strings.TrimSpace(l.ID)
		l.Name = strings.TrimSpace(l.Name)
		l.Slack = strings.TrimSpace(l.Slack)
		if l.ID == "" {
			return fmt.Errorf("leaders[%d]: id is required", i)
		}
		key := strings.ToLower(l.ID)
		if seen[key] {
			return fmt.Errorf("leaders[%d]: duplicate id '%s'", i, l.ID)
		}
		seen[key] = true
		if l.Name == "" {
			l.Name = l.ID
		}
	}
	return nil
}

func trimNonEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
