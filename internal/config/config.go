package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"MorningPulse/pkg/logger"
)

var bootLog = logger.New("config")

const (
	defaultTimezone = "Asia/Taipei"
	fallbackTZ      = "UTC"

	configPathEnv        = "MORNING_PULSE_CONFIG"
	logLevelEnv          = "LOG_LEVEL"
	timezoneEnv          = "TIMEZONE"
	databaseDSNEnv       = "DATABASE_DSN"
	redisURLEnv          = "REDIS_URL"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	telegramAdminChatEnv = "TELEGRAM_ADMIN_CHAT_ID"
	cryptoPanicKeyEnv    = "CRYPTOPANIC_API_KEY"
	nitterInstancesEnv   = "NITTER_INSTANCES"
	minKolScoreEnv       = "MIN_KOL_SCORE"
	minImpactScoreEnv    = "MIN_IMPACT_SCORE"
	maxConcurrentEnv     = "MAX_CONCURRENT_REQUESTS"
	reportWebhookEnv     = "REPORT_WEBHOOK_URL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging         LoggingConfig      `yaml:"logging"`
	Scheduler       SchedulerConfig    `yaml:"scheduler"`
	Ingestion       IngestionConfig    `yaml:"ingestion"`
	Health          HealthConfig       `yaml:"health"`
	Scoring         ScoringConfig      `yaml:"scoring"`
	Dedup           DedupConfig        `yaml:"dedup"`
	Selection       SelectionConfig    `yaml:"selection"`
	Articles        ArticleConfig      `yaml:"articles"`
	Database        DatabaseConfig     `yaml:"database"`
	Redis           RedisConfig        `yaml:"redis"`
	CryptoPanic     CryptoPanicConfig  `yaml:"cryptoPanic"`
	Notifications   NotificationConfig `yaml:"notifications"`
	Report          ReportConfig       `yaml:"report"`
	Sites           []SiteConfig       `yaml:"sites"`
	KOLs            []KOLConfig        `yaml:"kols"`
	OfficialSources []string           `yaml:"officialSources"`
}

// LoggingConfig selects verbosity and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchedulerConfig defines when the daily digest runs.
type SchedulerConfig struct {
	Time     string         `yaml:"time"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clock parses the HH:MM posting time.
func (s SchedulerConfig) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.Time))
	if err != nil {
		return 0, 0, fmt.Errorf("scheduler time %q: %w", s.Time, err)
	}
	return t.Hour(), t.Minute(), nil
}

// IngestionConfig bounds how the scrapers talk to upstream sites.
type IngestionConfig struct {
	MaxConcurrentRequests int           `yaml:"maxConcurrentRequests"`
	RequestTimeout        time.Duration `yaml:"requestTimeout"`
	FamilyDelay           time.Duration `yaml:"familyDelay"`
	UserAgent             string        `yaml:"userAgent"`
	MaxItemsPerSource     int           `yaml:"maxItemsPerSource"`
	MaxAttempts           int           `yaml:"maxAttempts"`
}

// HealthConfig configures source cooldown.
type HealthConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
}

// ScoringConfig holds every weight and threshold of the scoring engine.
type ScoringConfig struct {
	MinKolScore    float64              `yaml:"minKolScore"`
	MinImpactScore float64              `yaml:"minImpactScore"`
	TierBase       map[int]float64      `yaml:"tierBase"`
	KeywordClasses []KeywordClassConfig `yaml:"keywordClasses"`
	Freshness      []FreshnessBracket   `yaml:"freshness"`
	News           NewsWeights          `yaml:"news"`
}

// KeywordClassConfig is one row of the ordered keyword table. Each term may
// list aliases separated by "|"; the class fires when at least MinDistinct
// terms (default 1) appear in the text.
type KeywordClassConfig struct {
	Name        string   `yaml:"name"`
	Weight      float64  `yaml:"weight"`
	Terms       []string `yaml:"terms"`
	Pattern     string   `yaml:"pattern"`
	MinDistinct int      `yaml:"minDistinct"`
}

// FreshnessBracket awards Bonus to posts not older than MaxAge.
type FreshnessBracket struct {
	MaxAge time.Duration `yaml:"maxAge"`
	Bonus  float64       `yaml:"bonus"`
}

// NewsWeights defines the news checklist.
type NewsWeights struct {
	CorroborationMin   int     `yaml:"corroborationMin"`
	Corroboration      float64 `yaml:"corroboration"`
	FinancialMagnitude float64 `yaml:"financialMagnitude"`
	OfficialSource     float64 `yaml:"officialSource"`
	TrendSignal        float64 `yaml:"trendSignal"`
	MaxScore           float64 `yaml:"maxScore"`
}

// DedupConfig configures duplicate suppression and its durable store.
type DedupConfig struct {
	Threshold  float64 `yaml:"threshold"`
	WindowDays int     `yaml:"windowDays"`
	Store      string  `yaml:"store"`
	Path       string  `yaml:"path"`
	Table      string  `yaml:"table"`
	KeyPrefix  string  `yaml:"keyPrefix"`
}

// Window returns the dedup window as a duration.
func (d DedupConfig) Window() time.Duration {
	return time.Duration(d.WindowDays) * 24 * time.Hour
}

// SelectionConfig bounds the publish set. MaxPerCategory 0 means no cap.
type SelectionConfig struct {
	MinItems       int `yaml:"minItems"`
	MaxItems       int `yaml:"maxItems"`
	PublishFloor   int `yaml:"publishFloor"`
	MaxPerCategory int `yaml:"maxPerCategory"`
}

// ArticleConfig controls fetching article pages for selected news items.
type ArticleConfig struct {
	Enabled       bool `yaml:"enabled"`
	SummaryLength int  `yaml:"summaryLength"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig describes the Redis connection.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// CryptoPanicConfig holds the news API credentials.
type CryptoPanicConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken    string `yaml:"botToken"`
	ChatID      string `yaml:"chatId"`
	AdminChatID string `yaml:"adminChatId"`
}

// ReportConfig configures the optional health-report webhook.
type ReportConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
	Token      string `yaml:"token"`
}

// SiteConfig describes a single site with its scanner strategy.
type SiteConfig struct {
	Name      string            `yaml:"name"`
	Scanner   string            `yaml:"scanner"`
	Family    string            `yaml:"family"`
	Endpoints []EndpointConfig  `yaml:"endpoints"`
	Options   map[string]string `yaml:"options"`
}

// EndpointConfig is one concrete URL a scanner may contact.
type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// KOLConfig is one watched influencer account.
type KOLConfig struct {
	Handle string `yaml:"handle"`
	Tier   int    `yaml:"tier"`
}

// Load reads .env, the YAML file named by MORNING_PULSE_CONFIG (if any) and
// applies environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom is Load with an explicit file path; an empty path means defaults.
func LoadFrom(path string) Config {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv(configPathEnv)
	}

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			bootLog.Printf("cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg := Default()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				bootLog.Printf("cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = Default().Sites
	}

	return cfg
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(timezoneEnv); v != "" {
		c.Scheduler.Timezone = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(redisURLEnv); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(telegramAdminChatEnv); v != "" {
		c.Notifications.Telegram.AdminChatID = v
	}
	if v := os.Getenv(cryptoPanicKeyEnv); v != "" {
		c.CryptoPanic.APIKey = v
	}
	if v := os.Getenv(reportWebhookEnv); v != "" {
		c.Report.WebhookURL = v
	}
	if v := os.Getenv(nitterInstancesEnv); v != "" {
		c.overrideNitterInstances(v)
	}
	if v, ok := floatEnv(minKolScoreEnv); ok {
		c.Scoring.MinKolScore = v
	}
	if v, ok := floatEnv(minImpactScoreEnv); ok {
		c.Scoring.MinImpactScore = v
	}
	if v, ok := floatEnv(maxConcurrentEnv); ok && v > 0 {
		c.Ingestion.MaxConcurrentRequests = int(v)
	}
}

func (c *Config) overrideNitterInstances(list string) {
	var endpoints []EndpointConfig
	for _, host := range strings.Split(list, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		endpoints = append(endpoints, EndpointConfig{Name: host, URL: "https://" + host})
	}
	if len(endpoints) == 0 {
		return
	}
	for i := range c.Sites {
		if c.Sites[i].Scanner == "nitter" {
			c.Sites[i].Endpoints = endpoints
		}
	}
}

func floatEnv(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		bootLog.Printf("ignoring %s=%q: %v", key, raw, err)
		return 0, false
	}
	return v, true
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		bootLog.Printf("unknown timezone %s, reverting to %s", tz, fallbackTZ)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}
