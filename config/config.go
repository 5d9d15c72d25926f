package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Milestone pairs a threshold (minutes, days or pomodoros depending on use) with a point award.
type Milestone struct {
	At     int `json:"at"`
	Points int `json:"points"`
}

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	TokenTTLHours      int
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database: "mysql" (default) or "sqlite"
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string
	// Redis for locks/caching; empty host disables it
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Study session rules
	Timezone               string
	PomodoroMinutes        int
	BreakMinutes           int
	MinSessionSeconds      int
	StaleSessionHours      int
	StaleSweepSchedule     string
	SessionLockSeconds     int
	FocusBonusThreshold    int
	FocusBonusPoints       int
	DurationTiers          []Milestone
	StreakMilestones       []Milestone
	PomodoroMilestones     []Milestone
	StatsCacheTTLSeconds   int
	MaxTagsPerSession      int
	MaxNotesLength         int
	MaxEstimatedMinutes    int
	DisableStaleSweeper    bool
	DisableStatsCache      bool
	RegistrationInviteCode string
	// Per-IP registration throttling; zero disables
	RegisterAttemptCooldownSec int
	RegisterMaxPerIPPerDay     int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> .env -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("ignoring invalid config/config.json: %v", err)
	}

	applyDefaults(&cfg)

	// .env only fills variables the process environment does not already define
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Use installs c as the active configuration after filling defaults.
// Tests and embedded servers call it instead of Load.
func Use(c AppConfig) AppConfig {
	applyDefaults(&c)
	cfg = c
	loaded = true
	return cfg
}

// Defaults returns a configuration with every default applied and nothing read from disk or env.
func Defaults() AppConfig {
	var c AppConfig
	applyDefaults(&c)
	return c
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}
	applyJSONSections(raw, out)
	return nil
}

func applyJSONSections(raw map[string]any, out *AppConfig) {
	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}
	getMilestones := func(m map[string]any, key string) []Milestone {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]Milestone, 0, len(arr))
		for _, it := range arr {
			if obj, ok := it.(map[string]any); ok {
				res = append(res, Milestone{At: getInt(obj, "at"), Points: getInt(obj, "points")})
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		out.TokenTTLHours = getInt(app, "TokenTTLHours")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		out.RegistrationInviteCode = getString(app, "RegistrationInviteCode")
		out.RegisterAttemptCooldownSec = getInt(app, "RegisterAttemptCooldownSec")
		out.RegisterMaxPerIPPerDay = getInt(app, "RegisterMaxPerIPPerDay")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.SQLitePath = getString(dbs, "SQLitePath")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.GinMode = getString(lg, "GinMode")
		out.GinPath = getString(lg, "GinPath")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if st, ok := raw["study"].(map[string]any); ok {
		out.Timezone = getString(st, "Timezone")
		out.PomodoroMinutes = getInt(st, "PomodoroMinutes")
		out.BreakMinutes = getInt(st, "BreakMinutes")
		out.MinSessionSeconds = getInt(st, "MinSessionSeconds")
		out.StaleSessionHours = getInt(st, "StaleSessionHours")
		out.StaleSweepSchedule = getString(st, "StaleSweepSchedule")
		out.SessionLockSeconds = getInt(st, "SessionLockSeconds")
		out.MaxTagsPerSession = getInt(st, "MaxTagsPerSession")
		out.MaxNotesLength = getInt(st, "MaxNotesLength")
		out.MaxEstimatedMinutes = getInt(st, "MaxEstimatedMinutes")
		out.StatsCacheTTLSeconds = getInt(st, "StatsCacheTTLSeconds")
		out.DisableStaleSweeper = getBool(st, "DisableStaleSweeper")
		out.DisableStatsCache = getBool(st, "DisableStatsCache")
	}

	if rw, ok := raw["reward"].(map[string]any); ok {
		out.FocusBonusThreshold = getInt(rw, "FocusBonusThreshold")
		out.FocusBonusPoints = getInt(rw, "FocusBonusPoints")
		out.DurationTiers = getMilestones(rw, "DurationTiers")
		out.StreakMilestones = getMilestones(rw, "StreakMilestones")
		out.PomodoroMilestones = getMilestones(rw, "PomodoroMilestones")
	}
}

func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 72
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "studymate"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/studymate.db"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.PomodoroMinutes == 0 {
		c.PomodoroMinutes = 25
	}
	if c.BreakMinutes == 0 {
		c.BreakMinutes = 5
	}
	if c.MinSessionSeconds == 0 {
		c.MinSessionSeconds = 60
	}
	if c.StaleSessionHours == 0 {
		c.StaleSessionHours = 12
	}
	if c.StaleSweepSchedule == "" {
		c.StaleSweepSchedule = "@every 15m"
	}
	if c.SessionLockSeconds == 0 {
		c.SessionLockSeconds = 10
	}
	if c.FocusBonusThreshold == 0 {
		c.FocusBonusThreshold = 80
	}
	if c.FocusBonusPoints == 0 {
		c.FocusBonusPoints = 10
	}
	if len(c.DurationTiers) == 0 {
		c.DurationTiers = []Milestone{{At: 30, Points: 5}, {At: 60, Points: 15}, {At: 120, Points: 30}}
	}
	if len(c.StreakMilestones) == 0 {
		c.StreakMilestones = []Milestone{{At: 3, Points: 15}, {At: 7, Points: 35}, {At: 30, Points: 150}}
	}
	if len(c.PomodoroMilestones) == 0 {
		c.PomodoroMilestones = []Milestone{{At: 3, Points: 10}, {At: 7, Points: 25}}
	}
	if c.StatsCacheTTLSeconds == 0 {
		c.StatsCacheTTLSeconds = 300
	}
	if c.MaxTagsPerSession == 0 {
		c.MaxTagsPerSession = 20
	}
	if c.MaxNotesLength == 0 {
		c.MaxNotesLength = 4000
	}
	if c.MaxEstimatedMinutes == 0 {
		c.MaxEstimatedMinutes = 24 * 60
	}
	sortMilestones(c.DurationTiers)
	sortMilestones(c.StreakMilestones)
	sortMilestones(c.PomodoroMilestones)
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("TOKEN_TTL_HOURS", ""); v != "" {
		c.TokenTTLHours = mustParseInt(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("SQLITE_PATH", ""); v != "" {
		c.SQLitePath = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = parseBool(v)
	}
	if v := getEnv("STUDY_TIMEZONE", ""); v != "" {
		c.Timezone = v
	}
	if v := getEnv("POMODORO_MINUTES", ""); v != "" {
		c.PomodoroMinutes = mustParseInt(v)
	}
	if v := getEnv("BREAK_MINUTES", ""); v != "" {
		c.BreakMinutes = mustParseInt(v)
	}
	if v := getEnv("MIN_SESSION_SECONDS", ""); v != "" {
		c.MinSessionSeconds = mustParseInt(v)
	}
	if v := getEnv("STALE_SESSION_HOURS", ""); v != "" {
		c.StaleSessionHours = mustParseInt(v)
	}
	if v := getEnv("STALE_SWEEP_SCHEDULE", ""); v != "" {
		c.StaleSweepSchedule = v
	}
	if v := getEnv("DISABLE_STALE_SWEEPER", ""); v != "" {
		c.DisableStaleSweeper = parseBool(v)
	}
	if v := getEnv("FOCUS_BONUS_THRESHOLD", ""); v != "" {
		c.FocusBonusThreshold = mustParseInt(v)
	}
	if v := getEnv("FOCUS_BONUS_POINTS", ""); v != "" {
		c.FocusBonusPoints = mustParseInt(v)
	}
	if v := getEnv("REWARD_DURATION_TIERS", ""); v != "" {
		c.DurationTiers = mustParseMilestones(v)
	}
	if v := getEnv("REWARD_STREAK_MILESTONES", ""); v != "" {
		c.StreakMilestones = mustParseMilestones(v)
	}
	if v := getEnv("REWARD_POMODORO_MILESTONES", ""); v != "" {
		c.PomodoroMilestones = mustParseMilestones(v)
	}
	if v := getEnv("REGISTRATION_INVITE_CODE", ""); v != "" {
		c.RegistrationInviteCode = v
	}
	if v := getEnv("REGISTER_ATTEMPT_COOLDOWN_SEC", ""); v != "" {
		c.RegisterAttemptCooldownSec = mustParseInt(v)
	}
	if v := getEnv("REGISTER_MAX_PER_IP_PER_DAY", ""); v != "" {
		c.RegisterMaxPerIPPerDay = mustParseInt(v)
	}
}

// ParseMilestones parses "30:5,60:15,120:30" into milestones sorted by threshold.
func ParseMilestones(raw string) ([]Milestone, error) {
	var out []Milestone
	for _, item := range splitAndTrim(raw) {
		at, points, ok := strings.Cut(item, ":")
		if !ok {
			return nil, &strconv.NumError{Func: "ParseMilestones", Num: item, Err: strconv.ErrSyntax}
		}
		a, err := strconv.Atoi(strings.TrimSpace(at))
		if err != nil {
			return nil, err
		}
		p, err := strconv.Atoi(strings.TrimSpace(points))
		if err != nil {
			return nil, err
		}
		out = append(out, Milestone{At: a, Points: p})
	}
	sortMilestones(out)
	return out, nil
}

func mustParseMilestones(val string) []Milestone {
	ms, err := ParseMilestones(val)
	if err != nil {
		log.Fatalf("invalid milestone list %s: %v", val, err)
	}
	return ms
}

func sortMilestones(ms []Milestone) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].At < ms[j].At })
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func parseBool(val string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	return err == nil && b
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
