package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	Doctors        []string `mapstructure:"CLINIC_DOCTORS"`
	SlotMinutes    int      `mapstructure:"APPOINTMENT_SLOT_MINUTES"`
	GraceMinutes   int      `mapstructure:"APPOINTMENT_CONFLICT_GRACE_MINUTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("CLINIC_DOCTORS", "Dr. Lina,Dr. Omar")
	v.SetDefault("APPOINTMENT_SLOT_MINUTES", 30)
	v.SetDefault("APPOINTMENT_CONFLICT_GRACE_MINUTES", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("CLINIC_DOCTORS")
	v.BindEnv("APPOINTMENT_SLOT_MINUTES")
	v.BindEnv("APPOINTMENT_CONFLICT_GRACE_MINUTES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	if cfg.Doctors == nil {
		cfg.Doctors = strings.Split(v.GetString("CLINIC_DOCTORS"), ",")
	}
	cfg.Doctors = cleanList(cfg.Doctors)
	if len(cfg.Doctors) == 0 {
		cfg.Doctors = []string{"On Call"}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the scheduling parameters are usable. Slot duration
// must be positive; the grace window may be zero but never negative.
func (c *Config) Validate() error {
	if c.SlotMinutes <= 0 {
		return fmt.Errorf("APPOINTMENT_SLOT_MINUTES must be positive, got %d", c.SlotMinutes)
	}
	if c.GraceMinutes < 0 {
		return fmt.Errorf("APPOINTMENT_CONFLICT_GRACE_MINUTES must not be negative, got %d", c.GraceMinutes)
	}
	if len(c.Doctors) == 0 {
		return fmt.Errorf("CLINIC_DOCTORS must list at least one doctor")
	}
	return nil
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
