package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the dispatch API
// process. Values are primarily loaded from environment variables with
// sane defaults so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers    []string
	LocationTopic   string
	RideEventsTopic string

	PGDSN string

	PushEndpoint string
	PushKey      string

	MatchRadiusKm   float64
	MaxCandidates   int
	ExpandOnNoMatch bool
	SpeedKmh        float64

	SessionTimeout time.Duration
	OfferTTL       time.Duration

	OTPTTL        time.Duration
	OTPTestBypass bool
	OTPBypassCode string

	CommissionRate float64
	Surge          float64
	Currency       string
	StripeEnabled  bool

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "drivers_geo",
		LocationTopic:   "driver-locations",
		RideEventsTopic: "ride-events",
		MatchRadiusKm:   15,
		MaxCandidates:   10,
		ExpandOnNoMatch: true,
		SpeedKmh:        30,
		SessionTimeout:  45 * time.Second,
		OfferTTL:        15 * time.Second,
		OTPTTL:          5 * time.Minute,
		OTPBypassCode:   "0000",
		CommissionRate:  0.2,
		Surge:           1,
		Currency:        "inr",
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.LocationTopic, "KAFKA_LOCATION_TOPIC")
	setStringFromEnv(&cfg.RideEventsTopic, "KAFKA_RIDE_EVENTS_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.PushEndpoint = strings.TrimSpace(os.Getenv("PUSH_ENDPOINT"))
	cfg.PushKey = os.Getenv("PUSH_KEY")

	setFloatFromEnv(&cfg.MatchRadiusKm, "MATCH_RADIUS_KM", &errs)
	setIntFromEnv(&cfg.MaxCandidates, "MATCH_MAX_CANDIDATES", &errs)
	setBoolFromEnv(&cfg.ExpandOnNoMatch, "MATCH_EXPAND_ON_NO_MATCH")
	setFloatFromEnv(&cfg.SpeedKmh, "MATCH_SPEED_KMH", &errs)

	setDurationFromEnv(&cfg.SessionTimeout, "DISPATCH_SESSION_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.OfferTTL, "DISPATCH_OFFER_TTL", &errs)

	setDurationFromEnv(&cfg.OTPTTL, "OTP_TTL", &errs)
	setBoolFromEnv(&cfg.OTPTestBypass, "OTP_TEST_BYPASS")
	setStringFromEnv(&cfg.OTPBypassCode, "OTP_BYPASS_CODE")

	setFloatFromEnv(&cfg.CommissionRate, "COMMISSION_RATE", &errs)
	setFloatFromEnv(&cfg.Surge, "SURGE_MULTIPLIER", &errs)
	setStringFromEnv(&cfg.Currency, "FARE_CURRENCY")
	cfg.StripeEnabled = os.Getenv("STRIPE_API_KEY") != ""

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.MaxCandidates <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_MAX_CANDIDATES must be > 0"))
	}
	if cfg.MatchRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_RADIUS_KM must be > 0"))
	}
	if cfg.CommissionRate < 0 || cfg.CommissionRate > 1 {
		errs = append(errs, fmt.Errorf("COMMISSION_RATE must be within [0,1]"))
	}
	if cfg.OTPTestBypass && os.Getenv("ENV") == "production" {
		errs = append(errs, fmt.Errorf("OTP_TEST_BYPASS must not be set in production"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setBoolFromEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = strings.EqualFold(v, "true") || v == "1"
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
