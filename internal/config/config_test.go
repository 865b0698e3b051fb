package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("defaults should load cleanly: %v", err)
	}
	if cfg.MatchRadiusKm != 15 || cfg.MaxCandidates != 10 {
		t.Fatalf("unexpected matcher defaults: %+v", cfg)
	}
	if cfg.OTPTTL != 5*time.Minute {
		t.Fatalf("otp ttl default = %s", cfg.OTPTTL)
	}
	if cfg.OTPTestBypass {
		t.Fatal("otp bypass must default off")
	}
}

func TestInvalidValuesAggregated(t *testing.T) {
	t.Setenv("MATCH_RADIUS_KM", "not-a-number")
	t.Setenv("OTP_TTL", "bogus")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected aggregated parse errors")
	}
}

func TestBypassRejectedInProduction(t *testing.T) {
	t.Setenv("OTP_TEST_BYPASS", "true")
	t.Setenv("ENV", "production")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("bypass must be refused in production")
	}
}

func TestKafkaBrokerList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " b1:9092 , b2:9092 ,")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "b1:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
}
