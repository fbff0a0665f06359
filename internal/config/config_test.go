package config

import "testing"

func TestDefaultConfigResolvesLocation(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Location == nil {
		t.Fatal("expected DefaultConfig to resolve api.timezone into Location")
	}
	if cfg.Location.String() != DefaultTimeZone {
		t.Errorf("expected Location %q, got %q", DefaultTimeZone, cfg.Location.String())
	}
}

func TestResolveLocationRejectsUnknownZone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.TimeZone = "Not/AZone"
	if err := cfg.ResolveLocation(); err == nil {
		t.Fatal("expected an error for an unknown IANA zone name")
	}
}

func TestNowUsesResolvedLocation(t *testing.T) {
	cfg := DefaultConfig()
	now := cfg.Now()
	if now.Location().String() != DefaultTimeZone {
		t.Errorf("expected Now() in %q, got %q", DefaultTimeZone, now.Location().String())
	}
}

func TestNowFallsBackToUTCWithoutResolvedLocation(t *testing.T) {
	cfg := &Config{}
	now := cfg.Now()
	if now.Location() != nil && now.Location().String() != "UTC" {
		t.Errorf("expected UTC fallback when Location is unset, got %q", now.Location().String())
	}
}

func TestValidateRejectsUnknownTimeZone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.TimeZone = "Definitely/Bogus"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to reject an unresolvable api.timezone")
	}
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("expected the default config to validate, got %v", err)
	}
}
