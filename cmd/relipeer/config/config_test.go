package config

import (
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToEmbeddedDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen == "" {
		t.Fatalf("expected a non-empty Listen address from the embedded default")
	}
}

func TestToParamsParsesDurations(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	params, err := cfg.ToParams()
	if err != nil {
		t.Fatalf("to params: %v", err)
	}
	if params.PingInterval <= 0 {
		t.Fatalf("expected a positive PingInterval, got %v", params.PingInterval)
	}
	if err := params.Validate(); err != nil {
		t.Fatalf("expected the default config to produce valid params: %v", err)
	}
}

func TestToParamsRejectsGarbageDuration(t *testing.T) {
	cfg := Config{
		PingInterval:            "not-a-duration",
		RequestMissingInterval:  "1s",
		EmitUnconfirmedInterval: "1s",
		ReceivePingTimeout:      "3s",
		SendPingTimeout:         "3s",
		MaxDatagramSize:         1024,
	}
	if _, err := cfg.ToParams(); err == nil {
		t.Fatalf("expected an error for an unparseable duration")
	}
}
