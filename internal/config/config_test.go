package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("STORAGE_BUCKET", "stargate-sessions")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.GeminiModel != "gemini-1.5-pro" {
		t.Errorf("GeminiModel = %q", cfg.GeminiModel)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.IndexerWorkers != 3 || cfg.IndexerQueueSize != 100 {
		t.Errorf("indexer defaults = %d/%d", cfg.IndexerWorkers, cfg.IndexerQueueSize)
	}
	if cfg.AnalysisTimeout != 90*time.Second {
		t.Errorf("AnalysisTimeout = %s", cfg.AnalysisTimeout)
	}
	if cfg.CompletedRoomTTL != 5*time.Minute || cfg.AbandonedRoomTTL != time.Hour {
		t.Errorf("room TTLs = %s/%s", cfg.CompletedRoomTTL, cfg.AbandonedRoomTTL)
	}
}

func TestLoadRequiresAPIKeyAndBucket(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("STORAGE_BUCKET", "bucket")
	if _, err := Load(); err == nil {
		t.Error("expected an error without GEMINI_API_KEY")
	}

	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("STORAGE_BUCKET", "")
	if _, err := Load(); err == nil {
		t.Error("expected an error without STORAGE_BUCKET")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INDEXER_WORKERS", "8")
	t.Setenv("ANALYSIS_TIMEOUT", "2m")
	t.Setenv("COMPLETED_ROOM_TTL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IndexerWorkers != 8 {
		t.Errorf("IndexerWorkers = %d", cfg.IndexerWorkers)
	}
	if cfg.AnalysisTimeout != 2*time.Minute {
		t.Errorf("AnalysisTimeout = %s", cfg.AnalysisTimeout)
	}
	if cfg.CompletedRoomTTL != 30*time.Second {
		t.Errorf("CompletedRoomTTL = %s", cfg.CompletedRoomTTL)
	}
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INDEXER_WORKERS", "many")
	t.Setenv("ANALYSIS_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IndexerWorkers != 3 {
		t.Errorf("IndexerWorkers = %d, want default on bad input", cfg.IndexerWorkers)
	}
	if cfg.AnalysisTimeout != 90*time.Second {
		t.Errorf("AnalysisTimeout = %s, want default on bad input", cfg.AnalysisTimeout)
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: "5433", DBUser: "u", DBPassword: "p", DBName: "stargate", DBSSLMode: "disable",
	}
	want := "host=db port=5433 user=u password=p dbname=stargate sslmode=disable"
	if got := cfg.DatabaseURL(); got != want {
		t.Errorf("DatabaseURL() = %q, want %q", got, want)
	}
}
