package config

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CLIPBLAZE_APP_ENV", "dev")
	t.Setenv("CLIPBLAZE_APP_PORT", "8080")
	t.Setenv("CLIPBLAZE_DB_DSN", "postgres://cb:cb@localhost:5432/clipblaze?sslmode=disable")
	t.Setenv("CLIPBLAZE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CLIPBLAZE_JWT_SECRET", "secret")
	t.Setenv("CLIPBLAZE_JWT_ISSUER", "clipblaze")
	t.Setenv("CLIPBLAZE_GCP_PROJECT_ID", "cb-project")
	t.Setenv("CLIPBLAZE_GCS_BUCKET_NAME", "cb-media")
	t.Setenv("CLIPBLAZE_PUBSUB_JOBS_TOPIC", "cb-jobs")
	t.Setenv("CLIPBLAZE_PUBSUB_JOBS_SUBSCRIPTION", "cb-jobs-worker")
	t.Setenv("CLIPBLAZE_PUBSUB_BILLING_TOPIC", "cb-billing")
	t.Setenv("CLIPBLAZE_PUBSUB_BILLING_SUBSCRIPTION", "cb-billing-worker")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !cfg.App.IsDev() {
		t.Errorf("expected dev environment")
	}
	if cfg.Service.Kind != ServiceKindAPI {
		t.Errorf("expected default service kind %q, got %q", ServiceKindAPI, cfg.Service.Kind)
	}
	if cfg.Pipeline.StepMaxAttempts != 3 {
		t.Errorf("expected default step attempts 3, got %d", cfg.Pipeline.StepMaxAttempts)
	}
	if cfg.Pipeline.ClipMinSeconds != 15 || cfg.Pipeline.ClipMaxSeconds != 60 {
		t.Errorf("unexpected clip bounds: %v..%v", cfg.Pipeline.ClipMinSeconds, cfg.Pipeline.ClipMaxSeconds)
	}
	if cfg.Render.Concurrency != 3 {
		t.Errorf("expected default render concurrency 3, got %d", cfg.Render.Concurrency)
	}
	if got := cfg.Source.Providers; len(got) != 1 || got[0] != "ytstream" {
		t.Errorf("expected default provider chain [ytstream], got %v", got)
	}
	if cfg.Outbox.MaxAttempts != 10 {
		t.Errorf("expected default outbox attempts 10, got %d", cfg.Outbox.MaxAttempts)
	}
}

func TestLoadLegacyDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CLIPBLAZE_DB_DSN", "")
	t.Setenv("CLIPBLAZE_DB_HOST", "db.internal")
	t.Setenv("CLIPBLAZE_DB_USER", "cb")
	t.Setenv("CLIPBLAZE_DB_PASSWORD", "pw")
	t.Setenv("CLIPBLAZE_DB_NAME", "clipblaze")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !strings.HasPrefix(cfg.DB.DSN, "postgres://cb:pw@db.internal:5432/clipblaze") {
		t.Errorf("unexpected DSN %q", cfg.DB.DSN)
	}
	if !strings.Contains(cfg.DB.DSN, "sslmode=disable") {
		t.Errorf("expected sslmode in DSN, got %q", cfg.DB.DSN)
	}
}

func TestLoadMissingDBConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CLIPBLAZE_DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when neither DSN nor legacy DB vars are set")
	}
}
