package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "ms-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "ms-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "ms-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.LifecycleTopic != defaultLifecycleTopic {
		t.Errorf("expected default lifecycle topic, got %s", cfg.PubSub.LifecycleTopic)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"API_SERVER_WRITE_TIMEOUT":         "25s",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIREBASE_PROJECT_ID":          "ms-prod",
		"API_FIRESTORE_PROJECT_ID":         "ms-fire",
		"API_PUBSUB_PROJECT_ID":            "ms-pubsub",
		"API_PUBSUB_LIFECYCLE_TOPIC":       "order-lifecycle-prod",
		"API_PSP_STRIPE_API_KEY":           "secret://stripe/api",
		"API_PSP_STRIPE_WEBHOOK_SECRET":    "secret://stripe/webhook",
		"API_RATELIMIT_DEFAULT_PER_MIN":    "150",
		"API_RATELIMIT_AUTH_PER_MIN":       "300",
		"API_SECURITY_ENVIRONMENT":         "prod",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":    "500",
	}

	secrets := map[string]string{
		"secret://stripe/api":     "stripe-key",
		"secret://stripe/webhook": "stripe-webhook",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "ms-fire" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "ms-pubsub" {
		t.Errorf("unexpected pubsub project %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.LifecycleTopic != "order-lifecycle-prod" {
		t.Errorf("unexpected lifecycle topic %s", cfg.PubSub.LifecycleTopic)
	}
	if cfg.PSP.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.PSP.StripeWebhookSecret != "stripe-webhook" {
		t.Errorf("expected resolved stripe webhook secret, got %s", cfg.PSP.StripeWebhookSecret)
	}
	if cfg.RateLimits.AuthenticatedPerMinute != 300 {
		t.Errorf("unexpected authenticated rate limit %d", cfg.RateLimits.AuthenticatedPerMinute)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected security environment prod, got %s", cfg.Security.Environment)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=ms-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "ms-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "ms-dev",
		"API_PSP_STRIPE_API_KEY":  "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "ms-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("PSP.StripeAPIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "ms-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "PSP.StripeAPIKey" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "ms-dev",
		"API_PSP_STRIPE_API_KEY":  "sm://stripe/api",
	}

	secrets := map[string]string{
		"secret://stripe/api": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PSP.StripeAPIKey != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.PSP.StripeAPIKey)
	}
}
