package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]string{"github-token": "ghp_abc"})

	s, err := r.Resolve(context.Background(), "github-token")
	if err != nil {
		t.Fatal(err)
	}
	if s.Value != "ghp_abc" || s.Backend != "static" {
		t.Errorf("secret = %+v", s)
	}

	_, err = r.Resolve(context.Background(), "absent")
	if !models.IsKind(err, models.KindCredentialMissing) {
		t.Fatalf("expected CredentialMissing, got %v", err)
	}
}

func TestStaticResolverEnvFallback(t *testing.T) {
	t.Setenv("GATE_CREDENTIAL_SLACK_WEBHOOK", "https://hooks.example")
	r := NewStaticResolver(nil)

	s, err := r.Resolve(context.Background(), "slack-webhook")
	if err != nil {
		t.Fatal(err)
	}
	if s.Value != "https://hooks.example" {
		t.Errorf("value = %q", s.Value)
	}
}

func TestSecretValueNeverSerialized(t *testing.T) {
	s := models.Secret{ID: "x", Value: "super-secret"}
	if got := models.CanonicalJSON(s); contains(got, "super-secret") {
		t.Errorf("secret value leaked into JSON: %s", got)
	}
}

type countingResolver struct {
	inner *StaticResolver
	calls int
}

func (c *countingResolver) Kind() string { return "counting" }

func (c *countingResolver) Resolve(ctx context.Context, id string) (*models.Secret, error) {
	c.calls++
	return c.inner.Resolve(ctx, id)
}

func (c *countingResolver) HealthCheck(context.Context) error { return nil }

func TestCachingResolver(t *testing.T) {
	inner := &countingResolver{inner: NewStaticResolver(map[string]string{"k": "v"})}
	r := NewCachingResolver(inner, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), "k"); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("backend calls = %d, want 1", inner.calls)
	}

	r.Invalidate("k")
	if _, err := r.Resolve(context.Background(), "k"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("backend calls = %d, want 2 after invalidation", inner.calls)
	}

	// Misses are not cached.
	if _, err := r.Resolve(context.Background(), "absent"); !models.IsKind(err, models.KindCredentialMissing) {
		t.Fatalf("expected CredentialMissing, got %v", err)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
