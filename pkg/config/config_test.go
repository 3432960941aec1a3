package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("NEXT_PUBLIC_SUPABASE_URL", "")
	t.Setenv("NEXT_PUBLIC_SUPABASE_ANON_KEY", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "story-photos", cfg.StorageBucket)
	assert.Equal(t, 25*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.BackendConfigured())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFrontendFallbacks(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("NEXT_PUBLIC_SUPABASE_URL", " https://abc.supabase.co \n")
	t.Setenv("NEXT_PUBLIC_SUPABASE_ANON_KEY", "anon")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://abc.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, "anon", cfg.SupabaseAnonKey)
	assert.True(t, cfg.BackendConfigured())
}

func TestBackendConfiguredRejectsPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		url  string
		key  string
		want bool
	}{
		{"missing url", "", "key", false},
		{"missing key", "https://x.supabase.co", "", false},
		{"placeholder url", "your-project-url", "key", false},
		{"placeholder key", "https://x.supabase.co", "your-anon-key", false},
		{"configured", "https://x.supabase.co", "key", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{SupabaseURL: tt.url, SupabaseAnonKey: tt.key}
			assert.Equal(t, tt.want, cfg.BackendConfigured())
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:                  "3000",
			LogLevel:              "info",
			RequestTimeout:        time.Second,
			AuthRateLimitRequests: 5,
			AuthRateLimitWindow:   time.Minute,
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Port = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.LogLevel = "loud"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.PostgresDSN = "postgres://localhost/impact"
	assert.Error(t, cfg.Validate(), "direct database still needs the identity provider")
}

func TestProductionDisablesDebug(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.Debug)
}

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.local")
	content := "# comment\nIMPACT_TEST_A=\"quoted\"\nexport IMPACT_TEST_B=plain\nIMPACT_TEST_C=from-file\nbroken-line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("IMPACT_TEST_C", "from-env")
	// t.Setenv restores these on cleanup; the loader only sets unset keys.
	t.Setenv("IMPACT_TEST_A", "")
	t.Setenv("IMPACT_TEST_B", "")
	os.Unsetenv("IMPACT_TEST_A")
	os.Unsetenv("IMPACT_TEST_B")

	loadEnvFile(path)

	assert.Equal(t, "quoted", os.Getenv("IMPACT_TEST_A"))
	assert.Equal(t, "plain", os.Getenv("IMPACT_TEST_B"))
	assert.Equal(t, "from-env", os.Getenv("IMPACT_TEST_C"))
}
