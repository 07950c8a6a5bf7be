package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileValidate(t *testing.T) {
	t.Run("InvalidModeFallsBackToDemo", func(t *testing.T) {
		p := &Profile{Mode: "bogus", Data: t.TempDir(), Driver: "sqlite"}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("SQLiteDSNDerivedFromDataDir", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "dev", Data: dir, Driver: "sqlite"}
		require.NoError(t, p.Validate())
		assert.Contains(t, p.DSN, "subpilot_dev.db")
	})

	t.Run("ExplicitDSNPreserved", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "postgres", DSN: "postgresql://u:p@localhost/subpilot"}
		require.NoError(t, p.Validate())
		assert.Equal(t, "postgresql://u:p@localhost/subpilot", p.DSN)
	})
}

func TestProfileFromEnv(t *testing.T) {
	t.Setenv("SUBPILOT_AI_ENABLED", "true")
	t.Setenv("SUBPILOT_AI_API_KEY", "sk-test")
	t.Setenv("SUBPILOT_JWT_SECRET", "secret")

	p := &Profile{}
	p.FromEnv()

	assert.True(t, p.IsAIEnabled())
	assert.Equal(t, "https://api.openai.com/v1", p.AIBaseURL)
	assert.Equal(t, "gpt-4o-mini", p.AIModel)
	assert.Equal(t, "secret", p.JWTSecret)
	assert.Equal(t, 48, p.ExpirationHours)
	assert.Equal(t, 200, p.AnalysisSample)
}

func TestIsDev(t *testing.T) {
	assert.True(t, (&Profile{Mode: "dev"}).IsDev())
	assert.True(t, (&Profile{Mode: "demo"}).IsDev())
	assert.False(t, (&Profile{Mode: "prod"}).IsDev())
}
