package core

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		orig, had := os.LookupEnv(k)
		require.NoError(t, os.Setenv(k, v))
		k := k
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(k, orig)
			} else {
				_ = os.Unsetenv(k)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setEnv(t, map[string]string{"ENV": ""})
		conf, err := NewConfig()
		require.NoError(t, err)
		assert.Equal(t, "DEV", conf.Env)
		assert.True(t, conf.Debug)
		assert.False(t, conf.TestMode)
		assert.Equal(t, "st.ovgu.de", conf.EmailDomain)
		assert.True(t, conf.ProfileExtended)
		assert.Equal(t, "noreply@localhost", conf.DefaultFromEmail.Address)
		assert.Equal(t, 15*time.Minute, conf.Server.JWTExpirationDelta)
		assert.Equal(t, "localhost:5432", conf.Database.Address())
	})

	t.Run("prefixed variables", func(t *testing.T) {
		setEnv(t, map[string]string{
			"ENV":                  "test",
			"TEST_PROFILEEXTENDED": "false",
			"TEST_EMAILDOMAIN":     "ovgu.de",
			"TEST_FRONTENDBASEURL": "https://klubhaus.example/",
			"TEST_DB_NAME":         "klubhaus_test",
			"DEV_DB_NAME":          "ignored",
		})
		conf, err := NewConfig()
		require.NoError(t, err)
		assert.Equal(t, "TEST", conf.Env)
		assert.True(t, conf.TestMode)
		assert.False(t, conf.ProfileExtended)
		assert.Equal(t, "ovgu.de", conf.EmailDomain)
		assert.Equal(t, "https://klubhaus.example", conf.FrontendBaseURL)
		assert.Equal(t, "klubhaus_test", conf.Database.Name)
	})

	t.Run("sendgrid key required in production", func(t *testing.T) {
		setEnv(t, map[string]string{"ENV": "prod", "PROD_DEBUG": "false"})
		_, err := NewConfig()
		assert.Error(t, err)
	})

	t.Run("bad sender", func(t *testing.T) {
		setEnv(t, map[string]string{"ENV": "dev", "DEV_DEFAULTFROMEMAIL": "lol"})
		_, err := NewConfig()
		assert.Error(t, err)
	})
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Anna", CleanString("  Anna\t"))
	assert.Equal(t, "anna@st.ovgu.de", CleanString(" ANNA@st.ovgu.de ", true))
	assert.Equal(t, "+491701", StripSpaces(" +49 170\t1 "))
}
