package routecalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsFromEnvDefaults(t *testing.T) {
	t.Setenv("NOMINATIM_URL", "")
	t.Setenv("ORS_URL", "")
	t.Setenv("ORS_API_KEY", "")
	t.Setenv("DEBUG", "")

	s := SettingsFromEnv()
	assert.Equal(t, "http://nominatim:8080", s.NominatimURL)
	assert.Equal(t, "http://openrouteservice:8080", s.ORSURL)
	assert.Empty(t, s.ORSAPIKey)
	assert.False(t, s.Debug)
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("NOMINATIM_URL", "http://geo.internal:9000")
	t.Setenv("ORS_URL", "http://ors.internal:9000")
	t.Setenv("ORS_API_KEY", "secret")
	t.Setenv("DEBUG", "TRUE")

	s := SettingsFromEnv()
	assert.Equal(t, "http://geo.internal:9000", s.NominatimURL)
	assert.Equal(t, "http://ors.internal:9000", s.ORSURL)
	assert.Equal(t, "secret", s.ORSAPIKey)
	assert.True(t, s.Debug)
}
