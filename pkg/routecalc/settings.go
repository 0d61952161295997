// Package routecalc implements the Route Calculator application handler:
// it geocodes a home and an office address through Nominatim and computes
// the driving distance between them through OpenRouteService.
package routecalc

import (
	"os"
	"strings"
)

// AppName is the service name reported by the health endpoint
const AppName = "Route Calculator API"

// Settings holds the application configuration, loaded once at startup
type Settings struct {
	// NominatimURL is the base URL of the Nominatim geocoder
	NominatimURL string

	// ORSURL is the base URL of the OpenRouteService instance
	ORSURL string

	// ORSAPIKey is sent as Authorization header when set
	ORSAPIKey string

	// Debug enables verbose logging
	Debug bool
}

// SettingsFromEnv loads settings from the environment with defaults
func SettingsFromEnv() *Settings {
	s := &Settings{
		NominatimURL: "http://nominatim:8080",
		ORSURL:       "http://openrouteservice:8080",
	}

	if v := os.Getenv("NOMINATIM_URL"); v != "" {
		s.NominatimURL = v
	}
	if v := os.Getenv("ORS_URL"); v != "" {
		s.ORSURL = v
	}
	if v := os.Getenv("ORS_API_KEY"); v != "" {
		s.ORSAPIKey = v
	}
	s.Debug = strings.EqualFold(os.Getenv("DEBUG"), "true")

	return s
}
