package config

import (
	"time"
)

type MapsConfig struct {
	Provider       string        `yaml:"provider"`
	GoogleAPIKey   string        `yaml:"google_api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		Provider:       getEnv("MAPS_PROVIDER", "google"),
		GoogleAPIKey:   getEnv("GOOGLE_MAPS_API_KEY", ""),
		RequestTimeout: getEnvAsDuration("MAPS_REQUEST_TIMEOUT", 5*time.Second),
	}
}
