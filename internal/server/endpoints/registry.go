package endpoints

import (
	"github.com/formfill/formfill/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	LLMEnabled bool
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{LLMEnabled: cfg.LLMEnabled},

		// Template endpoints
		&ListTemplatesEndpoint{},

		// Processing endpoints
		&ProcessEndpoint{},
		&ProcessReturnEndpoint{},
	}
}
