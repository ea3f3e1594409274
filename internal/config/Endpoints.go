package config

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryEndpoint selects the in-process simulated market instead of a remote adapter.
const MemoryEndpoint = "memory"

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// IntegratorEndpoints maps integrator handles to their JSON-RPC adapter URLs.
	IntegratorEndpoints map[string]string
	// IntegratorTimeout bounds every adapter call.
	IntegratorTimeout time.Duration
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	IntegratorEndpoints, err = parseEndpoints(getEnvOrDefault("INTEGRATOR_ENDPOINTS", ""))
	if err != nil {
		return err
	}

	IntegratorTimeout, err = getEnvAsDurationOrDefault("INTEGRATOR_TIMEOUT", 20*time.Second)
	if err != nil {
		return err
	}

	log.Debug().
		Int("Integrators", len(IntegratorEndpoints)).
		Dur("IntegratorTimeout", IntegratorTimeout).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// parseEndpoints reads "name=url,name=url".
func parseEndpoints(raw string) (map[string]string, error) {
	endpoints := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, ok := strings.Cut(entry, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, errors.New("INTEGRATOR_ENDPOINTS entry must look like name=url, got: " + entry)
		}
		if _, dup := endpoints[name]; dup {
			return nil, errors.New("INTEGRATOR_ENDPOINTS lists " + name + " twice")
		}
		endpoints[name] = url
	}
	return endpoints, nil
}
