package main

import (
	"github.com/formfill/formfill/internal/api"
	"github.com/formfill/formfill/internal/server/endpoints"
)

var serverURL string

func getServerURL() string {
	return serverURL
}

func init() {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		registry.Register(ep)
	}

	apiCmd := registry.BuildCommands(getServerURL)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8090", "formfill server URL",
	)

	rootCmd.AddCommand(apiCmd)
}
