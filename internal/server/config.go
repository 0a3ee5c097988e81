package server

import (
	"github.com/raysh454/nexus/internal/app"
	"github.com/raysh454/nexus/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server (the CLI
	// commands other than serve use the orchestrator in-process).
	ListenAddr string

	// AppConfig configures the orchestrator built by NewServer.
	AppConfig *app.Config

	// Deps replaces orchestrator collaborators, mainly in tests.
	Deps app.Deps

	Logger logging.Logger
}
