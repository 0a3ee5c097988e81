package model

import "github.com/raysh454/nexus/internal/forest"

// Config holds Manager settings.
type Config struct {
	// ArtifactPath is where the trained model is persisted and reloaded from.
	ArtifactPath string `json:"artifact_path"`

	// Params are the training parameters used when no artifact exists.
	Params forest.Params `json:"params"`
}

// DefaultConfig mirrors the reference deployment layout.
func DefaultConfig() Config {
	return Config{
		ArtifactPath: "models/threat_model.json",
		Params:       forest.DefaultParams(),
	}
}
