package server

import (
	"github.com/raysh454/nexus/internal/app"
	"github.com/raysh454/nexus/internal/grc"
	"github.com/raysh454/nexus/internal/model"
)

// AssessRequest carries named GRC risk factors.
type AssessRequest struct {
	RiskFactors map[string]any `json:"risk_factors" swaggertype:"object,number" example:"access_control:2,patching:1.5"`
}

// AssessResponse mirrors grc.RiskAssessment on the wire.
type AssessResponse = grc.RiskAssessment

// StartScanJobRequest lists local paths to analyze in one job.
type StartScanJobRequest struct {
	Paths []string `json:"paths" example:"/srv/uploads/a.bin"`
}

// ImportDatasetResponse reports how many samples were stored, and how many
// the dataset holds afterwards.
type ImportDatasetResponse struct {
	Imported int `json:"imported" example:"42"`
	Total    int `json:"total" example:"1042"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status  string            `json:"status" example:"ok"`
	Model   model.Info        `json:"model"`
	Dataset app.DatasetStatus `json:"dataset"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"dataset error: threat_samples is empty"`
	Kind  string `json:"kind,omitempty" example:"dataset"`
}
