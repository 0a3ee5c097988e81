// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with `go generate ./internal/server` after changing annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Nexus Maintainers",
            "url": "https://github.com/raysh454/nexus"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/analyze": {
            "post": {
                "consumes": ["application/octet-stream"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Analyze content",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/scorer.ThreatVerdict"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/grc/assess": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["grc"],
                "summary": "Assess GRC risk",
                "parameters": [
                    {"description": "Risk factors", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.AssessRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/grc.RiskAssessment"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/quickscan": {
            "post": {
                "consumes": ["application/octet-stream"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Signature quick scan",
                "parameters": [
                    {"type": "string", "description": "Name reported back", "name": "name", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/quickscan.Report"}}}
            }
        },
        "/logs/scan": {
            "post": {
                "consumes": ["text/plain"],
                "produces": ["application/json"],
                "tags": ["forensics"],
                "summary": "Scan log lines",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/logscan.Report"}}}
            }
        },
        "/model": {
            "get": {
                "produces": ["application/json"],
                "tags": ["model"],
                "summary": "Model state",
                "parameters": [
                    {"type": "boolean", "description": "Load or train the model first", "name": "load", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Info"}}}
            }
        },
        "/model/train": {
            "post": {
                "produces": ["application/json"],
                "tags": ["model"],
                "summary": "Retrain the model",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Info"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/model/reload": {
            "post": {
                "produces": ["application/json"],
                "tags": ["model"],
                "summary": "Reload the model artifact",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Info"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["operations"],
                "summary": "Health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/server.HealthResponse"}}
                }
            }
        },
        "/dataset/import": {
            "post": {
                "consumes": ["text/plain"],
                "produces": ["application/json"],
                "tags": ["model"],
                "summary": "Import labeled samples",
                "parameters": [
                    {"type": "string", "description": "Provenance label", "name": "source", "in": "query"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/server.ImportDatasetResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List jobs",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/app.Job"}}}}
            }
        },
        "/jobs/scan": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Start a scan job",
                "parameters": [
                    {"description": "Paths", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.StartScanJobRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/jobs/{jobID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get a job",
                "parameters": [{"type": "string", "description": "Job ID", "name": "jobID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.Job"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["jobs"],
                "summary": "Cancel a job",
                "parameters": [{"type": "string", "description": "Job ID", "name": "jobID", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        }
    },
    "definitions": {
        "features.FeatureVector": {
            "type": "object",
            "properties": {
                "file_size": {"type": "integer"},
                "entropy": {"type": "number"},
                "suspicious_count": {"type": "integer"}
            }
        },
        "scorer.ThreatVerdict": {
            "type": "object",
            "properties": {
                "features": {"$ref": "#/definitions/features.FeatureVector"},
                "prediction": {"type": "string", "enum": ["Malware", "Benign"]},
                "threat_score": {"type": "integer"},
                "confidence": {"type": "number"}
            }
        },
        "grc.RiskAssessment": {
            "type": "object",
            "properties": {
                "risk_score": {"type": "number"},
                "risk_level": {"type": "string", "enum": ["Low", "Medium", "High", "Critical"]},
                "recommendations": {"type": "array", "items": {"type": "string"}}
            }
        },
        "quickscan.Report": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "size": {"type": "integer"},
                "sha256": {"type": "string"},
                "matched": {"type": "array", "items": {"type": "string"}},
                "threat_score": {"type": "integer"},
                "alert": {"type": "boolean"}
            }
        },
        "logscan.Report": {
            "type": "object",
            "properties": {
                "lines": {"type": "integer"},
                "suspicious": {"type": "integer"},
                "high_risk": {"type": "boolean"},
                "alerts": {"type": "array", "items": {"type": "string"}}
            }
        },
        "model.Info": {
            "type": "object",
            "properties": {
                "loaded": {"type": "boolean"},
                "origin": {"type": "string", "enum": ["loaded", "trained"]},
                "artifact_path": {"type": "string"},
                "trees": {"type": "integer"},
                "samples": {"type": "integer"},
                "ready_at": {"type": "string"}
            }
        },
        "app.FileResult": {
            "type": "object",
            "properties": {
                "path": {"type": "string"},
                "verdict": {"$ref": "#/definitions/scorer.ThreatVerdict"},
                "error": {"type": "string"}
            }
        },
        "app.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "running", "done", "failed", "canceled"]},
                "error": {"type": "string"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"},
                "total": {"type": "integer"},
                "processed": {"type": "integer"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/app.FileResult"}}
            }
        },
        "server.AssessRequest": {
            "type": "object",
            "properties": {
                "risk_factors": {"type": "object", "additionalProperties": {"type": "number"}}
            }
        },
        "server.StartScanJobRequest": {
            "type": "object",
            "properties": {
                "paths": {"type": "array", "items": {"type": "string"}}
            }
        },
        "server.ImportDatasetResponse": {
            "type": "object",
            "properties": {"imported": {"type": "integer"}, "total": {"type": "integer"}}
        },
        "server.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "model": {"$ref": "#/definitions/model.Info"},
                "dataset": {
                    "type": "object",
                    "properties": {
                        "driver": {"type": "string"},
                        "path": {"type": "string"},
                        "samples": {"type": "integer"}
                    }
                }
            }
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "kind": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Nexus API",
	Description:      "File threat scoring, GRC risk aggregation and scan jobs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
