// Package docs registers the OpenAPI description served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/jobs": {
            "get": {
                "description": "List every job with its steps in execution order",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List jobs",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/handler.JobInfo"}}
                    }
                }
            }
        },
        "/jobs/{name}/runs": {
            "post": {
                "description": "Start the named job. Runs are asynchronous unless wait=true; only one run executes at a time.",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Trigger a run",
                "parameters": [
                    {"type": "string", "description": "Job name", "name": "name", "in": "path", "required": true},
                    {"type": "boolean", "description": "Block until the run finishes", "name": "wait", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Finished run (wait=true)", "schema": {"$ref": "#/definitions/handler.RunResponse"}},
                    "202": {"description": "Run accepted", "schema": {"$ref": "#/definitions/handler.RunResponse"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "409": {"description": "Another run is in progress or the output directory is locked", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs": {
            "get": {
                "description": "Newest runs first",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "parameters": [
                    {"type": "integer", "default": 100, "description": "Maximum number of runs", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Runs", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run and steps", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}/steps": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run steps",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Step progress", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}/errors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run errors",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run errors", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}/logs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run logs",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "default": 100, "description": "Maximum number of lines", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Run logs", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "handler.JobInfo": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "steps": {"type": "array", "items": {"$ref": "#/definitions/pipeline.PlannedStep"}}
            }
        },
        "handler.RunResponse": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "job": {"type": "string"},
                "status": {"type": "string"},
                "failed_step": {"type": "string"},
                "error_kind": {"type": "string"},
                "error": {"type": "string"},
                "steps": {"type": "array", "items": {"$ref": "#/definitions/pipeline.StepSummary"}}
            }
        },
        "pipeline.PlannedStep": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "upstreams": {"type": "array", "items": {"type": "string"}},
                "description": {"type": "string"}
            }
        },
        "pipeline.StepSummary": {
            "type": "object",
            "properties": {
                "step": {"type": "string"},
                "status": {"type": "string"},
                "rows": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "wiki-data-pipeline API",
	Description:      "Trigger page pipeline jobs and inspect their run history.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
