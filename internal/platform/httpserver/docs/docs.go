// Package docs provides the generated swagger document for the API server.
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
        "/api/v1/events": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Ingest a lifecycle event",
                "responses": {
                    "202": {"description": "Accepted"},
                    "400": {"description": "Bad Request"}
                }
            }
        },
        "/api/v1/segments/{segment_name}": {
            "get": {
                "produces": ["application/json"],
                "summary": "Evaluate a catalog segment",
                "parameters": [
                    {"type": "string", "name": "segment_name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/v1/deliveries": {
            "get": {
                "produces": ["application/json"],
                "summary": "List deliveries",
                "parameters": [
                    {"type": "string", "name": "user_id", "in": "query"},
                    {"type": "string", "name": "campaign_id", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/deliveries/{delivery_id}": {
            "get": {
                "produces": ["application/json"],
                "summary": "Get one delivery",
                "parameters": [
                    {"type": "string", "name": "delivery_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/r/{delivery_id}": {
            "get": {
                "summary": "Resolve a tracked click to its deep link",
                "parameters": [
                    {"type": "string", "name": "delivery_id", "in": "path", "required": true}
                ],
                "responses": {
                    "302": {"description": "Found"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/api/cron/run-campaigns": {
            "post": {
                "produces": ["application/json"],
                "summary": "Run one campaign scheduler pass",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/cron/send-email": {
            "post": {
                "produces": ["application/json"],
                "summary": "Drain queued email deliveries",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/api/cron/send-sms": {
            "post": {
                "produces": ["application/json"],
                "summary": "Drain queued SMS deliveries",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "EverReach Lifecycle Campaign Engine API",
	Description:      "Event ingestion, segment evaluation, campaign scheduling, and delivery tracking.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
