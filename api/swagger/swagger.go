package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "OSIS Score Encoding API",
        "description": "Score encoding and deliberation subsystem",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Sessions", "description": "Session-exam calendar"},
        {"name": "Encodings", "description": "Score encoding batches, uploads and submission"},
        {"name": "Score Sheets", "description": "Printable score sheet assembly"},
        {"name": "Addresses", "description": "Per-offer score sheet addresses"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and obtain a token pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the caller's refresh token",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Logged out"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Return the authenticated principal",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List the session calendar of the academic year",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "number", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/current": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Resolve the open encoding session",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/encodings": {
            "get": {
                "tags": ["Encodings"],
                "summary": "List the caller's exam enrolments for the open session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "learningUnit", "in": "query", "type": "string"},
                    {"name": "offer", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Encodings"],
                "summary": "Apply a batch of score change proposals",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EncodeRequest"}}
                ],
                "responses": {
                    "200": {"description": "Batch result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No encoding period open", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/encodings/progress": {
            "get": {
                "tags": ["Encodings"],
                "summary": "Encoding progress per offer and learning unit",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "learningUnit", "in": "query", "type": "string"},
                    {"name": "offer", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/encodings/submit": {
            "post": {
                "tags": ["Encodings"],
                "summary": "Promote the learning unit's draft scores to final",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitRequest"}}
                ],
                "responses": {
                    "200": {"description": "Submission report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/encodings/double": {
            "post": {
                "tags": ["Encodings"],
                "summary": "Validate double-encoded values against the stored drafts",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EncodeRequest"}}
                ],
                "responses": {
                    "200": {"description": "Batch result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/encodings/upload": {
            "post": {
                "tags": ["Encodings"],
                "summary": "Ingest a filled score sheet",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true}
                ],
                "responses": {
                    "200": {"description": "Upload report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/encodings/template": {
            "get": {
                "tags": ["Encodings"],
                "summary": "Download the blank score sheet for the caller's scope",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "learningUnit", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV content"}
                }
            }
        },
        "/score-sheets": {
            "get": {
                "tags": ["Score Sheets"],
                "summary": "Assemble the caller's score sheets",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/score-sheets/pdf": {
            "get": {
                "tags": ["Score Sheets"],
                "summary": "Render the caller's score sheets as PDF",
                "security": [{"BearerAuth": []}],
                "produces": ["application/pdf"],
                "responses": {
                    "200": {"description": "PDF content"}
                }
            }
        },
        "/offers/{acronym}/score-sheet-address": {
            "get": {
                "tags": ["Addresses"],
                "summary": "Read the offer's score sheet address and field constraints",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "acronym", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Addresses"],
                "summary": "Replace the offer's score sheet address",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "acronym", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScoreSheetAddressRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Constraint violation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RefreshRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "ChangeProposal": {
            "type": "object",
            "required": ["enrolment_id", "field"],
            "properties": {
                "enrolment_id": {"type": "string"},
                "field": {"type": "string", "enum": ["score", "justification"]},
                "layer": {"type": "string", "enum": ["draft", "final"]},
                "new_value": {"type": "string"},
                "changed": {"type": "boolean"}
            }
        },
        "EncodeRequest": {
            "type": "object",
            "required": ["proposals"],
            "properties": {
                "proposals": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ChangeProposal"}
                }
            }
        },
        "SubmitRequest": {
            "type": "object",
            "required": ["learning_unit_acronym"],
            "properties": {
                "learning_unit_acronym": {"type": "string"}
            }
        },
        "ScoreSheetAddressRequest": {
            "type": "object",
            "required": ["mode"],
            "properties": {
                "mode": {"type": "string", "enum": ["ENTITY", "CUSTOM"]},
                "entity_address_choice": {"type": "string"},
                "recipient": {"type": "string"},
                "location": {"type": "string"},
                "postal_code": {"type": "string"},
                "city": {"type": "string"},
                "country": {"type": "string"},
                "phone": {"type": "string"},
                "fax": {"type": "string"},
                "email": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
