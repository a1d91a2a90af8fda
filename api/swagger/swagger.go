package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Attendance Session Engine API",
        "description": "Session lifecycle, rotating QR tokens and multi-channel attendance marking",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and identity"},
        {"name": "Sessions", "description": "Attendance session lifecycle"},
        {"name": "Attendance", "description": "Per-session attendance ledger"},
        {"name": "Biometric", "description": "Device scan ingestion and reconciliation"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Access token issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions": {
            "get": {
                "tags": ["Sessions"],
                "summary": "List attendance sessions",
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Sessions"],
                "summary": "Create attendance session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error"}
                }
            }
        },
        "/sessions/{id}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get session detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/sessions/{id}/start": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Start a scheduled session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Session activated"},
                    "409": {"description": "Not in a startable state"}
                }
            }
        },
        "/sessions/{id}/end": {
            "post": {
                "tags": ["Sessions"],
                "summary": "End an active session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Session completed, absences synthesized"},
                    "409": {"description": "Not active"}
                }
            }
        },
        "/sessions/{id}/cancel": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Cancel a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Session cancelled"},
                    "409": {"description": "Already finished"}
                }
            }
        },
        "/sessions/{id}/qr": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Get the current rotating QR token",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Current token"},
                    "409": {"description": "Session not active"}
                }
            }
        },
        "/sessions/{id}/statistics": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Session attendance statistics",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SessionStatistics"}}
                }
            }
        },
        "/sessions/{id}/export": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Export the session ledger",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Report file"}
                }
            }
        },
        "/sessions/{id}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List session attendance records",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Ledger in roster order"}
                }
            },
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkRequest"}}
                ],
                "responses": {
                    "200": {"description": "Standing record"},
                    "403": {"description": "Channel disabled or not enrolled"},
                    "409": {"description": "Session not active"}
                }
            }
        },
        "/sessions/{id}/scan": {
            "post": {
                "tags": ["Attendance"],
                "summary": "QR self-marking",
                "description": "Students mark themselves with the rotating QR token; no staff JWT needed",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkRequest"}}
                ],
                "responses": {
                    "200": {"description": "Standing record"},
                    "401": {"description": "Token expired or mismatched"}
                }
            }
        },
        "/sessions/{id}/attendance/excuse": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Excuse a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExcuseRequest"}}
                ],
                "responses": {
                    "200": {"description": "Record overwritten with EXCUSED"}
                }
            }
        },
        "/biometric/sync": {
            "post": {
                "tags": ["Biometric"],
                "summary": "Ingest a batch of biometric scans",
                "parameters": [
                    {"name": "X-Device-Key", "in": "header", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IngestRequest"}}
                ],
                "responses": {
                    "200": {"description": "Created/duplicate counts"},
                    "401": {"description": "Invalid device key"}
                }
            }
        },
        "/biometric/process": {
            "post": {
                "tags": ["Biometric"],
                "summary": "Run one reconciliation pass",
                "responses": {
                    "200": {"description": "Processed/unmatched counts"}
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
        "CreateSessionRequest": {
            "type": "object",
            "required": ["title", "session_type", "class_id", "scheduled_start", "scheduled_end"],
            "properties": {
                "title": {"type": "string"},
                "session_type": {"type": "string", "enum": ["CLASS", "EXAM", "BEDCHECK", "LAB", "OTHER"]},
                "class_id": {"type": "string"},
                "scheduled_start": {"type": "string", "format": "date-time"},
                "scheduled_end": {"type": "string", "format": "date-time"},
                "allow_late_minutes": {"type": "integer"},
                "qr_refresh_interval_seconds": {"type": "integer"},
                "enable_qr_scan": {"type": "boolean"},
                "enable_manual_marking": {"type": "boolean"},
                "enable_biometric": {"type": "boolean"},
                "require_location": {"type": "boolean"}
            }
        },
        "MarkRequest": {
            "type": "object",
            "required": ["student_id", "method"],
            "properties": {
                "student_id": {"type": "string"},
                "method": {"type": "string", "enum": ["QR_SCAN", "MANUAL", "ADMIN"]},
                "token": {"type": "string"}
            }
        },
        "ExcuseRequest": {
            "type": "object",
            "required": ["student_id", "reason"],
            "properties": {
                "student_id": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "IngestRequest": {
            "type": "object",
            "required": ["device_id", "scans"],
            "properties": {
                "device_id": {"type": "string"},
                "device_type": {"type": "string"},
                "scans": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "biometric_id": {"type": "string"},
                            "scan_time": {"type": "string", "format": "date-time"}
                        }
                    }
                }
            }
        },
        "SessionStatistics": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "total_students": {"type": "integer"},
                "present_count": {"type": "integer"},
                "late_count": {"type": "integer"},
                "absent_count": {"type": "integer"},
                "excused_count": {"type": "integer"},
                "qr_scan_count": {"type": "integer"},
                "manual_count": {"type": "integer"},
                "biometric_count": {"type": "integer"},
                "admin_count": {"type": "integer"},
                "attendance_rate": {"type": "number"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
