package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Security scheme names used in the generated document.
const (
	SchemeSession = "sessionCookie"
	SchemeBearer  = "bearerAuth"
)

// GenerateAdminSpec builds the OpenAPI 3.1 document describing the admin API
// and the MCP endpoint.
func GenerateAdminSpec(version, baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "toolgate API",
			Description: "Admin console API and authenticated MCP endpoint.",
			Version:     version,
		},
		Paths: openapi3.NewPaths(),
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		SchemeSession: &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:        "apiKey",
				In:          "cookie",
				Name:        "session_id",
				Description: "Admin session set by POST /api/auth/login.",
			},
		},
		SchemeBearer: &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "mcp_ token",
				Description:  "API token issued by POST /api/tokens.",
			},
		},
	}
	doc.Components = &components

	adminOnly := openapi3.SecurityRequirements{{SchemeSession: {}}}
	anyAuth := openapi3.SecurityRequirements{{SchemeSession: {}}, {SchemeBearer: {}}}
	public := openapi3.SecurityRequirements{}

	// ----- Auth -----

	doc.Paths.Set("/api/auth/login", &openapi3.PathItem{
		Post: operation("auth", "login", "Log in as the admin", &public,
			jsonBody("LoginRequest"),
			newResponses("200", "Logged in; the session cookie is set", ref("SessionInfo"), "401", "429")),
	})
	doc.Paths.Set("/api/auth/logout", &openapi3.PathItem{
		Post: operation("auth", "logout", "End the current session", &public, nil,
			newResponses("200", "Logged out; the session cookie is cleared", ref("Success"))),
	})
	doc.Paths.Set("/api/auth/change-password", &openapi3.PathItem{
		Post: operation("auth", "changePassword", "Change the admin password", &adminOnly,
			jsonBody("ChangePasswordRequest"),
			newResponses("200", "Password changed; other sessions ended", ref("Success"), "400", "401")),
	})
	doc.Paths.Set("/api/auth/session", &openapi3.PathItem{
		Get: operation("auth", "getSession", "Describe the current session", &adminOnly, nil,
			newResponses("200", "Current session", ref("SessionInfo"), "401")),
	})

	// ----- Tokens -----

	doc.Paths.Set("/api/tokens", &openapi3.PathItem{
		Get: operation("tokens", "listTokens", "List API tokens, newest first", &adminOnly, nil,
			newResponses("200", "Tokens", listOf("APIToken"), "401", "403")),
		Post: operation("tokens", "createToken", "Issue an API token", &adminOnly,
			jsonBody("CreateTokenRequest"),
			newResponses("201", "Issued token; the raw value is shown only once", ref("IssuedToken"), "400", "401", "403")),
	})
	doc.Paths.Set("/api/tokens/{id}", &openapi3.PathItem{
		Delete: withParams(
			operation("tokens", "revokeToken", "Revoke an API token", &adminOnly, nil,
				newResponses("200", "Revoked", ref("Success"), "401", "403", "404")),
			pathParam("id", "Token ID")),
	})

	// ----- Request log -----

	doc.Paths.Set("/api/logs", &openapi3.PathItem{
		Get: withParams(
			operation("logs", "listLogs", "List recorded requests, newest first", &adminOnly, nil,
				newResponses("200", "Request log page", ref("RequestLogList"), "401", "403")),
			queryParam("limit", "integer", "Page size, at most 200"),
			queryParam("offset", "integer", "Records to skip"),
			queryParam("type", "string", "api or mcp"),
			queryParam("method", "string", "HTTP method"),
			queryParam("path", "string", "Substring of the request path")),
		Delete: operation("logs", "clearLogs", "Delete every recorded request", &adminOnly, nil,
			newResponses("200", "Cleared", ref("Success"), "401", "403")),
	})
	doc.Paths.Set("/api/logs/{id}", &openapi3.PathItem{
		Get: withParams(
			operation("logs", "getLog", "Get one recorded request", &adminOnly, nil,
				newResponses("200", "Request log entry", ref("RequestLog"), "401", "403", "404")),
			pathParam("id", "Log entry ID")),
	})

	// ----- Tools -----

	doc.Paths.Set("/api/tools", &openapi3.PathItem{
		Get: operation("tools", "listTools", "List the MCP tools", &adminOnly, nil,
			newResponses("200", "Tools", listOf("Tool"), "401", "403")),
	})
	doc.Paths.Set("/api/call", &openapi3.PathItem{
		Post: operation("tools", "callTool", "Invoke a tool from the admin console", &adminOnly,
			jsonBody("ToolCallRequest"),
			newResponses("200", "Tool result", ref("ToolCallResponse"), "400", "401", "403", "404")),
	})

	// ----- MCP -----

	doc.Paths.Set("/mcp", &openapi3.PathItem{
		Post: operation("mcp", "mcpRequest",
			"MCP streamable HTTP endpoint (JSON-RPC 2.0). Accepts an admin session or a bearer token.",
			&anyAuth, nil,
			newResponses("200", "JSON-RPC response or event stream", &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"object"}},
			}, "401")),
	})

	// ----- Probes -----

	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: operation("system", "healthz", "Liveness probe", &public, nil,
			newResponses("200", "Alive", &openapi3.SchemaRef{Value: objectSchema(openapi3.Schemas{
				"status": stringProp(),
			})})),
	})

	return doc
}

func componentSchemas() openapi3.Schemas {
	return openapi3.Schemas{
		"ErrorResponse": {Value: objectSchema(openapi3.Schemas{
			"error": {Value: objectSchema(openapi3.Schemas{
				"code":    {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
				"message": stringProp(),
			}, "code", "message")},
		}, "error")},
		"Success": {Value: objectSchema(openapi3.Schemas{
			"success": boolProp(),
			"message": stringProp(),
		}, "success")},
		"LoginRequest": {Value: objectSchema(openapi3.Schemas{
			"username": stringProp(),
			"password": {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "password"}},
		}, "username", "password")},
		"ChangePasswordRequest": {Value: objectSchema(openapi3.Schemas{
			"old_password": {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "password"}},
			"new_password": {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "password", MinLength: 8}},
		}, "old_password", "new_password")},
		"SessionInfo": {Value: objectSchema(openapi3.Schemas{
			"username":   stringProp(),
			"created_at": dateTimeProp(),
			"expires_at": dateTimeProp(),
		})},
		"CreateTokenRequest": {Value: objectSchema(openapi3.Schemas{
			"label": {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, MaxLength: openapi3.Uint64Ptr(100)}},
		}, "label")},
		"APIToken": {Value: objectSchema(openapi3.Schemas{
			"id":         stringProp(),
			"prefix":     stringProp(),
			"label":      stringProp(),
			"created_at": dateTimeProp(),
			"revoked":    boolProp(),
		})},
		"IssuedToken": {Value: objectSchema(openapi3.Schemas{
			"token":      stringProp(),
			"id":         stringProp(),
			"prefix":     stringProp(),
			"label":      stringProp(),
			"created_at": dateTimeProp(),
		}, "token", "id")},
		"RequestLog": {Value: objectSchema(openapi3.Schemas{
			"id":          stringProp(),
			"timestamp":   dateTimeProp(),
			"type":        stringProp(),
			"method":      stringProp(),
			"path":        stringProp(),
			"status":      intProp(),
			"duration_ms": intProp(),
			"client_ip":   stringProp(),
			"user_agent":  stringProp(),
			"principal":   stringProp(),
			"request_id":  stringProp(),
		})},
		"RequestLogList": {Value: objectSchema(openapi3.Schemas{
			"resource": {Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: ref("RequestLog")}},
			"meta":     metaSchema(),
			"stats": {Value: objectSchema(openapi3.Schemas{
				"total":     intProp(),
				"errors":    intProp(),
				"last_24h":  intProp(),
				"by_type":   {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
				"by_method": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			})},
		})},
		"Tool": {Value: objectSchema(openapi3.Schemas{
			"name":         stringProp(),
			"description":  stringProp(),
			"input_schema": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
		})},
		"ToolCallRequest": {Value: objectSchema(openapi3.Schemas{
			"tool":   stringProp(),
			"params": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
		}, "tool")},
		"ToolCallResponse": {Value: objectSchema(openapi3.Schemas{
			"success": boolProp(),
			"result":  {Value: &openapi3.Schema{}},
			"error":   stringProp(),
		}, "success")},
	}
}

// ─── Operation Builders ─────────────────────────────────────────────────────

func operation(tag, id, summary string, security *openapi3.SecurityRequirements, body *openapi3.RequestBodyRef, responses *openapi3.Responses) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     summary,
		OperationID: id,
		Security:    security,
		RequestBody: body,
		Responses:   responses,
	}
}

func withParams(op *openapi3.Operation, params ...*openapi3.Parameter) *openapi3.Operation {
	for _, p := range params {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{Value: p})
	}
	return op
}

func pathParam(name, description string) *openapi3.Parameter {
	return openapi3.NewPathParameter(name).
		WithDescription(description).
		WithSchema(openapi3.NewStringSchema())
}

func queryParam(name, typ, description string) *openapi3.Parameter {
	schema := openapi3.NewStringSchema()
	if typ == "integer" {
		schema = openapi3.NewIntegerSchema()
	}
	return openapi3.NewQueryParameter(name).
		WithDescription(description).
		WithSchema(schema)
}

func jsonBody(schemaName string) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(ref(schemaName)),
	}
}

// newResponses builds a Responses map with a success response and the listed
// error statuses, all sharing the ErrorResponse schema.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef, errorCodes ...string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := ref("ErrorResponse")
	for _, code := range errorCodes {
		desc := errorDescriptions[code]
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

var errorDescriptions = map[string]string{
	"400": "Bad request",
	"401": "Authentication required or credentials invalid",
	"403": "Admin session required",
	"404": "Not found",
	"429": "Too many attempts",
}

// ─── Schema Helpers ─────────────────────────────────────────────────────────

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func listOf(name string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: objectSchema(openapi3.Schemas{
		"resource": {Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: ref(name)}},
		"meta":     metaSchema(),
	})}
}

func objectSchema(props openapi3.Schemas, required ...string) *openapi3.Schema {
	return &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}
}

func stringProp() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}

func boolProp() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
}

func intProp() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}
}

func dateTimeProp() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}}
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: objectSchema(openapi3.Schemas{
		"count":  intProp(),
		"limit":  intProp(),
		"offset": intProp(),
	})}
}
