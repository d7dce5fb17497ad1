// Package api держит OpenAPI-описание HTTP API для Swagger UI.
package api

import _ "embed"

//go:embed openapi.json
var OpenAPISpec []byte
