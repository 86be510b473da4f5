package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the API description.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>usersync - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "usersync", "version": "v0.1.0" },
  "components": { "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } } },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/v1/tokens/{userId}": {
      "put": { "summary": "Store a login's token payload", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"access_token":{"type":"string"},"refresh_token":{"type":"string"},"id_token":{"type":"string"},"expires_in":{"type":"integer"},"keycloak_id":{"type":"string"}}}}}}, "responses": { "204": { "description": "stored" } } },
      "get": { "summary": "Report whether usable or refreshable tokens exist", "responses": { "200": { "description": "validity" } } },
      "delete": { "summary": "Forget the user's tokens", "responses": { "204": { "description": "cleared" } } }
    },
    "/api/v1/tokens/{userId}/access": {
      "get": { "summary": "Get a valid access token, refreshing when expired", "description": "Served only when API authentication is enabled. Callers need the API_SERVICE_ROLE role or a subject equal to the record's keycloak_id.", "responses": { "200": { "description": "access token" }, "401": { "description": "refresh rejected by Keycloak" }, "403": { "description": "caller is neither the owner nor a service client" }, "404": { "description": "no token" } } }
    },
    "/api/v1/tokens/introspect": {
      "post": { "summary": "Introspect a token at Keycloak", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"token":{"type":"string"}}}}}}, "responses": { "200": { "description": "claims or {active:false}" } } }
    },
    "/api/v1/sync": {
      "post": { "summary": "Store tokens and sync a user after login", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"provider_user":{"type":"object"},"local_user":{"type":"object"},"tokens":{"type":"object"}}}}}}, "responses": { "202": { "description": "accepted" }, "400": { "description": "missing ids" }, "403": { "description": "registration disabled" }, "502": { "description": "User Service error" } } }
    },
    "/api/v1/sync/direct": {
      "post": { "summary": "Upsert mapped user data now", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"local_user_id":{"type":"string"},"provider_subject":{"type":"string"},"data":{"type":"object"}}}}}}, "responses": { "200": { "description": "synced" } } }
    },
    "/api/v1/directory/{userId}/subjects/{subject}": {
      "get": { "summary": "Find a User Service record by Keycloak subject", "responses": { "200": { "description": "user" }, "404": { "description": "not found" } } }
    },
    "/api/v1/directory/{userId}/users/{remoteId}": {
      "get": { "summary": "Get a User Service record", "responses": { "200": { "description": "user" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a User Service record", "responses": { "204": { "description": "deleted" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
