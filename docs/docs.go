// Package docs holds the Swagger description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/user/signup": {"post": {"tags": ["auth"], "summary": "Register a user", "responses": {"201": {"description": "Created"}, "409": {"description": "Email already exists"}}}},
        "/user/signin": {"post": {"tags": ["auth"], "summary": "Sign in a user", "responses": {"200": {"description": "OK"}, "401": {"description": "Invalid credentials"}}}},
        "/admin/signup": {"post": {"tags": ["auth"], "summary": "Register an admin", "responses": {"201": {"description": "Created"}}}},
        "/admin/login": {"post": {"tags": ["auth"], "summary": "Sign in an admin", "responses": {"200": {"description": "OK"}}}},
        "/auth/logout": {"post": {"tags": ["auth"], "summary": "Logout", "responses": {"200": {"description": "OK"}}}},
        "/user/profile": {"get": {"tags": ["auth"], "summary": "Get profile", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/account/balance": {"get": {"tags": ["account"], "summary": "Get balance", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Account not found"}}}},
        "/account/transfer": {"post": {"tags": ["account"], "summary": "Transfer funds", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid amount or insufficient funds"}, "404": {"description": "Recipient not found"}, "409": {"description": "Retry"}}}},
        "/account/pay-fees": {"post": {"tags": ["account"], "summary": "Pay fees", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid amount or insufficient funds"}, "503": {"description": "No fee admin configured"}}}},
        "/account/approve-fees/{transactionId}": {"post": {"tags": ["admin"], "summary": "Approve a fee payment", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}, "409": {"description": "Already approved"}}}},
        "/account/transactions": {"get": {"tags": ["account"], "summary": "List transactions", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/account/payment-status": {"get": {"tags": ["account"], "summary": "Fee payment status", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/account/statement": {"get": {"tags": ["account"], "summary": "Account statement", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/account/fees/{transactionId}/advice": {"get": {"tags": ["account"], "summary": "Fee settlement advice", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}}},
        "/account/fees/{transactionId}/receipt.png": {"get": {"tags": ["receipts"], "summary": "Fee receipt QR code", "produces": ["image/png"], "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/receipts/verify": {"post": {"tags": ["receipts"], "summary": "Verify a receipt", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown receipt"}}}},
        "/receipts/public-key": {"get": {"tags": ["receipts"], "summary": "Receipt signing key", "produces": ["text/plain"], "responses": {"200": {"description": "PEM encoded public key"}, "404": {"description": "Receipt signing is disabled"}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Campus Fee Payments API",
	Description:      "Account ledger and fee settlement for campus payments",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
