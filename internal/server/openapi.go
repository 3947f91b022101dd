package server

import (
	"encoding/json"
	"net/http"
	"path"
	"reflect"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

const apiDescription = `Shared daily task board.

Unlock with POST /gate/unlock and send the returned token as
Authorization: Bearer <token>, or send the passphrase itself in the
X-Board-Passphrase header. The gate keeps casual visitors out; it is not a
security control.`

// documentAPI finishes the generated document once every operation is
// registered: one error response shape everywhere, and the gate's two
// credentials on every path the gate guards.
func documentAPI(oas *huma.OpenAPI, basePath string) {
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.Schemas == nil {
		oas.Components.Schemas = huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer)
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	oas.Components.SecuritySchemes["passphrase"] = &huma.SecurityScheme{Type: "apiKey", In: "header", Name: passphraseHeader}
	gated := []map[string][]string{{"bearerAuth": {}}, {"passphrase": {}}}
	oas.Security = gated

	errorResponse := &huma.Response{
		Description: "Error",
		Content: map[string]*huma.MediaType{
			"application/json": {Schema: oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")},
		},
	}
	open := openPaths(basePath)
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Post, item.Put, item.Patch, item.Delete} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = errorResponse
			if open[route] {
				op.Security = []map[string][]string{}
			} else {
				op.Security = gated
			}
		}
	}
}

// serveOpenAPI publishes the finished document under the base path, next
// to the API it describes.
func serveOpenAPI(r chi.Router, oas *huma.OpenAPI, basePath string) error {
	doc, err := json.Marshal(oas)
	if err != nil {
		return err
	}
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	})
	return nil
}
