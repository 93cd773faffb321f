/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

const baseResponseRef = "#/components/schemas/BaseResponse"

type OpenAPIDocument struct {
	OpenAPI    string                                 `json:"openapi" yaml:"openapi"`
	Info       OpenAPIInfo                            `json:"info" yaml:"info"`
	Servers    []OpenAPIServer                        `json:"servers" yaml:"servers"`
	Tags       []OpenAPITag                           `json:"tags" yaml:"tags"`
	Paths      map[string]map[string]OpenAPIOperation `json:"paths" yaml:"paths"`
	Components OpenAPIComponents                      `json:"components" yaml:"components"`
}

type OpenAPIInfo struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string `json:"version" yaml:"version"`
}

type OpenAPIServer struct {
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type OpenAPITag struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type OpenAPIOperation struct {
	Summary     string                     `json:"summary,omitempty" yaml:"summary,omitempty"`
	Description string                     `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string                   `json:"tags,omitempty" yaml:"tags,omitempty"`
	OperationID string                     `json:"operationId,omitempty" yaml:"operationId,omitempty"`
	Parameters  []OpenAPIParameter         `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Responses   map[string]OpenAPIResponse `json:"responses" yaml:"responses"`
}

type OpenAPIParameter struct {
	Name     string  `json:"name" yaml:"name"`
	In       string  `json:"in" yaml:"in"`
	Required bool    `json:"required" yaml:"required"`
	Schema   *Schema `json:"schema" yaml:"schema"`
}

type OpenAPIResponse struct {
	Description string                      `json:"description" yaml:"description"`
	Content     map[string]OpenAPIMediaType `json:"content,omitempty" yaml:"content,omitempty"`
}

type OpenAPIMediaType struct {
	Schema *Schema `json:"schema" yaml:"schema"`
}

type OpenAPIComponents struct {
	Schemas map[string]*Schema `json:"schemas" yaml:"schemas"`
}

// Schema is the subset of JSON Schema used by the generated document.
type Schema struct {
	Reference   string             `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Type        string             `json:"type,omitempty" yaml:"type,omitempty"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty" yaml:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty" yaml:"enum,omitempty"`
	AllOf       []*Schema          `json:"allOf,omitempty" yaml:"allOf,omitempty"`
	Example     any                `json:"example,omitempty" yaml:"example,omitempty"`
}

// RouteDoc documents one route. A response without Data is rendered as the
// bare BaseResponse envelope; with Data, as BaseResponse allOf a data property.
type RouteDoc struct {
	Summary     string
	Description string
	Tags        []string
	Responses   map[int]ResponseDoc
}

type ResponseDoc struct {
	Description string
	Data        *Schema
}

// Route binds a handler to a method and gin path, with optional docs.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
	Doc     *RouteDoc
}

var pathParam = regexp.MustCompile(`[:*]([A-Za-z0-9_]+)`)

// BaseResponseSchema describes the response envelope.
func BaseResponseSchema() *Schema {
	gravities := make([]string, 0, len(Gravities()))
	for _, g := range Gravities() {
		gravities = append(gravities, g.Name())
	}
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"messages": {
				Type: "array",
				Items: &Schema{
					Type: "object",
					Properties: map[string]*Schema{
						"gravity": {Type: "string", Enum: gravities},
						"value":   {Type: "string"},
					},
				},
			},
			"data": {Description: "payload of the response"},
		},
	}
}

// BuildOpenAPI generates the document for the documented routes.
func BuildOpenAPI(info OpenAPIInfo, tags []OpenAPITag, routes []Route) OpenAPIDocument {
	doc := OpenAPIDocument{
		OpenAPI: "3.0.3",
		Info:    info,
		Servers: []OpenAPIServer{{URL: "/"}},
		Tags:    append([]OpenAPITag{}, tags...),
		Paths:   make(map[string]map[string]OpenAPIOperation),
		Components: OpenAPIComponents{
			Schemas: map[string]*Schema{"BaseResponse": BaseResponseSchema()},
		},
	}

	for _, route := range routes {
		if route.Doc == nil {
			continue
		}
		path, params := openAPIPath(route.Path)
		method := strings.ToLower(route.Method)
		operation := OpenAPIOperation{
			Summary:     route.Doc.Summary,
			Description: route.Doc.Description,
			Tags:        route.Doc.Tags,
			OperationID: operationID(method, route.Path),
			Parameters:  params,
			Responses:   make(map[string]OpenAPIResponse),
		}
		for status, res := range route.Doc.Responses {
			operation.Responses[strconv.Itoa(status)] = openAPIResponse(res)
		}
		if len(operation.Responses) == 0 {
			operation.Responses["default"] = openAPIResponse(ResponseDoc{Description: "Default response"})
		}
		if doc.Paths[path] == nil {
			doc.Paths[path] = make(map[string]OpenAPIOperation)
		}
		doc.Paths[path][method] = operation
	}
	sort.Slice(doc.Tags, func(i, j int) bool { return doc.Tags[i].Name < doc.Tags[j].Name })
	return doc
}

func openAPIResponse(res ResponseDoc) OpenAPIResponse {
	schema := &Schema{Reference: baseResponseRef}
	if res.Data != nil {
		schema = &Schema{AllOf: []*Schema{
			{Reference: baseResponseRef},
			{Type: "object", Properties: map[string]*Schema{"data": res.Data}},
		}}
	}
	return OpenAPIResponse{
		Description: res.Description,
		Content: map[string]OpenAPIMediaType{
			"application/json": {Schema: schema},
		},
	}
}

// openAPIPath converts gin parameters (":id", "*path") to "{id}" form.
func openAPIPath(ginPath string) (string, []OpenAPIParameter) {
	var params []OpenAPIParameter
	path := pathParam.ReplaceAllStringFunc(ginPath, func(m string) string {
		name := m[1:]
		params = append(params, OpenAPIParameter{Name: name, In: "path", Required: true, Schema: &Schema{Type: "string"}})
		return "{" + name + "}"
	})
	return path, params
}

func operationID(method, path string) string {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == ':' || r == '*' })
	return method + strings.Join(append([]string{""}, parts...), "_")
}

func openAPIJSONHandler(doc func() OpenAPIDocument) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, doc())
	}
}

func openAPIYAMLHandler(doc func() OpenAPIDocument) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := yaml.Marshal(doc())
		if err != nil {
			ThrowInternalServerError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/yaml; charset=utf-8", out)
	}
}

// WriteOpenAPI encodes doc to w as "json" or "yaml".
func WriteOpenAPI(w io.Writer, doc OpenAPIDocument, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported openapi format: %s", format)
	}
}
