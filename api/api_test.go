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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/repository"
	"gopkg.in/yaml.v3"
)

func newTestServer(opts ...ServerOption) *Server {
	s := NewServer(ServerConfig{Name: "anvil", Version: "test", Mode: gin.TestMode}, opts...)
	s.AddTags(ExampleTag)
	s.Handle(ExampleController{}.Routes()...)
	return s
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestExampleEndpoint(t *testing.T) {
	w := serve(newTestServer(), http.MethodGet, "/test")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"messages":[],"data":"Ok."}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestNoRouteEnvelope(t *testing.T) {
	w := serve(newTestServer(), http.MethodGet, "/missing")

	require.Equal(t, http.StatusNotFound, w.Code)
	var body Response[map[string]any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, Fatal, body.Messages[0].Gravity)
	assert.Contains(t, body.Messages[0].Value, "/missing")
}

func TestOpenAPIDocument(t *testing.T) {
	doc := newTestServer().OpenAPI()

	assert.Equal(t, "anvil", doc.Info.Title)
	require.Len(t, doc.Tags, 1)
	assert.Equal(t, "Example v1", doc.Tags[0].Name)
	require.Contains(t, doc.Components.Schemas, "BaseResponse")

	op, ok := doc.Paths["/test"]["get"]
	require.True(t, ok)
	assert.Equal(t, "Test", op.Summary)
	assert.Equal(t, []string{"Example v1"}, op.Tags)
	assert.Equal(t, "get_test", op.OperationID)

	schema := op.Responses["200"].Content["application/json"].Schema
	require.Len(t, schema.AllOf, 2)
	assert.Equal(t, baseResponseRef, schema.AllOf[0].Reference)
	data := schema.AllOf[1].Properties["data"]
	assert.Equal(t, "string", data.Type)
	assert.Equal(t, "Ok.", data.Example)

	_, documented := doc.Paths["/readyz"]
	assert.False(t, documented)
}

func TestOpenAPIPathParameters(t *testing.T) {
	doc := BuildOpenAPI(OpenAPIInfo{Title: "t"}, nil, []Route{
		{Method: http.MethodGet, Path: "/accounts/:id", Doc: &RouteDoc{Summary: "Find"}},
	})
	op := doc.Paths["/accounts/{id}"]["get"]
	require.Len(t, op.Parameters, 1)
	assert.Equal(t, "id", op.Parameters[0].Name)
	assert.Equal(t, "path", op.Parameters[0].In)
	assert.Contains(t, op.Responses, "default")
}

func TestOpenAPIEndpoints(t *testing.T) {
	s := newTestServer()

	w := serve(s, http.MethodGet, "/openapi.json")
	require.Equal(t, http.StatusOK, w.Code)
	var doc OpenAPIDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Contains(t, doc.Paths, "/test")

	w = serve(s, http.MethodGet, "/openapi.yaml")
	require.Equal(t, http.StatusOK, w.Code)
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "3.0.3", raw["openapi"])
}

func TestWriteOpenAPI(t *testing.T) {
	doc := newTestServer().OpenAPI()

	var out bytes.Buffer
	require.NoError(t, WriteOpenAPI(&out, doc, "json"))
	var decoded OpenAPIDocument
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "3.0.3", decoded.OpenAPI)

	out.Reset()
	require.NoError(t, WriteOpenAPI(&out, doc, "yaml"))
	assert.Contains(t, out.String(), "openapi: 3.0.3")

	assert.Error(t, WriteOpenAPI(&out, doc, "toml"))
}

func TestProbes(t *testing.T) {
	healthy := newTestServer(WithHealthChecker(func(context.Context) *database.HealthStatus {
		return &database.HealthStatus{Healthy: true, Connected: true}
	}))
	assert.Equal(t, http.StatusOK, serve(healthy, http.MethodGet, "/readyz").Code)
	assert.Equal(t, http.StatusOK, serve(healthy, http.MethodGet, "/livez").Code)
	assert.Equal(t, http.StatusOK, serve(healthy, http.MethodGet, "/metrics").Code)

	down := newTestServer(WithHealthChecker(func(context.Context) *database.HealthStatus {
		return &database.HealthStatus{LastError: "connection refused"}
	}))
	w := serve(down, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestRecoveryRendersEnvelope(t *testing.T) {
	s := newTestServer()
	s.Handle(Route{Method: http.MethodGet, Path: "/panic", Handler: func(*gin.Context) { panic("boom") }})

	w := serve(s, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"gravity":"Fatal"`)
}

func TestThrowRepositoryError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: id 1", repository.ErrEntityNotFound), http.StatusNotFound},
		{repository.ErrUnknownColumn, http.StatusBadRequest},
		{&repository.StoreError{Op: "create", Kind: database.DuplicateKeyErr, Err: errors.New("dup")}, http.StatusConflict},
		{&repository.StoreError{Op: "find", Kind: database.ConnectionErr, Err: errors.New("down")}, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		ThrowRepositoryError(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}
}

func TestMessageGravity(t *testing.T) {
	b, err := json.Marshal(NewMessage(Warning, "careful"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"gravity":"Warning","value":"careful"}`, string(b))

	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"gravity":"info","value":"x"}`), &m))
	assert.Equal(t, Info, m.Gravity)
	assert.Error(t, json.Unmarshal([]byte(`{"gravity":"loud"}`), &m))

	assert.Equal(t, -1, MessageGravity(9).Number())
	assert.Equal(t, "unknown", MessageGravity(9).Name())
	_, err = MessageGravity(9).MarshalText()
	assert.Error(t, err)
}
