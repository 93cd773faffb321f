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
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/utils"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Name            string        `mapstructure:"name" validate:"required"`
	Version         string        `mapstructure:"version"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	Mode            string        `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HealthChecker reports database health for the readiness probe.
type HealthChecker func(ctx context.Context) *database.HealthStatus

type MonitoringHandler struct {
	health HealthChecker
}

func (h MonitoringHandler) Livez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz answers 503 while the database is unhealthy.
func (h MonitoringHandler) Readyz(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	status := h.health(c.Request.Context())
	if status == nil || !status.Healthy {
		msg := "database unavailable"
		if status != nil && status.LastError != "" {
			msg = fmt.Sprintf("%s: %s", msg, status.LastError)
		}
		ThrowServiceUnavailable(c, errors.New(msg))
		return
	}
	c.JSON(http.StatusOK, OK(status))
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithHealthChecker wires the readiness probe to a database health check.
func WithHealthChecker(checker HealthChecker) ServerOption {
	return func(s *Server) { s.monitoring.health = checker }
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server is the gin engine with monitoring, metrics and API document routes.
type Server struct {
	config     ServerConfig
	engine     *gin.Engine
	logger     *logrus.Logger
	monitoring MonitoringHandler

	mu     sync.RWMutex
	routes []Route
	tags   []OpenAPITag
}

func NewServer(config ServerConfig, opts ...ServerOption) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	s := &Server{
		config: config,
		engine: gin.New(),
		logger: utils.GetLogger("HTTP"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(RequestID(), RequestLogger(s.logger), Recovery(s.logger))

	s.engine.GET("/readyz", s.monitoring.Readyz)
	s.engine.GET("/livez", s.monitoring.Livez)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/openapi.json", openAPIJSONHandler(s.OpenAPI))
	s.engine.GET("/openapi.yaml", openAPIYAMLHandler(s.OpenAPI))

	s.engine.NoRoute(func(c *gin.Context) {
		response := NewDefaultResponseBuilder()
		response.AddMessage(NewMessage(Fatal, "404 page not found (uri: "+c.Request.RequestURI+", method: "+c.Request.Method+")"))
		c.JSON(http.StatusNotFound, response.Build())
	})
	return s
}

// Handle registers routes on the engine and in the API document.
func (s *Server) Handle(routes ...Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, route := range routes {
		s.engine.Handle(route.Method, route.Path, route.Handler)
		s.routes = append(s.routes, route)
	}
}

func (s *Server) AddTags(tags ...OpenAPITag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append(s.tags, tags...)
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) OpenAPI() OpenAPIDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := OpenAPIInfo{
		Title:       s.config.Name,
		Description: fmt.Sprintf("%s docs", s.config.Name),
		Version:     s.config.Version,
	}
	return BuildOpenAPI(info, s.tags, s.routes)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}
