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

// Command anvil serves the example API over the repository layer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/tomoncle/anvil/api"
	"github.com/tomoncle/anvil/config"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/utils"
)

var version = "dev"

type cli struct {
	Config  string           `short:"c" type:"path" help:"Path to the YAML configuration file." env:"ANVIL_CONFIG"`
	Version kong.VersionFlag `help:"Print the version and exit."`

	Serve   serveCmd   `cmd:"" default:"1" help:"Start the HTTP server."`
	Migrate migrateCmd `cmd:"" help:"Create the tables of registered models and exit."`
	OpenAPI openAPICmd `cmd:"" name:"openapi" help:"Print the OpenAPI document."`
}

func (c *cli) load() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Apply()
	return cfg, nil
}

type serveCmd struct{}

func (serveCmd) Run(c *cli) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	logger := utils.GetLogger("ANVIL")

	if _, err := database.InitDB(cfg); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("Starting %s %s", cfg.Server.Name, cfg.Server.Version)
	return newServer(cfg.Server).Run(ctx)
}

type migrateCmd struct{}

func (migrateCmd) Run(c *cli) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	cfg.Database.DataMigrateConfig.EnableMigrateOnStartup = true
	if _, err := database.InitDB(cfg); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return database.CloseDB()
}

type openAPICmd struct {
	Format string `short:"f" enum:"json,yaml" default:"yaml" help:"Output format (json or yaml)."`
}

func (o openAPICmd) Run(c *cli) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	return api.WriteOpenAPI(os.Stdout, newServer(cfg.Server).OpenAPI(), o.Format)
}

func newServer(cfg api.ServerConfig) *api.Server {
	server := api.NewServer(cfg, api.WithHealthChecker(database.GetHealthStatus))
	server.AddTags(api.ExampleTag)
	server.Handle(api.ExampleController{}.Routes()...)
	return server
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("anvil"),
		kong.Description("Generic repository service with an example HTTP API."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run(&c))
}
