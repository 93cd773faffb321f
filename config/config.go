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

// Package config loads the application configuration from a YAML file and
// ANVIL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/tomoncle/anvil/api"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/utils"
)

const EnvPrefix = "ANVIL"

// Config holds all configuration of the service.
type Config struct {
	Server   api.ServerConfig `mapstructure:"server"`
	Database database.Config  `mapstructure:"database"`
	Logging  LoggingConfig    `mapstructure:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level applies to every logger (trace, debug, info, warn, error).
	Level string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	// Format is the console format, text or json.
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	// Loggers overrides the level of single named loggers, e.g. database: debug.
	// Names are matched upper-cased since viper folds keys to lower case.
	Loggers map[string]string `mapstructure:"loggers"`
}

// Apply configures the utils logger registry. Loggers created before the
// call keep their format.
func (c LoggingConfig) Apply() {
	utils.ConfigureConsoleLogFormat(c.Format)
	utils.ConfigureLogLevel(c.Level)
	for name, level := range c.Loggers {
		utils.GetLogger(strings.ToUpper(name)).SetLevel(utils.ParseLogLevel(level))
	}
}

// ConfigLoader implements database.AbstractDatabaseConfigProvider.
func (c *Config) ConfigLoader() *database.Config {
	return &c.Database
}

// Load reads path, when not empty, on top of defaults and environment
// variables such as ANVIL_DATABASE_CONNECTION_TYPE.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/anvil")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "anvil")
	v.SetDefault("server.version", "v1")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	def := database.DefaultConnectionConfig()
	v.SetDefault("database.connection.type", "sqlite")
	v.SetDefault("database.connection.host", "")
	v.SetDefault("database.connection.port", 0)
	v.SetDefault("database.connection.username", "")
	v.SetDefault("database.connection.password", "")
	v.SetDefault("database.connection.dbname", "anvil")
	v.SetDefault("database.connection.sslmode", "")
	v.SetDefault("database.connection.max_idle_conns", def.MaxIdleConns)
	v.SetDefault("database.connection.max_open_conns", def.MaxOpenConns)
	v.SetDefault("database.connection.conn_max_lifetime", def.ConnMaxLifetime)
	v.SetDefault("database.connection.conn_max_idle_time", def.ConnMaxIdleTime)
	v.SetDefault("database.connection.connect_timeout", def.ConnectTimeout)
	v.SetDefault("database.connection.read_timeout", def.ReadTimeout)
	v.SetDefault("database.connection.write_timeout", def.WriteTimeout)
	v.SetDefault("database.connection.enable_reconnect", def.EnableReconnect)
	v.SetDefault("database.connection.reconnect_interval", def.ReconnectInterval)
	v.SetDefault("database.connection.max_reconnect_tries", def.MaxReconnectTries)
	v.SetDefault("database.connection.health_check_interval", def.HealthCheckInterval)
	v.SetDefault("database.connection.enable_query_log", def.EnableQueryLog)
	v.SetDefault("database.connection.enable_metrics", true)
	v.SetDefault("database.connection.slow_query_time", def.SlowQueryTime)
	v.SetDefault("database.migrate.enable_migrate_on_startup", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks the struct tags of the whole configuration.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}
