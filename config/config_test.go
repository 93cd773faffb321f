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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/anvil/utils"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "anvil", cfg.Server.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.ConnectionConfig.Type)
	assert.Equal(t, 10, cfg.Database.ConnectionConfig.MaxIdleConns)
	assert.True(t, cfg.Database.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Same(t, &cfg.Database, cfg.ConfigLoader())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  mode: debug
database:
  connection:
    type: postgres
    host: db.internal
    port: 5432
    dbname: orders
    connect_timeout: 3s
  migrate:
    enable_migrate_on_startup: false
logging:
  level: debug
  loggers:
    DATABASE: warn
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	conn := cfg.Database.ConnectionConfig
	assert.Equal(t, "postgres", conn.Type)
	assert.Equal(t, "db.internal", conn.Host)
	assert.Equal(t, "orders", conn.DBName)
	assert.Equal(t, 3*time.Second, conn.ConnectTimeout)
	assert.Equal(t, 100, conn.MaxOpenConns)
	assert.False(t, cfg.Database.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Equal(t, "warn", cfg.Logging.Loggers["database"])
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ANVIL_SERVER_PORT", "7070")
	t.Setenv("ANVIL_DATABASE_CONNECTION_DBNAME", "from_env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from_env", cfg.Database.ConnectionConfig.DBName)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  connection:\n    type: oracle\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Type")

	_, err = Load(writeConfig(t, "logging:\n  format: xml\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoggingApply(t *testing.T) {
	LoggingConfig{Level: "warn", Loggers: map[string]string{"CONFIG_TEST": "debug"}}.Apply()
	t.Cleanup(func() { utils.ConfigureLogLevel("info") })

	assert.Equal(t, utils.ParseLogLevel("debug"), utils.GetLogger("CONFIG_TEST").GetLevel())
	assert.Equal(t, utils.ParseLogLevel("warn"), utils.GetLogger("HTTP").GetLevel())
}
