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

package database

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// dialectSpec describes how one configured database type is opened.
type dialectSpec struct {
	driver  string
	dsn     func(cfg *ConnectionConfig) string
	dialect func() schema.Dialect
	// tune adjusts the pool settings before they are applied.
	tune func(cfg *ConnectionConfig)
}

var (
	mysqlSpec = dialectSpec{
		driver:  "mysql",
		dsn:     mysqlDSN,
		dialect: func() schema.Dialect { return mysqldialect.New() },
	}
	postgresSpec = dialectSpec{
		driver:  "postgres",
		dsn:     postgresDSN,
		dialect: func() schema.Dialect { return pgdialect.New() },
	}
	sqliteSpec = dialectSpec{
		driver:  sqliteshim.ShimName,
		dsn:     func(cfg *ConnectionConfig) string { return SQLiteDSN(cfg.DBName) },
		dialect: func() schema.Dialect { return sqlitedialect.New() },
		tune:    tuneSQLite,
	}

	dialects = map[string]dialectSpec{
		"mysql":      mysqlSpec,
		"postgres":   postgresSpec,
		"postgresql": postgresSpec,
		"sqlite":     sqliteSpec,
		"sqlite3":    sqliteSpec,
	}
)

// SupportedTypes lists the accepted ConnectionConfig.Type values.
func SupportedTypes() []string {
	types := make([]string, 0, len(dialects))
	for name := range dialects {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// openDialect opens a pool for cfg.Type without connecting.
func openDialect(cfg *ConnectionConfig) (*sql.DB, *bun.DB, error) {
	spec, ok := dialects[cfg.Type]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if spec.tune != nil {
		spec.tune(cfg)
	}
	sqlDB, err := sql.Open(spec.driver, spec.dsn(cfg))
	if err != nil {
		return nil, nil, err
	}
	return sqlDB, bun.NewDB(sqlDB, spec.dialect()), nil
}

func mysqlDSN(cfg *ConnectionConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		cfg.ConnectTimeout, cfg.ReadTimeout, cfg.WriteTimeout)
}

func postgresDSN(cfg *ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
		sslMode, int(cfg.ConnectTimeout.Seconds()))
}

// tuneSQLite pins in-memory databases to one connection: every further
// pooled connection would open its own empty database.
func tuneSQLite(cfg *ConnectionConfig) {
	if !isSQLiteMemory(cfg.DBName) {
		return
	}
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	cfg.ConnMaxLifetime = 0
	cfg.ConnMaxIdleTime = 0
}

// SQLiteDSN maps a configured database name to a sqlite DSN. An empty name
// or ":memory:" gets a uniquely named in-memory database private to the
// caller; "file:" names and names ending in ".db" are used as is, anything
// else gets a ".db" suffix.
func SQLiteDSN(name string) string {
	switch {
	case name == "", name == ":memory:":
		return fmt.Sprintf("file:anvil-%s?mode=memory&cache=shared", uuid.NewString())
	case strings.HasPrefix(name, "file:"), strings.HasSuffix(name, ".db"):
		return name
	default:
		return fmt.Sprintf("%s.db", name)
	}
}

func isSQLiteMemory(name string) bool {
	return name == "" || name == ":memory:" || strings.Contains(name, "mode=memory")
}
