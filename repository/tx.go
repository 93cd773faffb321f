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

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomoncle/anvil/database"
	"github.com/uptrace/bun"
)

// Reporter receives failures before they leave a transaction boundary.
type Reporter interface {
	Report(ctx context.Context, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, err error)

func (f ReporterFunc) Report(ctx context.Context, err error) { f(ctx, err) }

type logReporter struct{}

// LogReporter returns the default Reporter, writing through database.GetLogger.
func LogReporter() Reporter { return logReporter{} }

func (logReporter) Report(_ context.Context, err error) {
	fields := []interface{}{"error", err}
	var se *StoreError
	if errors.As(err, &se) {
		fields = append(fields, "op", se.Op, "kind", se.Kind.String())
	}
	database.GetLogger().Error("Repository operation failed", fields...)
}

// report hands err to reporter unless it was already reported further down
// the call chain. Missing records are an outcome, not a failure.
func report(ctx context.Context, reporter Reporter, err error) {
	if err == nil || errors.Is(err, ErrEntityNotFound) {
		return
	}
	var se *StoreError
	if errors.As(err, &se) {
		if se.reported {
			return
		}
		se.reported = true
	}
	reporter.Report(ctx, err)
}

// RunInTx runs fn in a transaction opened on db. The transaction commits
// when fn returns nil and rolls back when fn returns an error or panics; a
// panic is re-raised after the rollback. A returned error is reported once.
// When db is itself a transaction, the new one is a savepoint.
func RunInTx(ctx context.Context, db bun.IDB, reporter Reporter, fn func(ctx context.Context, tx bun.Tx) error) (err error) {
	if reporter == nil {
		reporter = LogReporter()
	}
	defer func() {
		report(ctx, reporter, err)
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return newStoreError("begin", fmt.Errorf("failed to begin transaction: %w", err))
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				database.GetLogger().Error("Failed to rollback transaction after panic", "error", rbErr, "panic", p)
			}
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			database.GetLogger().Warn("Failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	committed = true
	if err = tx.Commit(); err != nil {
		return newStoreError("commit", err)
	}
	return nil
}
