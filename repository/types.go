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
	"sort"

	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Attributes maps column names to the values an update assigns.
type Attributes map[string]any

// Columns returns the attribute names in sorted order.
func (a Attributes) Columns() []string {
	cols := make([]string, 0, len(a))
	for col := range a {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

type updateOptions struct {
	touch []string
}

// UpdateOption customizes attribute updates.
type UpdateOption func(*updateOptions)

// WithTouch also sets column to the current time when the model has it.
func WithTouch(column string) UpdateOption {
	return func(o *updateOptions) {
		o.touch = append(o.touch, column)
	}
}

// FindRepository reads records by primary key.
type FindRepository[T any] interface {
	// Find returns the record with the id, or nil when there is none.
	Find(ctx context.Context, id any) (*T, error)

	GetByIds(ctx context.Context, ids []any) ([]*T, error)
}

// CrudRepository defines the single and bulk write operations.
type CrudRepository[T any] interface {
	FindRepository[T]

	Create(ctx context.Context, entity *T) (*T, error)

	// BulkCreate inserts every entity or none of them.
	BulkCreate(ctx context.Context, entities []*T) ([]*T, error)

	// Update reports whether a row matched id.
	Update(ctx context.Context, id any, attrs Attributes, opts ...UpdateOption) (bool, error)

	// SafeUpdate updates the record and returns it reloaded. It fails with
	// ErrEntityNotFound when no record has the id.
	SafeUpdate(ctx context.Context, id any, attrs Attributes) (*T, error)

	ModelSafeUpdate(ctx context.Context, entity *T) (*T, error)

	BulkModelSafeUpdate(ctx context.Context, entities []*T) ([]*T, error)

	// BulkUpdate runs one update per id outside any transaction and attempts
	// every id. The error is non-nil only for invalid attributes.
	BulkUpdate(ctx context.Context, ids []any, attrs Attributes, opts ...UpdateOption) (*BulkResult, error)

	BulkSafeUpdate(ctx context.Context, ids []any, attrs Attributes) ([]*T, error)

	// Delete reports whether a row was deleted.
	Delete(ctx context.Context, id any) (bool, error)

	// BulkDelete reports whether any row was deleted.
	BulkDelete(ctx context.Context, ids []any) (bool, error)
}

// TransactionRepository controls transaction boundaries.
type TransactionRepository[T any] interface {
	// AutoTransaction reports whether mutating operations open their own
	// transaction.
	AutoTransaction() bool

	// WithAutoTransaction returns a copy with the flag set.
	WithAutoTransaction(enabled bool) Repository[T]

	// WithTx returns a copy bound to tx with auto-transaction off.
	WithTx(tx bun.Tx) Repository[T]

	// TransactionClosure runs fn in one transaction with a tx-bound copy.
	// The transaction commits when fn returns nil and rolls back when fn
	// returns an error or panics.
	TransactionClosure(ctx context.Context, fn func(ctx context.Context, repo Repository[T]) error) error
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines CRUD, pagination, and transactional operations and
// exposes Bun query builders bound to the same connection.
type Repository[T any] interface {
	CrudRepository[T]
	PageQueryRepository[T]
	TransactionRepository[T]
	DB() bun.IDB
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}
