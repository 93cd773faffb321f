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

// Package anvil exposes a generic Service over the repository layer, bound
// lazily to the global database connection.
package anvil

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/repository"
	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier, nil when absent.
	Get(ctx context.Context, id any) (*T, error)

	// GetByIds returns the entities matching the identifiers.
	GetByIds(ctx context.Context, ids ...any) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts a new entity and returns it with its generated key.
	Save(ctx context.Context, model *T) (*T, error)

	// SaveAll inserts all entities in one transaction.
	SaveAll(ctx context.Context, models ...*T) ([]*T, error)

	// Update assigns attributes to the entity and returns it reloaded.
	Update(ctx context.Context, id any, attrs repository.Attributes) (*T, error)

	// UpdateModel saves every column of an already loaded entity.
	UpdateModel(ctx context.Context, model *T) (*T, error)

	// UpdateAll assigns attributes to every id, one statement each.
	UpdateAll(ctx context.Context, ids []any, attrs repository.Attributes, opts ...repository.UpdateOption) (*repository.BulkResult, error)

	// Delete removes an entity and reports whether it existed.
	Delete(ctx context.Context, id any) (bool, error)

	// DeleteAll removes the entities and reports whether any existed.
	DeleteAll(ctx context.Context, ids ...any) (bool, error)

	// Transaction runs fn with a repository bound to one transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T]) error) error

	// WithTx returns a service whose calls join tx.
	WithTx(tx bun.Tx) Service[T]

	// Repository returns the underlying repository.
	Repository() repository.Repository[T]

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery

	// InsertBuilder returns a Bun insert query builder for the entity.
	InsertBuilder() *bun.InsertQuery

	// UpdateBuilder returns a Bun update query builder for the entity.
	UpdateBuilder() *bun.UpdateQuery

	// DeleteBuilder returns a Bun delete query builder for the entity.
	DeleteBuilder() *bun.DeleteQuery
}

type baseServiceImpl[T any] struct {
	repo repository.Repository[T]
	opts []repository.Option
	mu   sync.Mutex
}

// NewService returns a Service using the generic repository backed by the
// global database connection. The connection is resolved on first use, so
// database.InitDB must run before the first call.
func NewService[T any](opts ...repository.Option) Service[T] {
	return &baseServiceImpl[T]{opts: opts}
}

// NewServiceWithRepository returns a Service over an existing repository.
func NewServiceWithRepository[T any](repo repository.Repository[T]) Service[T] {
	return &baseServiceImpl[T]{repo: repo}
}

// baseRepo binds the repository on first use. Nothing is cached until the
// global database exists, so a call made before InitDB can be retried.
func (s *baseServiceImpl[T]) baseRepo() repository.Repository[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		db := database.GetDB()
		if db == nil {
			panic(fmt.Sprintf("anvil: Service[%T] used before database.InitDB", *new(T)))
		}
		s.repo = repository.NewRepository[T](db, s.opts...)
	}
	return s.repo
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	return s.baseRepo().Find(ctx, id)
}

func (s *baseServiceImpl[T]) GetByIds(ctx context.Context, ids ...any) ([]*T, error) {
	return s.baseRepo().GetByIds(ctx, ids)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.baseRepo().Page(ctx, page)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model *T) (*T, error) {
	return s.baseRepo().Create(ctx, model)
}

func (s *baseServiceImpl[T]) SaveAll(ctx context.Context, models ...*T) ([]*T, error) {
	return s.baseRepo().BulkCreate(ctx, models)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, id any, attrs repository.Attributes) (*T, error) {
	return s.baseRepo().SafeUpdate(ctx, id, attrs)
}

func (s *baseServiceImpl[T]) UpdateModel(ctx context.Context, model *T) (*T, error) {
	return s.baseRepo().ModelSafeUpdate(ctx, model)
}

func (s *baseServiceImpl[T]) UpdateAll(ctx context.Context, ids []any, attrs repository.Attributes, opts ...repository.UpdateOption) (*repository.BulkResult, error) {
	return s.baseRepo().BulkUpdate(ctx, ids, attrs, opts...)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) (bool, error) {
	return s.baseRepo().Delete(ctx, id)
}

func (s *baseServiceImpl[T]) DeleteAll(ctx context.Context, ids ...any) (bool, error) {
	return s.baseRepo().BulkDelete(ctx, ids)
}

func (s *baseServiceImpl[T]) Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T]) error) error {
	return s.baseRepo().TransactionClosure(ctx, fn)
}

func (s *baseServiceImpl[T]) WithTx(tx bun.Tx) Service[T] {
	return NewServiceWithRepository(s.baseRepo().WithTx(tx))
}

func (s *baseServiceImpl[T]) Repository() repository.Repository[T] {
	return s.baseRepo()
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.baseRepo().NewSelect().Model((*T)(nil))
}

func (s *baseServiceImpl[T]) InsertBuilder() *bun.InsertQuery {
	return s.baseRepo().NewInsert()
}

func (s *baseServiceImpl[T]) UpdateBuilder() *bun.UpdateQuery {
	return s.baseRepo().NewUpdate().Model((*T)(nil))
}

func (s *baseServiceImpl[T]) DeleteBuilder() *bun.DeleteQuery {
	return s.baseRepo().NewDelete().Model((*T)(nil))
}
