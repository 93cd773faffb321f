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
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	db              bun.IDB
	autoTransaction bool
	reporter        Reporter
}

// Option configures a repository created by NewRepository.
type Option func(*options)

type options struct {
	reporter        Reporter
	autoTransaction bool
}

// WithReporter sets the Reporter that receives failures of transactional
// operations. The default logs them.
func WithReporter(reporter Reporter) Option {
	return func(o *options) {
		if reporter != nil {
			o.reporter = reporter
		}
	}
}

// NewRepository returns a generic repository bound to db, a *bun.DB or an
// open bun.Tx. Auto-transaction is on.
func NewRepository[T any](db bun.IDB, opts ...Option) Repository[T] {
	o := &options{reporter: LogReporter(), autoTransaction: true}
	for _, opt := range opts {
		opt(o)
	}
	return &baseRepositoryImpl[T]{db: db, autoTransaction: o.autoTransaction, reporter: o.reporter}
}

func (r *baseRepositoryImpl[T]) clone(db bun.IDB, autoTransaction bool) *baseRepositoryImpl[T] {
	return &baseRepositoryImpl[T]{db: db, autoTransaction: autoTransaction, reporter: r.reporter}
}

func (r *baseRepositoryImpl[T]) DB() bun.IDB { return r.db }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete() }

func (r *baseRepositoryImpl[T]) AutoTransaction() bool { return r.autoTransaction }

func (r *baseRepositoryImpl[T]) WithAutoTransaction(enabled bool) Repository[T] {
	return r.clone(r.db, enabled)
}

func (r *baseRepositoryImpl[T]) WithTx(tx bun.Tx) Repository[T] {
	return r.clone(tx, false)
}

func (r *baseRepositoryImpl[T]) TransactionClosure(ctx context.Context, fn func(ctx context.Context, repo Repository[T]) error) error {
	return RunInTx(ctx, r.db, r.reporter, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, r.WithTx(tx))
	})
}

// table returns the Bun metadata of T.
func (r *baseRepositoryImpl[T]) table() *schema.Table {
	return r.db.Dialect().Tables().Get(reflect.TypeFor[T]())
}

func (r *baseRepositoryImpl[T]) pkColumn() (schema.Ident, error) {
	table := r.table()
	if len(table.PKs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.TypeName)
	}
	return schema.Ident(table.PKs[0].Name), nil
}

// validate checks every attribute against the model's columns.
func (r *baseRepositoryImpl[T]) validate(attrs Attributes) error {
	table := r.table()
	for _, col := range attrs.Columns() {
		if _, ok := table.FieldMap[col]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table.Name, col)
		}
	}
	return nil
}

// assignments merges attrs with the touched timestamp columns the model has.
func (r *baseRepositoryImpl[T]) assignments(attrs Attributes, opts []UpdateOption) Attributes {
	o := &updateOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.touch) == 0 {
		return attrs
	}
	table := r.table()
	set := make(Attributes, len(attrs)+len(o.touch))
	for col, val := range attrs {
		set[col] = val
	}
	now := time.Now()
	for _, col := range o.touch {
		if _, ok := table.FieldMap[col]; ok {
			set[col] = now
		}
	}
	return set
}

func (r *baseRepositoryImpl[T]) updateQuery(db bun.IDB, set Attributes) *bun.UpdateQuery {
	query := db.NewUpdate().Model(new(T))
	for _, col := range set.Columns() {
		query = query.Set("? = ?", bun.Ident(col), set[col])
	}
	return query
}

// transactional runs fn in a transaction when auto-transaction is on and
// directly on the bound connection otherwise. Failures are reported once.
func (r *baseRepositoryImpl[T]) transactional(ctx context.Context, op string, fn func(ctx context.Context, db bun.IDB) error) error {
	if r.autoTransaction {
		return RunInTx(ctx, r.db, r.reporter, func(ctx context.Context, tx bun.Tx) error {
			return newStoreError(op, fn(ctx, tx))
		})
	}
	err := newStoreError(op, fn(ctx, r.db))
	report(ctx, r.reporter, err)
	return err
}

func (r *baseRepositoryImpl[T]) find(ctx context.Context, db bun.IDB, id any) (*T, error) {
	pk, err := r.pkColumn()
	if err != nil {
		return nil, err
	}
	entity := new(T)
	err = db.NewSelect().Model(entity).Where("? = ?", pk, id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) getByIds(ctx context.Context, db bun.IDB, ids []any) ([]*T, error) {
	entities := make([]*T, 0, len(ids))
	if len(ids) == 0 {
		return entities, nil
	}
	pk, err := r.pkColumn()
	if err != nil {
		return nil, err
	}
	if err := db.NewSelect().Model(&entities).Where("? IN (?)", pk, bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, id any) (*T, error) {
	entity, err := r.find(ctx, r.db, id)
	return entity, newStoreError("find", err)
}

func (r *baseRepositoryImpl[T]) GetByIds(ctx context.Context, ids []any) ([]*T, error) {
	entities, err := r.getByIds(ctx, r.db, ids)
	if err != nil {
		return nil, newStoreError("get_by_ids", err)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	if _, err := r.db.NewInsert().Model(entity).Exec(ctx); err != nil {
		return nil, newStoreError("create", err)
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) BulkCreate(ctx context.Context, entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return make([]*T, 0), nil
	}
	err := r.transactional(ctx, "bulk_create", func(ctx context.Context, db bun.IDB) error {
		for _, entity := range entities {
			if _, err := db.NewInsert().Model(entity).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) update(ctx context.Context, db bun.IDB, id any, set Attributes) (bool, error) {
	pk, err := r.pkColumn()
	if err != nil {
		return false, err
	}
	res, err := r.updateQuery(db, set).Where("? = ?", pk, id).Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, id any, attrs Attributes, opts ...UpdateOption) (bool, error) {
	if err := r.validate(attrs); err != nil {
		return false, err
	}
	set := r.assignments(attrs, opts)
	if len(set) == 0 {
		return false, nil
	}
	updated, err := r.update(ctx, r.db, id, set)
	return updated, newStoreError("update", err)
}

func (r *baseRepositoryImpl[T]) SafeUpdate(ctx context.Context, id any, attrs Attributes) (*T, error) {
	if err := r.validate(attrs); err != nil {
		return nil, err
	}
	var entity *T
	err := r.transactional(ctx, "safe_update", func(ctx context.Context, db bun.IDB) error {
		current, err := r.find(ctx, db, id)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: id %v", ErrEntityNotFound, id)
		}
		if len(attrs) > 0 {
			if _, err := r.update(ctx, db, id, attrs); err != nil {
				return err
			}
		}
		entity, err = r.find(ctx, db, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) ModelSafeUpdate(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity cannot be nil")
	}
	err := r.transactional(ctx, "model_safe_update", func(ctx context.Context, db bun.IDB) error {
		_, err := db.NewUpdate().Model(entity).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) BulkModelSafeUpdate(ctx context.Context, entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return entities, nil
	}
	err := r.transactional(ctx, "bulk_model_safe_update", func(ctx context.Context, db bun.IDB) error {
		for _, entity := range entities {
			if _, err := db.NewUpdate().Model(entity).WherePK().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) BulkUpdate(ctx context.Context, ids []any, attrs Attributes, opts ...UpdateOption) (*BulkResult, error) {
	if err := r.validate(attrs); err != nil {
		return nil, err
	}
	set := r.assignments(attrs, opts)
	result := &BulkResult{Results: make([]UpdateResult, 0, len(ids))}
	for _, id := range ids {
		res := UpdateResult{ID: id}
		if len(set) > 0 {
			updated, err := r.update(ctx, r.db, id, set)
			res.Updated, res.Err = updated, newStoreError("bulk_update", err)
		}
		result.Results = append(result.Results, res)
	}
	return result, nil
}

func (r *baseRepositoryImpl[T]) BulkSafeUpdate(ctx context.Context, ids []any, attrs Attributes) ([]*T, error) {
	if err := r.validate(attrs); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return make([]*T, 0), nil
	}
	var entities []*T
	err := r.transactional(ctx, "bulk_safe_update", func(ctx context.Context, db bun.IDB) error {
		if len(attrs) > 0 {
			pk, err := r.pkColumn()
			if err != nil {
				return err
			}
			if _, err := r.updateQuery(db, attrs).Where("? IN (?)", pk, bun.In(ids)).Exec(ctx); err != nil {
				return err
			}
		}
		var err error
		entities, err = r.getByIds(ctx, db, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) (bool, error) {
	pk, err := r.pkColumn()
	if err != nil {
		return false, err
	}
	res, err := r.db.NewDelete().Model((*T)(nil)).Where("? = ?", pk, id).Exec(ctx)
	if err != nil {
		return false, newStoreError("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, newStoreError("delete", err)
	}
	return n > 0, nil
}

func (r *baseRepositoryImpl[T]) BulkDelete(ctx context.Context, ids []any) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	pk, err := r.pkColumn()
	if err != nil {
		return false, err
	}
	res, err := r.db.NewDelete().Model((*T)(nil)).Where("? IN (?)", pk, bun.In(ids)).Exec(ctx)
	if err != nil {
		return false, newStoreError("bulk_delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, newStoreError("bulk_delete", err)
	}
	return n > 0, nil
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(1, 10)
	}
	var entities []*T
	query := r.db.NewSelect().Model(&entities)
	if filter := pageRequest.GetFilter(); filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil {
		return nil, newStoreError("page", err)
	}
	if total == 0 {
		return pagination, nil
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Order(pageRequest.GetOrders()...).
		Scan(ctx)
	if err != nil {
		return nil, newStoreError("page", err)
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}
