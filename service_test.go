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

package anvil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/repository"
	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID     int64            `bun:"id,pk,autoincrement" json:"id"`
	Name   string           `bun:"name,notnull,unique" json:"name"`
	Stock  int              `bun:"stock" json:"stock"`
	Labels types.JsonObject `bun:"labels,type:text" json:"labels"`
}

func init() {
	database.RegisterModel((*widget)(nil), 1)
}

func setupDB(t *testing.T) {
	t.Helper()
	cfg := &database.Config{ConnectionConfig: *database.DefaultConnectionConfig()}
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = "file:" + t.Name() + "?mode=memory&cache=shared"
	cfg.ConnectionConfig.HealthCheckInterval = 0

	_, err := database.InitDatabaseWithOptions(context.Background(), cfg, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })
}

func TestServiceCrud(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	svc := NewService[widget]()

	saved, err := svc.Save(ctx, &widget{Name: "bolt", Stock: 3, Labels: types.JsonObject{"size": "m"}})
	require.NoError(t, err)
	require.NotZero(t, saved.ID)

	got, err := svc.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bolt", got.Name)
	assert.Equal(t, "m", got.Labels["size"])

	updated, err := svc.Update(ctx, saved.ID, repository.Attributes{"stock": 9})
	require.NoError(t, err)
	assert.Equal(t, 9, updated.Stock)

	updated.Name = "bolt-xl"
	reloaded, err := svc.UpdateModel(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, "bolt-xl", reloaded.Name)

	deleted, err := svc.Delete(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	missing, err := svc.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestServiceBulk(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	svc := NewService[widget]()

	saved, err := svc.SaveAll(ctx, &widget{Name: "nut"}, &widget{Name: "washer"})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	found, err := svc.GetByIds(ctx, saved[0].ID, saved[1].ID)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	result, err := svc.UpdateAll(ctx, []any{saved[0].ID, int64(999)}, repository.Attributes{"stock": 1})
	require.NoError(t, err)
	assert.True(t, result.Partial())
	assert.Equal(t, []any{saved[0].ID}, result.UpdatedIDs())
	assert.Equal(t, []any{int64(999)}, result.FailedIDs())

	page, err := svc.Page(ctx, types.NewPageRequest(1, 1, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 1)

	deleted, err := svc.DeleteAll(ctx, saved[0].ID, saved[1].ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestServiceTransaction(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	svc := NewService[widget]()
	boom := errors.New("boom")

	err := svc.Transaction(ctx, func(ctx context.Context, repo repository.Repository[widget]) error {
		if _, err := repo.Create(ctx, &widget{Name: "spring"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := svc.SelectBuilder().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = svc.Transaction(ctx, func(ctx context.Context, repo repository.Repository[widget]) error {
		_, err := repo.Create(ctx, &widget{Name: "spring"})
		return err
	})
	require.NoError(t, err)

	count, err = svc.SelectBuilder().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestServiceWithTx(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	svc := NewService[widget]()

	err := svc.Repository().DB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := svc.WithTx(tx).Save(ctx, &widget{Name: "gear"})
		return err
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, svc.SelectBuilder().Column("name").Scan(ctx, &names))
	assert.Equal(t, []string{"gear"}, names)
}

func TestServiceBuilders(t *testing.T) {
	setupDB(t)
	ctx := context.Background()
	svc := NewService[widget]()

	_, err := svc.InsertBuilder().Model(&widget{Name: "cog", Stock: 2}).Exec(ctx)
	require.NoError(t, err)
	_, err = svc.UpdateBuilder().Set("stock = stock + 1").Where("name = ?", "cog").Exec(ctx)
	require.NoError(t, err)

	var w widget
	require.NoError(t, svc.SelectBuilder().Where("name = ?", "cog").Scan(ctx, &w))
	assert.Equal(t, 3, w.Stock)

	res, err := svc.DeleteBuilder().Where("name = ?", "cog").Exec(ctx)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestServiceRequiresDatabase(t *testing.T) {
	require.NoError(t, database.CloseDB())
	svc := NewService[widget]()
	assert.Panics(t, func() { _ = svc.Repository() })
}

func TestServiceBindsAfterLateInit(t *testing.T) {
	require.NoError(t, database.CloseDB())
	ctx := context.Background()
	svc := NewService[widget]()

	assert.PanicsWithValue(t, "anvil: Service[anvil.widget] used before database.InitDB", func() {
		_, _ = svc.Get(ctx, 1)
	})

	setupDB(t)
	saved, err := svc.Save(ctx, &widget{Name: "rivet"})
	require.NoError(t, err)
	got, err := svc.Get(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rivet", got.Name)
}
