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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/types"
	"github.com/uptrace/bun"
)

type account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Email     string    `bun:"email,notnull,unique"`
	Name      string    `bun:"name"`
	Balance   int64     `bun:"balance"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) Report(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	manager := database.NewDatabaseManager(&database.ConnectionConfig{
		Type:           "sqlite",
		DBName:         fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, manager.Connect(context.Background()))
	t.Cleanup(func() { _ = manager.Disconnect() })

	db := manager.GetDB()
	_, err := db.NewCreateTable().Model((*account)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return db
}

func newTestRepo(t *testing.T) (Repository[account], *recordingReporter) {
	t.Helper()
	reporter := &recordingReporter{}
	return NewRepository[account](newTestDB(t), WithReporter(reporter)), reporter
}

func seed(t *testing.T, repo Repository[account], emails ...string) []*account {
	t.Helper()
	out := make([]*account, 0, len(emails))
	for _, email := range emails {
		a, err := repo.Create(context.Background(), &account{Email: email, Name: strings.Split(email, "@")[0]})
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

func countAccounts(t *testing.T, repo Repository[account]) int {
	t.Helper()
	n, err := repo.NewSelect().Model((*account)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestFind(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	created := seed(t, repo, "ann@example.com")[0]

	found, err := repo.Find(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ann@example.com", found.Email)

	missing, err := repo.Find(ctx, created.ID+100)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreatePopulatesKey(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &account{Email: "bob@example.com", Name: "bob"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	found, err := repo.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", found.Name)

	_, err = repo.Create(ctx, &account{Email: "bob@example.com"})
	require.Error(t, err)
	assert.Equal(t, database.DuplicateKeyErr, KindOf(err))
}

func TestGetByIds(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	accounts := seed(t, repo, "a@example.com", "b@example.com", "c@example.com")

	empty, err := repo.GetByIds(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	got, err := repo.GetByIds(ctx, []any{accounts[0].ID, accounts[2].ID, int64(999)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	emails := []string{got[0].Email, got[1].Email}
	assert.ElementsMatch(t, []string{"a@example.com", "c@example.com"}, emails)
}

func TestBulkCreate(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.BulkCreate(ctx, []*account{
		{Email: "x@example.com"},
		{Email: "y@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotZero(t, created[0].ID)
	assert.NotZero(t, created[1].ID)
	assert.Equal(t, 2, countAccounts(t, repo))
	assert.Zero(t, reporter.count())

	none, err := repo.BulkCreate(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBulkCreateRollsBackOnConstraintViolation(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.BulkCreate(ctx, []*account{
		{Email: "one@example.com"},
		{Email: "two@example.com"},
		{Email: "one@example.com"},
	})
	require.Error(t, err)
	assert.Equal(t, database.DuplicateKeyErr, KindOf(err))

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bulk_create", se.Op)

	assert.Equal(t, 0, countAccounts(t, repo))
	assert.Equal(t, 1, reporter.count())
}

func TestBulkCreateWithoutAutoTransactionKeepsEarlierRows(t *testing.T) {
	repo, reporter := newTestRepo(t)
	manual := repo.WithAutoTransaction(false)

	_, err := manual.BulkCreate(context.Background(), []*account{
		{Email: "one@example.com"},
		{Email: "one@example.com"},
	})
	require.Error(t, err)
	assert.Equal(t, 1, countAccounts(t, repo))
	assert.Equal(t, 1, reporter.count())
}

func TestUpdate(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()
	a := seed(t, repo, "ann@example.com")[0]

	updated, err := repo.Update(ctx, a.ID, Attributes{"name": "annie", "balance": 10})
	require.NoError(t, err)
	assert.True(t, updated)

	found, err := repo.Find(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "annie", found.Name)
	assert.Equal(t, int64(10), found.Balance)
	assert.True(t, found.UpdatedAt.IsZero())

	updated, err = repo.Update(ctx, a.ID+100, Attributes{"name": "ghost"})
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = repo.Update(ctx, a.ID, Attributes{"name": "ann"}, WithTouch("updated_at"), WithTouch("created_at"))
	require.NoError(t, err)
	assert.True(t, updated)
	found, err = repo.Find(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, found.UpdatedAt.IsZero())

	_, err = repo.Update(ctx, a.ID, Attributes{"nickname": "x"})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	updated, err = repo.Update(ctx, a.ID, Attributes{})
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Zero(t, reporter.count())
}

func TestSafeUpdate(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()
	a := seed(t, repo, "ann@example.com")[0]

	got, err := repo.SafeUpdate(ctx, a.ID, Attributes{"name": "annie", "balance": 5})
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "annie", got.Name)
	assert.Equal(t, int64(5), got.Balance)
	assert.Zero(t, reporter.count())
}

func TestSafeUpdateMissingID(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()
	a := seed(t, repo, "ann@example.com")[0]

	got, err := repo.SafeUpdate(ctx, a.ID+100, Attributes{"name": "ghost"})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrEntityNotFound)
	assert.True(t, IsNotFound(err))
	assert.Zero(t, reporter.count())

	found, err := repo.Find(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann", found.Name)
	assert.Equal(t, 1, countAccounts(t, repo))
}

func TestSafeUpdateConstraintViolation(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()
	accounts := seed(t, repo, "ann@example.com", "bob@example.com")

	_, err := repo.SafeUpdate(ctx, accounts[1].ID, Attributes{"email": "ann@example.com"})
	require.Error(t, err)
	assert.Equal(t, database.DuplicateKeyErr, KindOf(err))
	assert.Equal(t, 1, reporter.count())

	found, err := repo.Find(ctx, accounts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", found.Email)
}

func TestModelSafeUpdate(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	a := seed(t, repo, "ann@example.com")[0]

	a.Name = "annabel"
	saved, err := repo.ModelSafeUpdate(ctx, a)
	require.NoError(t, err)
	assert.Same(t, a, saved)

	found, err := repo.Find(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "annabel", found.Name)

	_, err = repo.ModelSafeUpdate(ctx, nil)
	assert.Error(t, err)
}

func TestBulkModelSafeUpdateRollsBack(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()
	accounts := seed(t, repo, "ann@example.com", "bob@example.com", "cat@example.com")

	accounts[0].Name = "changed"
	accounts[1].Email = "cat@example.com"
	_, err := repo.BulkModelSafeUpdate(ctx, accounts[:2])
	require.Error(t, err)
	assert.Equal(t, 1, reporter.count())

	found, err := repo.Find(ctx, accounts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "ann", found.Name)

	accounts[1].Email = "bobby@example.com"
	saved, err := repo.BulkModelSafeUpdate(ctx, accounts[:2])
	require.NoError(t, err)
	assert.Len(t, saved, 2)
	found, err = repo.Find(ctx, accounts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", found.Name)
}

func TestBulkUpdatePartial(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()
	a := seed(t, repo, "ann@example.com")[0]
	missing := a.ID + 100

	result, err := repo.BulkUpdate(ctx, []any{a.ID, missing}, Attributes{"balance": 42})
	require.NoError(t, err)
	assert.False(t, result.AllUpdated())
	assert.False(t, result.NoneUpdated())
	assert.True(t, result.Partial())
	assert.Equal(t, []any{a.ID}, result.UpdatedIDs())
	assert.Equal(t, []any{missing}, result.FailedIDs())
	assert.NoError(t, result.Err())
	assert.Zero(t, reporter.count())

	found, err := repo.Find(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), found.Balance)
}

func TestBulkUpdateAttemptsEveryID(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	accounts := seed(t, repo, "ann@example.com", "bob@example.com", "cat@example.com")

	result, err := repo.BulkUpdate(ctx,
		[]any{accounts[0].ID, accounts[1].ID, accounts[2].ID},
		Attributes{"email": "same@example.com"},
	)
	require.NoError(t, err)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Updated)
	assert.False(t, result.Results[1].Updated)
	assert.False(t, result.Results[2].Updated)
	assert.Error(t, result.Err())
	assert.Equal(t, database.DuplicateKeyErr, KindOf(result.Results[2].Err))

	_, err = repo.BulkUpdate(ctx, []any{accounts[0].ID}, Attributes{"nope": 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestBulkSafeUpdate(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()
	accounts := seed(t, repo, "ann@example.com", "bob@example.com", "cat@example.com")

	updated, err := repo.BulkSafeUpdate(ctx, []any{accounts[0].ID, accounts[1].ID}, Attributes{"balance": 7})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	for _, a := range updated {
		assert.Equal(t, int64(7), a.Balance)
	}

	_, err = repo.BulkSafeUpdate(ctx, []any{accounts[1].ID, accounts[2].ID}, Attributes{"email": "dup@example.com", "balance": 9})
	require.Error(t, err)
	assert.Equal(t, 1, reporter.count())

	all, err := repo.GetByIds(ctx, []any{accounts[0].ID, accounts[1].ID, accounts[2].ID})
	require.NoError(t, err)
	for _, a := range all {
		assert.NotEqual(t, int64(9), a.Balance)
	}
}

func TestDelete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	accounts := seed(t, repo, "ann@example.com", "bob@example.com", "cat@example.com")

	deleted, err := repo.Delete(ctx, accounts[0].ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, accounts[0].ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.BulkDelete(ctx, []any{accounts[1].ID, accounts[2].ID, int64(999)})
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 0, countAccounts(t, repo))

	deleted, err = repo.BulkDelete(ctx, []any{})
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestWithAutoTransactionReturnsCopy(t *testing.T) {
	repo, _ := newTestRepo(t)

	manual := repo.WithAutoTransaction(false)
	assert.True(t, repo.AutoTransaction())
	assert.False(t, manual.AutoTransaction())
	assert.True(t, manual.WithAutoTransaction(true).AutoTransaction())
}

func TestTransactionClosureCommits(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()

	err := repo.TransactionClosure(ctx, func(ctx context.Context, tx Repository[account]) error {
		assert.False(t, tx.AutoTransaction())
		if _, err := tx.BulkCreate(ctx, []*account{{Email: "a@example.com"}, {Email: "b@example.com"}}); err != nil {
			return err
		}
		_, err := tx.Create(ctx, &account{Email: "c@example.com"})
		return err
	})
	require.NoError(t, err)
	assert.True(t, repo.AutoTransaction())
	assert.Equal(t, 3, countAccounts(t, repo))
	assert.Zero(t, reporter.count())
}

func TestTransactionClosureRollsBackOnError(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.TransactionClosure(ctx, func(ctx context.Context, tx Repository[account]) error {
		if _, err := tx.Create(ctx, &account{Email: "a@example.com"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, repo.AutoTransaction())
	assert.Equal(t, 0, countAccounts(t, repo))
	assert.Equal(t, 1, reporter.count())
}

func TestTransactionClosureReportsInnerFailureOnce(t *testing.T) {
	repo, reporter := newTestRepo(t)
	ctx := context.Background()

	err := repo.TransactionClosure(ctx, func(ctx context.Context, tx Repository[account]) error {
		_, err := tx.BulkCreate(ctx, []*account{{Email: "a@example.com"}, {Email: "a@example.com"}})
		return err
	})
	require.Error(t, err)
	assert.Equal(t, database.DuplicateKeyErr, KindOf(err))
	assert.Equal(t, 0, countAccounts(t, repo))
	assert.Equal(t, 1, reporter.count())
}

func TestTransactionClosureRollsBackOnPanic(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = repo.TransactionClosure(ctx, func(ctx context.Context, tx Repository[account]) error {
			if _, err := tx.Create(ctx, &account{Email: "a@example.com"}); err != nil {
				return err
			}
			panic("closure failed")
		})
	})
	assert.True(t, repo.AutoTransaction())
	assert.Equal(t, 0, countAccounts(t, repo))
}

func TestRunInTxComposesRepositories(t *testing.T) {
	db := newTestDB(t)
	reporter := &recordingReporter{}
	accounts := NewRepository[account](db, WithReporter(reporter))
	ctx := context.Background()

	err := RunInTx(ctx, db, reporter, func(ctx context.Context, tx bun.Tx) error {
		first := accounts.WithTx(tx)
		second := NewRepository[account](tx, WithReporter(reporter)).WithAutoTransaction(false)
		if _, err := first.Create(ctx, &account{Email: "a@example.com"}); err != nil {
			return err
		}
		_, err := second.Create(ctx, &account{Email: "a@example.com"})
		return err
	})
	require.Error(t, err)
	assert.Equal(t, 0, countAccounts(t, accounts))
	assert.Equal(t, 1, reporter.count())
}

func TestPage(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	seed(t, repo, "a@example.com", "b@example.com", "c@example.com", "d@example.com", "e@example.com")

	page, err := repo.Page(ctx, types.NewPageRequestWithOrders(2, 2, []string{"id ASC"}))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c@example.com", page.Items[0].Email)

	filtered, err := repo.Page(ctx, types.NewPageRequestWithFilter(1, 10, types.NewQueryFilter("email LIKE ?", "a%")))
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Total)

	empty, err := repo.Page(ctx, types.NewPageRequestWithFilter(1, 10, types.NewQueryFilter("email = ?", "none")))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Items)

	broken, err := repo.Page(ctx, types.NewPageRequestWithFilter(1, 10, types.NewQueryFilter("no_such_column = ?", 1)))
	require.Error(t, err)
	assert.Nil(t, broken)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "page", se.Op)
}
