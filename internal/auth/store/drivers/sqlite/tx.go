package sqlite

import (
	"context"
	"database/sql"

	"github.com/eslschool/esladmin/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the owning Store keeps the database open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(context.Context) error { return nil }

func (t *txStore) Tx(context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(context.Context, func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations(context.Context) error { return nil }

func (t *txStore) Users() store.Users                         { return &usersRepo{db: t.tx} }
func (t *txStore) Roles() store.Roles                         { return &rolesRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens         { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) BlacklistedTokens() store.BlacklistedTokens { return &blacklistRepo{db: t.tx} }
