// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tarancss/broker/lib/store"
)

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection'.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// WithTxn runs fn inside a READ COMMITTED transaction. The first statement takes a transaction
// scoped advisory lock on the txid, which serializes concurrent NOTIFY processing of the same
// transaction even before its row exists.
func (p *Postgres) WithTxn(ctx context.Context, txid string, fn func(store.Txn) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, txid); err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("could not lock txid %s: %w", txid, err)
	}

	if err = fn(&pgTxn{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()

		return err
	}

	return tx.Commit()
}

// UpsertStatus saves the heartbeat snapshot for st.Type, creating the row when absent.
func (p *Postgres) UpsertStatus(ctx context.Context, st store.WalletStatus) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_wallet_status (type, online, synced, crawling, blockheight, blockhash, blocktime, updatedat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (type) DO UPDATE SET
			online = EXCLUDED.online, synced = EXCLUDED.synced, crawling = EXCLUDED.crawling,
			blockheight = EXCLUDED.blockheight, blockhash = EXCLUDED.blockhash,
			blocktime = EXCLUDED.blocktime, updatedat = EXCLUDED.updatedat`,
		st.Type, st.Online, st.Synced, st.Crawling, st.BlockHeight, st.BlockHash, st.BlockTime, st.Updated)

	return err
}

// GetStatus returns the latest heartbeat snapshot for the coin.
func (p *Postgres) GetStatus(ctx context.Context, coin string) (st store.WalletStatus, err error) {
	err = p.db.QueryRowContext(ctx, `
		SELECT type, online, synced, crawling, blockheight, blockhash, blocktime, updatedat
		FROM user_wallet_status WHERE type = $1`, coin).
		Scan(&st.Type, &st.Online, &st.Synced, &st.Crawling, &st.BlockHeight, &st.BlockHash, &st.BlockTime, &st.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		err = store.ErrDataNotFound
	}

	return st, err
}

// AddAddress saves an address to user mapping if the address does not already exist.
func (p *Postgres) AddAddress(ctx context.Context, a store.WalletAddress) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_wallet_address (address, userid) VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING`, a.Address, a.UserID)

	return err
}

// pgTxn implements store.Txn on an open *sql.Tx.
type pgTxn struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *pgTxn) GetTx(txid string) (wt store.WalletTx, err error) {
	var amount decimal.NullDecimal

	err = t.tx.QueryRowContext(t.ctx, `
		SELECT txid, blockhash, cointype, txtype, confirms, complete, processed, userid, amount
		FROM user_wallet_tx WHERE txid = $1 AND txtype = $2`, txid, store.TxObserved).
		Scan(&wt.TxID, &wt.BlockHash, &wt.CoinType, &wt.TxType, &wt.Confirms, &wt.Complete, &wt.Processed, &wt.UserID, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return wt, store.ErrDataNotFound
	}

	if amount.Valid {
		wt.Amount = amount.Decimal
	}

	return wt, err
}

func (t *pgTxn) UpsertTxRow(wt store.WalletTx) error {
	// type TxObserved rows carry an empty userid so the composite uniqueness applies to them too
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO user_wallet_tx (txid, blockhash, cointype, txtype, confirms, complete, processed, userid, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8)
		ON CONFLICT (txid, txtype, userid) DO UPDATE SET
			blockhash = EXCLUDED.blockhash, confirms = EXCLUDED.confirms,
			complete = EXCLUDED.complete, processed = EXCLUDED.processed`,
		wt.TxID, wt.BlockHash, wt.CoinType, wt.TxType, wt.Confirms, wt.Complete, wt.Processed, wt.Amount)

	return err
}

func (t *pgTxn) GetJob(job string) (j store.WalletJob, err error) {
	err = t.tx.QueryRowContext(t.ctx, `
		SELECT job, state, type, data, userid, result FROM user_wallet_job WHERE job = $1`, job).
		Scan(&j.Job, &j.State, &j.Type, &j.Data, &j.UserID, &j.Result)
	if errors.Is(err, sql.ErrNoRows) {
		return j, store.ErrDataNotFound
	}

	return j, err
}

func (t *pgTxn) InsertJob(j store.WalletJob) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO user_wallet_job (job, state, type, data, userid, result)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		j.Job, j.State, j.Type, j.Data, j.UserID, j.Result)

	return err
}

func (t *pgTxn) UpdateJob(j store.WalletJob) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE user_wallet_job SET state = $2, type = $3, data = $4, userid = $5, result = $6
		WHERE job = $1`,
		j.Job, j.State, j.Type, j.Data, j.UserID, j.Result)

	return err
}

func (t *pgTxn) FindAddress(address string) (a store.WalletAddress, err error) {
	err = t.tx.QueryRowContext(t.ctx, `
		SELECT address, userid FROM user_wallet_address WHERE address = $1`, address).
		Scan(&a.Address, &a.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return a, store.ErrAddrNotFound
	}

	return a, err
}

func (t *pgTxn) InsertCreditRow(wt store.WalletTx) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO user_wallet_tx (txid, blockhash, cointype, txtype, confirms, complete, processed, userid, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		wt.TxID, wt.BlockHash, wt.CoinType, store.TxCredit, wt.Confirms, wt.Complete, wt.Processed, wt.UserID, wt.Amount)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return store.ErrDuplicateCredit
	}

	return err
}

func (t *pgTxn) GetOrInitBalance(userID string) (b store.WalletBalance, err error) {
	if _, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO user_wallet_balance (userid, balance) VALUES ($1, 0)
		ON CONFLICT (userid) DO NOTHING`, userID); err != nil {
		return b, err
	}

	err = t.tx.QueryRowContext(t.ctx, `
		SELECT userid, balance FROM user_wallet_balance WHERE userid = $1`, userID).
		Scan(&b.UserID, &b.Balance)

	return b, err
}

func (t *pgTxn) AddToBalance(userID string, amount decimal.Decimal) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE user_wallet_balance SET balance = balance + $2 WHERE userid = $1`, userID, amount)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrDataNotFound
	}

	return nil
}
