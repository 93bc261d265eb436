package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/ruralpay/ledger/internal/models"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, customer_id, iban, currency, balance, overdraft_limit, status, version, created_at, updated_at`

const transferColumns = `id, from_account_id, to_account_id, amount, currency, channel, status, external_iban,
	description, reversal_of_transfer_id, reversed_by_transfer_id, reversed_at, created_at`

const entryColumns = `id, account_id, amount, currency, direction, description, reference_code, created_at`

// PostgresStore implements AccountStore on PostgreSQL. AcquireForUpdate is a
// SELECT ... FOR UPDATE inside the unit's transaction, so the row lock lasts
// until commit or rollback. Plain reads use MVCC snapshots and never block.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a        models.Account
		currency string
		balance  decimal.Decimal
		status   string
	)
	err := row.Scan(&a.ID, &a.CustomerID, &a.IBAN, &currency, &balance, &a.OverdraftLimit,
		&status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Currency = models.Currency(currency)
	a.Balance = models.NewMoney(balance, a.Currency)
	a.Status = models.AccountStatus(status)
	return &a, nil
}

func scanTransfer(row rowScanner) (*models.Transfer, error) {
	var (
		t          models.Transfer
		toAccount  sql.NullString
		amount     decimal.Decimal
		currency   string
		channel    string
		status     string
		extIBAN    sql.NullString
		reversalOf sql.NullString
		reversedBy sql.NullString
		reversedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.FromAccountID, &toAccount, &amount, &currency, &channel, &status, &extIBAN,
		&t.Description, &reversalOf, &reversedBy, &reversedAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	t.Amount = models.NewMoney(amount, models.Currency(currency))
	t.Channel = models.Channel(channel)
	t.Status = models.TransferStatus(status)
	t.ToAccountID = nullStringPtr(toAccount)
	t.ExternalIBAN = nullStringPtr(extIBAN)
	t.ReversalOfTransferID = nullStringPtr(reversalOf)
	t.ReversedByTransferID = nullStringPtr(reversedBy)
	if reversedAt.Valid {
		v := reversedAt.Time
		t.ReversedAt = &v
	}
	return &t, nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func getAccount(ctx context.Context, q querier, where string, arg any, suffix string) (*models.Account, error) {
	return scanAccount(q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+where+` = $1`+suffix, arg))
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return getAccount(ctx, s.db, "id", id, "")
}

func (s *PostgresStore) GetAccountByIBAN(ctx context.Context, iban string) (*models.Account, error) {
	return getAccount(ctx, s.db, "iban", iban, "")
}

func (s *PostgresStore) GetTransfer(ctx context.Context, id string) (*models.Transfer, error) {
	return scanTransfer(s.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id))
}

func (s *PostgresStore) ListEntries(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var (
			e         models.LedgerEntry
			amount    decimal.Decimal
			currency  string
			direction string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &amount, &currency, &direction,
			&e.Description, &e.ReferenceCode, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Amount = models.NewMoney(amount, models.Currency(currency))
		e.Direction = models.Direction(direction)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) WithinUnitOfWork(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &postgresUnit{tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

type postgresUnit struct {
	tx *sql.Tx
}

func (u *postgresUnit) AcquireForUpdate(ctx context.Context, accountID string) (*models.Account, error) {
	return getAccount(ctx, u.tx, "id", accountID, " FOR UPDATE")
}

func (u *postgresUnit) AcquireTransferForUpdate(ctx context.Context, transferID string) (*models.Transfer, error) {
	return scanTransfer(u.tx.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, transferID))
}

func (u *postgresUnit) SaveAccount(ctx context.Context, account *models.Account) error {
	result, err := u.tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, overdraft_limit = $2, status = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		account.Balance.Amount, account.OverdraftLimit, string(account.Status), account.UpdatedAt,
		account.ID, account.Version)
	if err != nil {
		return fmt.Errorf("update account %s: %w", account.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s: %w", account.ID, ErrConcurrentUpdate)
	}
	account.Version++
	return nil
}

func (u *postgresUnit) InsertTransfer(ctx context.Context, t *models.Transfer) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.FromAccountID, t.ToAccountID, t.Amount.Amount, string(t.Amount.Currency),
		string(t.Channel), string(t.Status), t.ExternalIBAN, t.Description,
		t.ReversalOfTransferID, t.ReversedByTransferID, t.ReversedAt, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && t.ReversalOfTransferID != nil {
			return ErrAlreadyReversed
		}
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (u *postgresUnit) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.AccountID, e.Amount.Amount, string(e.Amount.Currency), string(e.Direction),
		e.Description, e.ReferenceCode, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (u *postgresUnit) MarkReversed(ctx context.Context, transferID, reversalID string, at time.Time) error {
	result, err := u.tx.ExecContext(ctx, `
		UPDATE transfers
		SET reversed_by_transfer_id = $1, reversed_at = $2
		WHERE id = $3 AND reversed_by_transfer_id IS NULL`,
		reversalID, at, transferID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyReversed
		}
		return fmt.Errorf("mark transfer %s reversed: %w", transferID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == "23505"
	}
	return false
}
