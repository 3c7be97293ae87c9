// Package postgres persists the registry in PostgreSQL. All mutations are
// expected to run inside a transaction placed in context by the tx runner;
// the store falls back to the pool for standalone reads.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"kycnet/internal/registry"
	id "kycnet/pkg/domain"
	"kycnet/pkg/platform/sentinel"
	"kycnet/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Store implements registry.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies the registry DDL. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply registry schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *Store) GetBank(ctx context.Context, bankID id.BankID) (registry.Bank, error) {
	const query = `
		SELECT id, name, reg_number, complaints_reported, kyc_count, allowed_to_vote
		FROM banks WHERE id = $1
	`
	var bank registry.Bank
	err := s.q(ctx).QueryRowContext(ctx, query, bankID.String()).Scan(
		&bank.ID, &bank.Name, &bank.RegNumber,
		&bank.ComplaintsReported, &bank.KycCount, &bank.AllowedToVote,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Bank{}, sentinel.ErrNotFound
	}
	if err != nil {
		return registry.Bank{}, fmt.Errorf("get bank: %w", err)
	}
	return bank, nil
}

func (s *Store) CreateBank(ctx context.Context, bank registry.Bank) error {
	const query = `
		INSERT INTO banks (id, name, reg_number, complaints_reported, kyc_count, allowed_to_vote)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := s.q(ctx).ExecContext(ctx, query,
		bank.ID.String(), bank.Name, bank.RegNumber,
		bank.ComplaintsReported, bank.KycCount, bank.AllowedToVote,
	)
	if err != nil {
		return fmt.Errorf("create bank: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create bank: %w", err)
	}
	if inserted == 0 {
		return sentinel.ErrConflict
	}
	return s.adjustTotalBanks(ctx, +1)
}

func (s *Store) UpdateBank(ctx context.Context, bank registry.Bank) error {
	const query = `
		UPDATE banks
		SET name = $2, reg_number = $3, complaints_reported = $4,
		    kyc_count = $5, allowed_to_vote = $6
		WHERE id = $1
	`
	result, err := s.q(ctx).ExecContext(ctx, query,
		bank.ID.String(), bank.Name, bank.RegNumber,
		bank.ComplaintsReported, bank.KycCount, bank.AllowedToVote,
	)
	if err != nil {
		return fmt.Errorf("update bank: %w", err)
	}
	return requireAffected(result, "update bank")
}

func (s *Store) DeleteBank(ctx context.Context, bankID id.BankID) error {
	result, err := s.q(ctx).ExecContext(ctx, `DELETE FROM banks WHERE id = $1`, bankID.String())
	if err != nil {
		return fmt.Errorf("delete bank: %w", err)
	}
	if err := requireAffected(result, "delete bank"); err != nil {
		return err
	}
	return s.adjustTotalBanks(ctx, -1)
}

func (s *Store) TotalBanks(ctx context.Context) (int, error) {
	var total int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT value FROM registry_meta WHERE key = 'total_banks'`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total banks: %w", err)
	}
	return total, nil
}

func (s *Store) adjustTotalBanks(ctx context.Context, delta int) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`UPDATE registry_meta SET value = value + $1 WHERE key = 'total_banks'`, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust total banks: %w", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, username id.Username) (registry.Customer, error) {
	const query = `
		SELECT username, data, kyc_status, up_votes, down_votes, bank
		FROM customers WHERE username = $1
	`
	var customer registry.Customer
	err := s.q(ctx).QueryRowContext(ctx, query, username.String()).Scan(
		&customer.Username, &customer.Data, &customer.KycStatus,
		&customer.UpVotes, &customer.DownVotes, &customer.Bank,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Customer{}, sentinel.ErrNotFound
	}
	if err != nil {
		return registry.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer registry.Customer) error {
	const query = `
		INSERT INTO customers (username, data, kyc_status, up_votes, down_votes, bank)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (username) DO NOTHING
	`
	result, err := s.q(ctx).ExecContext(ctx, query,
		customer.Username.String(), customer.Data, customer.KycStatus,
		customer.UpVotes, customer.DownVotes, customer.Bank.String(),
	)
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	if inserted == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer registry.Customer) error {
	const query = `
		UPDATE customers
		SET data = $2, kyc_status = $3, up_votes = $4, down_votes = $5, bank = $6
		WHERE username = $1
	`
	result, err := s.q(ctx).ExecContext(ctx, query,
		customer.Username.String(), customer.Data, customer.KycStatus,
		customer.UpVotes, customer.DownVotes, customer.Bank.String(),
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	return requireAffected(result, "update customer")
}

func (s *Store) GetRequest(ctx context.Context, username id.Username) (registry.KycRequest, error) {
	const query = `SELECT username, bank, data FROM kyc_requests WHERE username = $1`
	var request registry.KycRequest
	err := s.q(ctx).QueryRowContext(ctx, query, username.String()).Scan(
		&request.Username, &request.Bank, &request.Data,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.KycRequest{}, sentinel.ErrNotFound
	}
	if err != nil {
		return registry.KycRequest{}, fmt.Errorf("get kyc request: %w", err)
	}
	return request, nil
}

func (s *Store) CreateRequest(ctx context.Context, request registry.KycRequest) error {
	const query = `
		INSERT INTO kyc_requests (username, bank, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
	`
	result, err := s.q(ctx).ExecContext(ctx, query,
		request.Username.String(), request.Bank.String(), request.Data,
	)
	if err != nil {
		return fmt.Errorf("create kyc request: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create kyc request: %w", err)
	}
	if inserted == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Store) DeleteRequest(ctx context.Context, username id.Username) error {
	result, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM kyc_requests WHERE username = $1`, username.String(),
	)
	if err != nil {
		return fmt.Errorf("delete kyc request: %w", err)
	}
	return requireAffected(result, "delete kyc request")
}

func (s *Store) HasVoted(ctx context.Context, username id.Username, bankID id.BankID) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM vote_markers WHERE username = $1 AND bank_id = $2
		)
	`
	var voted bool
	err := s.q(ctx).QueryRowContext(ctx, query, username.String(), bankID.String()).Scan(&voted)
	if err != nil {
		return false, fmt.Errorf("has voted: %w", err)
	}
	return voted, nil
}

func (s *Store) MarkVoted(ctx context.Context, username id.Username, bankID id.BankID) error {
	const query = `
		INSERT INTO vote_markers (username, bank_id)
		VALUES ($1, $2)
		ON CONFLICT (username, bank_id) DO NOTHING
	`
	if _, err := s.q(ctx).ExecContext(ctx, query, username.String(), bankID.String()); err != nil {
		return fmt.Errorf("mark voted: %w", err)
	}
	return nil
}

func (s *Store) ClearVotes(ctx context.Context, username id.Username) error {
	if _, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM vote_markers WHERE username = $1`, username.String(),
	); err != nil {
		return fmt.Errorf("clear votes: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
