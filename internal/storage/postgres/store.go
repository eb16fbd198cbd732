// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/rpch-net/discovery-platform/internal/core"
	"github.com/rpch-net/discovery-platform/internal/domain/client"
	"github.com/rpch-net/discovery-platform/internal/domain/node"
	"github.com/rpch-net/discovery-platform/internal/domain/quota"
	"github.com/rpch-net/discovery-platform/internal/storage"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.RegistryStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- RegistryStore ----------------------------------------------------------

func (s *Store) CreateNode(ctx context.Context, n node.RegisteredNode) (node.RegisteredNode, error) {
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.TotalAmountFunded == nil {
		n.TotalAmountFunded = big.NewInt(0)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registered_nodes (id, chain_id, has_exit_node, api_endpoint, api_token, native_address, exit_node_pub_key, honesty_score, status, total_amount_funded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, n.ID, n.ChainID, n.HasExitNode, n.APIEndpoint, n.APIToken, n.NativeAddress, n.ExitNodePubKey, n.HonestyScore, string(n.Status), n.TotalAmountFunded.String(), n.CreatedAt, n.UpdatedAt)
	if err != nil {
		if isPQError(err, pqUniqueViolation) {
			return node.RegisteredNode{}, core.NewConflictError("registered node", n.ID)
		}
		return node.RegisteredNode{}, core.NewStoreError("insert registered node", err)
	}
	return n, nil
}

func (s *Store) UpdateNode(ctx context.Context, n node.RegisteredNode) (node.RegisteredNode, error) {
	existing, err := s.GetNode(ctx, n.ID)
	if err != nil {
		return node.RegisteredNode{}, err
	}

	n.CreatedAt = existing.CreatedAt
	n.UpdatedAt = time.Now().UTC()
	if n.TotalAmountFunded == nil {
		n.TotalAmountFunded = existing.TotalAmountFunded
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE registered_nodes
		SET chain_id = $2, has_exit_node = $3, api_endpoint = $4, api_token = $5, native_address = $6, exit_node_pub_key = $7, honesty_score = $8, status = $9, total_amount_funded = $10, updated_at = $11
		WHERE id = $1
	`, n.ID, n.ChainID, n.HasExitNode, n.APIEndpoint, n.APIToken, n.NativeAddress, n.ExitNodePubKey, n.HonestyScore, string(n.Status), n.TotalAmountFunded.String(), n.UpdatedAt)
	if err != nil {
		return node.RegisteredNode{}, core.NewStoreError("update registered node", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return node.RegisteredNode{}, core.NewNotFoundError("registered node", n.ID)
	}
	return n, nil
}

const nodeColumns = `id, chain_id, has_exit_node, api_endpoint, api_token, native_address, exit_node_pub_key, honesty_score, status, total_amount_funded::text, created_at, updated_at`

func (s *Store) GetNode(ctx context.Context, id string) (node.RegisteredNode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+`
		FROM registered_nodes
		WHERE id = $1
	`, id)

	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return node.RegisteredNode{}, core.NewNotFoundError("registered node", id)
		}
		return node.RegisteredNode{}, core.NewStoreError("get registered node", err)
	}
	return n, nil
}

func (s *Store) ListNodes(ctx context.Context, filter node.Filter) ([]node.RegisteredNode, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.HasExitNode != nil {
		args = append(args, *filter.HasExitNode)
		conds = append(conds, fmt.Sprintf("has_exit_node = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(filter.ExcludeIDs) > 0 {
		args = append(args, pq.Array(filter.ExcludeIDs))
		conds = append(conds, fmt.Sprintf("NOT (id = ANY($%d))", len(args)))
	}

	query := `SELECT ` + nodeColumns + ` FROM registered_nodes`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewStoreError("list registered nodes", err)
	}
	defer rows.Close()

	var result []node.RegisteredNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, core.NewStoreError("scan registered node", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("list registered nodes", err)
	}
	return result, nil
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM registered_nodes WHERE id = $1
	`, id)
	if err != nil {
		return core.NewStoreError("delete registered node", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return core.NewNotFoundError("registered node", id)
	}
	return nil
}

func (s *Store) CreateFundingRequest(ctx context.Context, req node.FundingRequest) (node.FundingRequest, error) {
	req.CreatedAt = time.Now().UTC()
	if req.Amount == nil {
		req.Amount = big.NewInt(0)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO funding_requests (registered_node_id, request_id, amount, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, req.RegisteredNodeID, req.RequestID, req.Amount.String(), req.CreatedAt).Scan(&req.ID)
	if err != nil {
		if isPQError(err, pqForeignKeyViolation) {
			return node.FundingRequest{}, core.NewNotFoundError("registered node", req.RegisteredNodeID)
		}
		return node.FundingRequest{}, core.NewStoreError("insert funding request", err)
	}
	return req, nil
}

func (s *Store) ListFundingRequests(ctx context.Context, nodeID string) ([]node.FundingRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, registered_node_id, request_id, amount::text, created_at
		FROM funding_requests
		WHERE $1 = '' OR registered_node_id = $1
		ORDER BY id
	`, nodeID)
	if err != nil {
		return nil, core.NewStoreError("list funding requests", err)
	}
	defer rows.Close()

	var result []node.FundingRequest
	for rows.Next() {
		var (
			req       node.FundingRequest
			amountRaw string
		)
		if err := rows.Scan(&req.ID, &req.RegisteredNodeID, &req.RequestID, &amountRaw, &req.CreatedAt); err != nil {
			return nil, core.NewStoreError("scan funding request", err)
		}
		req.Amount, err = parseBigInt(amountRaw)
		if err != nil {
			return nil, core.NewStoreError("parse funding amount", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("list funding requests", err)
	}
	return result, nil
}

// --- ClientStore ------------------------------------------------------------

func (s *Store) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, payment, labels, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Payment, pq.Array(c.Labels), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isPQError(err, pqUniqueViolation) {
			return client.Client{}, core.NewConflictError("client", c.ID)
		}
		return client.Client{}, core.NewStoreError("insert client", err)
	}
	return c, nil
}

func (s *Store) UpdateClient(ctx context.Context, c client.Client) (client.Client, error) {
	existing, err := s.GetClient(ctx, c.ID)
	if err != nil {
		return client.Client{}, err
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET payment = $2, labels = $3, updated_at = $4
		WHERE id = $1
	`, c.ID, c.Payment, pq.Array(c.Labels), c.UpdatedAt)
	if err != nil {
		return client.Client{}, core.NewStoreError("update client", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return client.Client{}, core.NewNotFoundError("client", c.ID)
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (client.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, payment, labels, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)

	var c client.Client
	if err := row.Scan(&c.ID, &c.Payment, pq.Array(&c.Labels), &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return client.Client{}, core.NewNotFoundError("client", id)
		}
		return client.Client{}, core.NewStoreError("get client", err)
	}
	return c, nil
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM clients WHERE id = $1
	`, id)
	if err != nil {
		return core.NewStoreError("delete client", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return core.NewNotFoundError("client", id)
	}
	return nil
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) CreateQuota(ctx context.Context, e quota.Entry) (quota.Entry, error) {
	e.CreatedAt = time.Now().UTC()
	if e.Quota == nil {
		e.Quota = big.NewInt(0)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quotas (client_id, paid_by, action_taker, quota, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, e.ClientID, e.PaidBy, e.ActionTaker, e.Quota.String(), e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return quota.Entry{}, core.NewStoreError("insert quota", err)
	}
	return e, nil
}

func (s *Store) GetQuota(ctx context.Context, id int64) (quota.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, paid_by, action_taker, quota::text, created_at
		FROM quotas
		WHERE id = $1
	`, id)

	var (
		e        quota.Entry
		quotaRaw string
	)
	if err := row.Scan(&e.ID, &e.ClientID, &e.PaidBy, &e.ActionTaker, &quotaRaw, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quota.Entry{}, core.NewNotFoundError("quota", "")
		}
		return quota.Entry{}, core.NewStoreError("get quota", err)
	}
	var err error
	e.Quota, err = parseBigInt(quotaRaw)
	if err != nil {
		return quota.Entry{}, core.NewStoreError("parse quota amount", err)
	}
	return e, nil
}

func (s *Store) DeleteQuota(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM quotas WHERE id = $1
	`, id)
	if err != nil {
		return core.NewStoreError("delete quota", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return core.NewNotFoundError("quota", "")
	}
	return nil
}

func (s *Store) SumQuotasPaidBy(ctx context.Context, accountID string) (*big.Int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quota), 0)::text
		FROM quotas
		WHERE paid_by = $1
	`, accountID)

	var sumRaw string
	if err := row.Scan(&sumRaw); err != nil {
		return nil, core.NewStoreError("sum quotas", err)
	}
	return parseBigInt(sumRaw)
}

// --- helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (node.RegisteredNode, error) {
	var (
		n         node.RegisteredNode
		status    string
		fundedRaw string
	)
	if err := row.Scan(&n.ID, &n.ChainID, &n.HasExitNode, &n.APIEndpoint, &n.APIToken, &n.NativeAddress, &n.ExitNodePubKey, &n.HonestyScore, &status, &fundedRaw, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return node.RegisteredNode{}, err
	}
	n.Status = node.Status(status)
	var err error
	n.TotalAmountFunded, err = parseBigInt(fundedRaw)
	if err != nil {
		return node.RegisteredNode{}, err
	}
	return n, nil
}

func parseBigInt(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", raw)
	}
	return v, nil
}

func isPQError(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}
