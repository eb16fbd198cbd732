package postgres

import (
	"context"
	"database/sql"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/rpch-net/discovery-platform/internal/core"
	"github.com/rpch-net/discovery-platform/internal/domain/client"
	"github.com/rpch-net/discovery-platform/internal/domain/node"
	"github.com/rpch-net/discovery-platform/internal/domain/quota"
)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	return New(db), mock, func() { db.Close() }
}

func nodeRows(n node.RegisteredNode) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "chain_id", "has_exit_node", "api_endpoint", "api_token", "native_address",
		"exit_node_pub_key", "honesty_score", "status", "total_amount_funded", "created_at", "updated_at",
	}).AddRow(
		n.ID, n.ChainID, n.HasExitNode, n.APIEndpoint, n.APIToken, n.NativeAddress,
		n.ExitNodePubKey, n.HonestyScore, string(n.Status), n.TotalAmountFunded.String(), n.CreatedAt, n.UpdatedAt,
	)
}

func TestStore_CreateNodeMapsUniqueViolationToConflict(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	mock.ExpectExec("INSERT INTO registered_nodes").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.CreateNode(context.Background(), node.RegisteredNode{
		ID:          "peer1",
		APIEndpoint: "endpoint:1337",
		Status:      node.StatusFresh,
	})
	if !core.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestStore_GetNodeNotFound(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM registered_nodes").
		WithArgs("absent").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetNode(context.Background(), "absent")
	if !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_GetNodeParsesNumericFunding(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	now := time.Now().UTC()
	funded, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	want := node.RegisteredNode{
		ID:                "peer1",
		ChainID:           100,
		HasExitNode:       true,
		APIEndpoint:       "endpoint:1337",
		Status:            node.StatusFresh,
		TotalAmountFunded: funded,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	mock.ExpectQuery("SELECT (.+) FROM registered_nodes").
		WithArgs("peer1").
		WillReturnRows(nodeRows(want))

	got, err := store.GetNode(context.Background(), "peer1")
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if got.TotalAmountFunded.Cmp(funded) != 0 {
		t.Fatalf("expected funded %s, got %s", funded, got.TotalAmountFunded)
	}
	if got.Status != node.StatusFresh {
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestStore_ListNodesBuildsFilterConditions(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	now := time.Now().UTC()
	n := node.RegisteredNode{
		ID:                "peer1",
		ChainID:           100,
		HasExitNode:       true,
		APIEndpoint:       "endpoint:1337",
		Status:            node.StatusFresh,
		TotalAmountFunded: big.NewInt(0),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	mock.ExpectQuery(`SELECT (.+) FROM registered_nodes WHERE has_exit_node = \$1 AND status = \$2 AND NOT \(id = ANY\(\$3\)\) ORDER BY id`).
		WillReturnRows(nodeRows(n))

	yes := true
	fresh := node.StatusFresh
	nodes, err := store.ListNodes(context.Background(), node.Filter{
		HasExitNode: &yes,
		Status:      &fresh,
		ExcludeIDs:  []string{"peer2"},
	})
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "peer1" {
		t.Fatalf("unexpected result %+v", nodes)
	}
}

func TestStore_DeleteNodeNotFoundOnZeroRows(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	mock.ExpectExec("DELETE FROM registered_nodes").
		WithArgs("absent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteNode(context.Background(), "absent"); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_CreateFundingRequestMapsForeignKeyToNotFound(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	mock.ExpectQuery("INSERT INTO funding_requests").
		WillReturnError(&pq.Error{Code: "23503"})

	_, err := store.CreateFundingRequest(context.Background(), node.FundingRequest{
		RegisteredNodeID: "absent",
		RequestID:        "req-1",
		Amount:           big.NewInt(1),
	})
	if !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_CreateQuotaReturnsAssignedID(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	mock.ExpectQuery("INSERT INTO quotas").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	e, err := store.CreateQuota(context.Background(), quota.Entry{
		ClientID:    "client",
		PaidBy:      "sponsor",
		ActionTaker: "discovery",
		Quota:       big.NewInt(-10000),
	})
	if err != nil {
		t.Fatalf("create quota: %v", err)
	}
	if e.ID != 7 {
		t.Fatalf("expected assigned id 7, got %d", e.ID)
	}
}

func TestStore_SumQuotasPaidBy(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("sponsor").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("99989999"))

	sum, err := store.SumQuotasPaidBy(context.Background(), "sponsor")
	if err != nil {
		t.Fatalf("sum quotas: %v", err)
	}
	if sum.String() != "99989999" {
		t.Fatalf("expected 99989999, got %s", sum)
	}
}

func TestStore_SumQuotasRejectsMalformedNumeric(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("sponsor").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("not-a-number"))

	if _, err := store.SumQuotasPaidBy(context.Background(), "sponsor"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStore_GetClientScansLabels(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM clients").
		WithArgs("client").
		WillReturnRows(sqlmock.NewRows([]string{"id", "payment", "labels", "created_at", "updated_at"}).
			AddRow("client", client.PaymentPremium, "{eth,relay}", now, now))

	c, err := store.GetClient(context.Background(), "client")
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if len(c.Labels) != 2 || c.Labels[0] != "eth" {
		t.Fatalf("unexpected labels %+v", c.Labels)
	}
}

func TestStore_UpdateNodeNotFoundOnZeroRows(t *testing.T) {
	store, mock, done := newStore(t)
	defer done()

	now := time.Now().UTC()
	existing := node.RegisteredNode{
		ID:                "peer1",
		ChainID:           100,
		APIEndpoint:       "endpoint:1337",
		Status:            node.StatusFresh,
		TotalAmountFunded: big.NewInt(0),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	mock.ExpectQuery("SELECT (.+) FROM registered_nodes").
		WithArgs("peer1").
		WillReturnRows(nodeRows(existing))
	mock.ExpectExec("UPDATE registered_nodes").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateNode(context.Background(), existing)
	if !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
