// Package graph talks to the chain indexer (subgraph) that exposes a node's
// on-chain payment channels, and decides commitment from the returned data.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rpch-net/discovery-platform/internal/core"
	"github.com/rpch-net/discovery-platform/pkg/logger"
)

// Query for the channels needed to decide whether a single node is committed.
const commitmentQuery = `query getAccount($id: String!) {
  account(id: $id) {
    fromChannels(where: { status: OPEN }) {
      id
      balance
    }
  }
}`

// Query for every account changed since a block, used by bulk re-verification
// sweeps rather than single-node checks.
const accountsFromBlockQuery = `query getAccountsFromBlockChange($blockNumber: Int!) {
  accounts(where: { _change_block: { number_gte: $blockNumber } }) {
    id
    balance
    isActive
    openChannelsCount
    fromChannels {
      status
      redeemedTicketCount
      commitment
      lastOpenedAt
    }
  }
}`

// Channel is one open payment channel originating from a node.
type Channel struct {
	ID      string
	Balance *big.Int
}

// Snapshot is the transient view of a node's open channels returned by the
// indexer. It is never persisted.
type Snapshot struct {
	Channels []Channel
}

// ChannelCount returns the number of observed open channels.
func (s Snapshot) ChannelCount() int { return len(s.Channels) }

// TotalBalance returns the sum of balances across all observed channels.
func (s Snapshot) TotalBalance() *big.Int {
	total := big.NewInt(0)
	for _, ch := range s.Channels {
		if ch.Balance != nil {
			total.Add(total, ch.Balance)
		}
	}
	return total
}

// ChannelState describes one channel in a bulk account update.
type ChannelState struct {
	Status              string
	RedeemedTicketCount int64
	Commitment          string
	LastOpenedAt        string
}

// AccountUpdate is one account row from the bulk re-verification query.
type AccountUpdate struct {
	ID                string
	Balance           *big.Int
	IsActive          bool
	OpenChannelsCount int
	FromChannels      []ChannelState
}

// Client fetches commitment data from the subgraph over HTTP.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	log        *logger.Logger
}

// NewClient constructs a subgraph client for the given endpoint.
func NewClient(httpClient *http.Client, endpoint string, log *logger.Logger) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, core.RequiredError("subgraph endpoint")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse subgraph endpoint: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("graph")
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   parsed,
		log:        log,
	}, nil
}

// GetChannels fetches a node's open channels. Any transport or parse failure
// is reported as indeterminate so callers never mistake indexer downtime for
// proof of non-commitment.
func (c *Client) GetChannels(ctx context.Context, nodeID string) (Snapshot, error) {
	body, err := c.query(ctx, commitmentQuery, map[string]interface{}{"id": nodeID})
	if err != nil {
		return Snapshot{}, err
	}

	account := gjson.GetBytes(body, "data.account")
	if !account.Exists() {
		return Snapshot{}, fmt.Errorf("%w: subgraph response has no account data", core.ErrIndeterminate)
	}

	var snap Snapshot
	var parseErr error
	account.Get("fromChannels").ForEach(func(_, ch gjson.Result) bool {
		balance, ok := new(big.Int).SetString(ch.Get("balance").String(), 10)
		if !ok {
			parseErr = fmt.Errorf("%w: malformed channel balance %q", core.ErrIndeterminate, ch.Get("balance").String())
			return false
		}
		snap.Channels = append(snap.Channels, Channel{
			ID:      ch.Get("id").String(),
			Balance: balance,
		})
		return true
	})
	if parseErr != nil {
		return Snapshot{}, parseErr
	}
	return snap, nil
}

// GetUpdatedAccounts fetches every account changed at or after blockNumber.
func (c *Client) GetUpdatedAccounts(ctx context.Context, blockNumber int64) ([]AccountUpdate, error) {
	body, err := c.query(ctx, accountsFromBlockQuery, map[string]interface{}{"blockNumber": blockNumber})
	if err != nil {
		return nil, err
	}

	accounts := gjson.GetBytes(body, "data.accounts")
	if !accounts.Exists() {
		return nil, fmt.Errorf("%w: subgraph response has no accounts data", core.ErrIndeterminate)
	}

	var result []AccountUpdate
	var parseErr error
	accounts.ForEach(func(_, acct gjson.Result) bool {
		balance, ok := new(big.Int).SetString(acct.Get("balance").String(), 10)
		if !ok {
			parseErr = fmt.Errorf("%w: malformed account balance %q", core.ErrIndeterminate, acct.Get("balance").String())
			return false
		}
		update := AccountUpdate{
			ID:                acct.Get("id").String(),
			Balance:           balance,
			IsActive:          acct.Get("isActive").Bool(),
			OpenChannelsCount: int(acct.Get("openChannelsCount").Int()),
		}
		acct.Get("fromChannels").ForEach(func(_, ch gjson.Result) bool {
			update.FromChannels = append(update.FromChannels, ChannelState{
				Status:              ch.Get("status").String(),
				RedeemedTicketCount: ch.Get("redeemedTicketCount").Int(),
				Commitment:          ch.Get("commitment").String(),
				LastOpenedAt:        ch.Get("lastOpenedAt").String(),
			})
			return true
		})
		result = append(result, update)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return result, nil
}

func (c *Client) query(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal subgraph query: %v", core.ErrIndeterminate, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build subgraph request: %v", core.ErrIndeterminate, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: subgraph request: %v", core.ErrIndeterminate, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: subgraph status %d", core.ErrIndeterminate, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read subgraph response: %v", core.ErrIndeterminate, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed subgraph response", core.ErrIndeterminate)
	}
	return body, nil
}
