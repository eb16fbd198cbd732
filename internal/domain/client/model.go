// Package client defines accounts that consume relay quota.
package client

import "time"

// Payment tiers recognised by the platform.
const (
	PaymentTrial   = "trial"
	PaymentPremium = "premium"
)

// Client is an account that usage quota is granted to or consumed by.
type Client struct {
	ID        string
	Payment   string
	Labels    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}
