// Package vault provides the HashiCorp Vault client the ledger uses to fetch
// the payment-processor webhook HMAC secret. When Vault is disabled the
// secret comes from configuration instead, so development setups need no
// Vault at all.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"payout-ledger/config"
)

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cached string
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// WebhookSecret returns the HMAC secret used to verify payment-processor
// webhook signatures. The Vault read is cached for the process lifetime;
// rotating the secret requires a restart.
func (c *Client) WebhookSecret(ctx context.Context) (string, error) {
	if !c.config.Enabled {
		if c.config.WebhookSecret == "" {
			return "", fmt.Errorf("no webhook secret configured and vault is disabled")
		}
		return c.config.WebhookSecret, nil
	}

	c.mu.RLock()
	cached := c.cached
	c.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.config.WebhookSecretPath)
	if err != nil {
		return "", fmt.Errorf("reading webhook secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret at %s", c.config.WebhookSecretPath)
	}

	// KV v2 nests the payload under "data".
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		data = secret.Data
	}
	value, ok := data["secret"].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("webhook secret at %s has no 'secret' field", c.config.WebhookSecretPath)
	}

	c.mu.Lock()
	c.cached = value
	c.mu.Unlock()
	return value, nil
}

// HealthCheck verifies Vault connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized || health.Sealed {
		return fmt.Errorf("vault is not ready (initialized=%v, sealed=%v)", health.Initialized, health.Sealed)
	}
	return nil
}
