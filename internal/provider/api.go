package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/remittance/internal/wallet"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	var out tokenResponse
	err := c.do("exchange code", func() (*resty.Response, error) {
		return c.request(ctx, "").
			SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret).
			SetFormData(map[string]string{
				"code":       code,
				"grant_type": "authorization_code",
			}).
			SetResult(&out).
			Post("/oauth2/token")
	})
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: exchange code: empty access token", wallet.ErrProvider)
	}
	return out.AccessToken, nil
}

type userResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	Name      string `json:"name"`
	MemberAt  string `json:"memberAt"`
	Status    string `json:"status"`
}

// GetUser returns the account holder.
func (c *Client) GetUser(ctx context.Context, token string) (wallet.ProviderUser, error) {
	var out userResponse
	err := c.do("get user", func() (*resty.Response, error) {
		return c.request(ctx, token).SetResult(&out).Get("/v0/me")
	})
	if err != nil {
		return wallet.ProviderUser{}, err
	}
	name := out.FirstName
	if name == "" {
		name = out.Name
	}
	return wallet.ProviderUser{
		Name:     name,
		MemberID: out.ID,
		Verified: out.MemberAt != "",
		Blocked:  out.Status == "blocked",
	}, nil
}

type capability struct {
	Key          string   `json:"key"`
	Enabled      bool     `json:"enabled"`
	Requirements []string `json:"requirements"`
	Restrictions []string `json:"restrictions"`
}

func (c capability) usable() bool {
	return c.Enabled && len(c.Requirements) == 0 && len(c.Restrictions) == 0
}

// GetCapabilities reports whether the account may send and receive.
func (c *Client) GetCapabilities(ctx context.Context, token string) (wallet.Capabilities, error) {
	var out []capability
	err := c.do("get capabilities", func() (*resty.Response, error) {
		return c.request(ctx, token).SetResult(&out).Get("/v0/me/capabilities")
	})
	if err != nil {
		return wallet.Capabilities{}, err
	}
	var caps wallet.Capabilities
	for _, entry := range out {
		switch entry.Key {
		case "receives":
			caps.CanReceive = entry.usable()
		case "sends":
			caps.CanSend = entry.usable()
		}
	}
	return caps, nil
}

type cardResponse struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Currency  string `json:"currency"`
	Available string `json:"available"`
}

// GetCardBalance returns the available balance of a card.
func (c *Client) GetCardBalance(ctx context.Context, token, address string) (decimal.Decimal, error) {
	var out cardResponse
	err := c.do("get balance", func() (*resty.Response, error) {
		return c.request(ctx, token).SetResult(&out).Get("/v0/me/cards/" + url.PathEscape(address))
	})
	if err != nil {
		return decimal.Zero, err
	}
	if out.Available == "" {
		return decimal.Zero, nil
	}
	balance, err := decimal.NewFromString(out.Available)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: get balance: %w", wallet.ErrProvider, err)
	}
	return balance, nil
}

// EnsureCard returns the id of the platform card, creating it when missing.
func (c *Client) EnsureCard(ctx context.Context, token string) (string, error) {
	var cards []cardResponse
	err := c.do("list cards", func() (*resty.Response, error) {
		return c.request(ctx, token).
			SetQueryParam("q", "currency:"+c.cfg.Currency).
			SetResult(&cards).
			Get("/v0/me/cards")
	})
	if err != nil {
		return "", err
	}
	for _, card := range cards {
		if card.Label == c.cfg.CardLabel && card.ID != "" {
			return card.ID, nil
		}
	}

	var created cardResponse
	err = c.do("create card", func() (*resty.Response, error) {
		return c.request(ctx, token).
			SetBody(map[string]string{"label": c.cfg.CardLabel, "currency": c.cfg.Currency}).
			SetResult(&created).
			Post("/v0/me/cards")
	})
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: create card: empty card id", wallet.ErrProvider)
	}
	c.logger.Info("provider card created", "card", wallet.RedactAddress(created.ID))
	return created.ID, nil
}

type denomination struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type transactionRequest struct {
	Denomination denomination `json:"denomination"`
	Destination  string       `json:"destination"`
	Message      string       `json:"message,omitempty"`
}

type transactionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateTransaction prepares a transfer from the card to destination.
func (c *Client) CreateTransaction(ctx context.Context, token, cardID, destination string, amount decimal.Decimal, message string) (string, error) {
	var out transactionResponse
	err := c.do("create transaction", func() (*resty.Response, error) {
		return c.request(ctx, token).
			SetBody(transactionRequest{
				Denomination: denomination{Amount: amount.String(), Currency: c.cfg.Currency},
				Destination:  destination,
				Message:      message,
			}).
			SetResult(&out).
			Post("/v0/me/cards/" + url.PathEscape(cardID) + "/transactions")
	})
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: create transaction: empty id", wallet.ErrProvider)
	}
	return out.ID, nil
}

// CommitTransaction executes a prepared transaction.
func (c *Client) CommitTransaction(ctx context.Context, token, cardID, transactionID, message string) error {
	return c.do("commit transaction", func() (*resty.Response, error) {
		req := c.request(ctx, token)
		if message != "" {
			req.SetBody(map[string]string{"message": message})
		}
		return req.Post("/v0/me/cards/" + url.PathEscape(cardID) + "/transactions/" + url.PathEscape(transactionID) + "/commit")
	})
}
