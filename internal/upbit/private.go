package upbit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coinbot-kr/coinbot/models"
)

type accountResponse struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
}

// GetBalances fetches all account balances.
func (c *Client) GetBalances(ctx context.Context) ([]models.Balance, error) {
	if !c.HasKeys() {
		return nil, fmt.Errorf("api keys not configured")
	}

	req, err := c.privateRequest(ctx, http.MethodGet, "/accounts", nil)
	if err != nil {
		return nil, err
	}

	var raw []accountResponse
	err = c.http.DoJSON(ctx, req, &raw)
	countRequest("accounts", err)
	if err != nil {
		return nil, fmt.Errorf("fetching balances: %w", err)
	}

	out := make([]models.Balance, 0, len(raw))
	for _, a := range raw {
		amount, _ := strconv.ParseFloat(a.Balance, 64)
		locked, _ := strconv.ParseFloat(a.Locked, 64)
		out = append(out, models.Balance{
			Currency: a.Currency,
			Amount:   amount,
			Locked:   locked,
		})
	}
	return out, nil
}

// OrderResponse is the exchange's view of a placed order.
type OrderResponse struct {
	UUID           string `json:"uuid"`
	Side           string `json:"side"`
	OrdType        string `json:"ord_type"`
	State          string `json:"state"`
	Market         string `json:"market"`
	Price          string `json:"price"`
	Volume         string `json:"volume"`
	ExecutedVolume string `json:"executed_volume"`
	PaidFee        string `json:"paid_fee"`
}

// BuyMarketOrder places a market buy spending krwAmount.
func (c *Client) BuyMarketOrder(ctx context.Context, market string, krwAmount float64) (*OrderResponse, error) {
	// Upbit market buys are priced in KRW, whole won
	price := decimal.NewFromFloat(krwAmount).Round(0).String()
	values := url.Values{}
	values.Set("market", market)
	values.Set("side", "bid")
	values.Set("ord_type", "price")
	values.Set("price", price)
	return c.placeOrder(ctx, values)
}

// SellMarketOrder places a market sell of the given volume.
func (c *Client) SellMarketOrder(ctx context.Context, market string, volume float64) (*OrderResponse, error) {
	vol := decimal.NewFromFloat(volume).Round(8).String()
	values := url.Values{}
	values.Set("market", market)
	values.Set("side", "ask")
	values.Set("ord_type", "market")
	values.Set("volume", vol)
	return c.placeOrder(ctx, values)
}

func (c *Client) placeOrder(ctx context.Context, values url.Values) (*OrderResponse, error) {
	if !c.HasKeys() {
		return nil, fmt.Errorf("api keys not configured")
	}

	query := encodeQuery(values)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/orders", strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	token, err := authToken(c.accessKey, c.secretKey, query)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var resp OrderResponse
	err = c.http.DoJSON(ctx, req, &resp)
	countRequest("orders", err)
	if err != nil {
		return nil, fmt.Errorf("placing order: %w", err)
	}

	c.logger.Info().Str("market", values.Get("market")).Str("side", values.Get("side")).
		Str("uuid", resp.UUID).Msg("order placed")
	return &resp, nil
}

// GetOrder looks up an order by exchange uuid.
func (c *Client) GetOrder(ctx context.Context, orderUUID string) (*OrderResponse, error) {
	values := url.Values{}
	values.Set("uuid", orderUUID)

	req, err := c.privateRequest(ctx, http.MethodGet, "/order", values)
	if err != nil {
		return nil, err
	}

	var resp OrderResponse
	err = c.http.DoJSON(ctx, req, &resp)
	countRequest("order", err)
	if err != nil {
		return nil, fmt.Errorf("fetching order %s: %w", orderUUID, err)
	}
	return &resp, nil
}

// CancelOrder cancels an open order by exchange uuid.
func (c *Client) CancelOrder(ctx context.Context, orderUUID string) error {
	values := url.Values{}
	values.Set("uuid", orderUUID)

	req, err := c.privateRequest(ctx, http.MethodDelete, "/order", values)
	if err != nil {
		return err
	}

	var resp OrderResponse
	err = c.http.DoJSON(ctx, req, &resp)
	countRequest("cancel", err)
	if err != nil {
		return fmt.Errorf("cancelling order %s: %w", orderUUID, err)
	}
	return nil
}

// privateRequest builds a signed request with the query in the URL.
func (c *Client) privateRequest(ctx context.Context, method, path string, values url.Values) (*http.Request, error) {
	if !c.HasKeys() {
		return nil, fmt.Errorf("api keys not configured")
	}

	query := ""
	endpoint := baseURL + path
	if len(values) > 0 {
		query = encodeQuery(values)
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	token, err := authToken(c.accessKey, c.secretKey, query)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}
