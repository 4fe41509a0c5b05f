package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// BaseURL is the production Binance Futures API URL
	BaseURL = "https://fapi.binance.com"
	// TestnetURL is the testnet Binance Futures API URL
	TestnetURL = "https://testnet.binancefuture.com"

	maxRetryElapsed = 10 * time.Second
)

// RESTClient talks to the Binance USDT-margined futures REST API. It
// implements Client.
type RESTClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *WeightLimiter
	logger     zerolog.Logger
}

// NewRESTClient creates a REST client. Keys are trimmed because stray
// whitespace breaks signature generation.
func NewRESTClient(apiKey, secretKey string, testnet bool, logger zerolog.Logger) *RESTClient {
	baseURL := BaseURL
	if testnet {
		baseURL = TestnetURL
	}
	return &RESTClient{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    NewWeightLimiter(0),
		logger:     logger.With().Str("component", "RESTClient").Logger(),
	}
}

// GetKlines fetches candles for symbol/interval, oldest first.
func (c *RESTClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	params := map[string]string{
		"symbol":   NormalizeSymbol(symbol),
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}

	body, err := c.get(ctx, "/fapi/v1/klines", params, PriorityNormal)
	if err != nil {
		return nil, fmt.Errorf("fetching klines for %s %s: %w", symbol, interval, err)
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing klines for %s: %w", symbol, err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			continue
		}
		candles = append(candles, Candle{
			OpenTime:  int64(asFloat(k[0])),
			Open:      asFloat(k[1]),
			High:      asFloat(k[2]),
			Low:       asFloat(k[3]),
			Close:     asFloat(k[4]),
			Volume:    asFloat(k[5]),
			CloseTime: int64(asFloat(k[6])),
		})
	}
	return candles, nil
}

// GetPositions returns the open legs for a symbol; entries with zero size
// are filtered out.
func (c *RESTClient) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	params := map[string]string{
		"symbol":    NormalizeSymbol(symbol),
		"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}

	body, err := c.signedGet(ctx, "/fapi/v2/positionRisk", params, PriorityHigh)
	if err != nil {
		return nil, fmt.Errorf("fetching positions for %s: %w", symbol, err)
	}

	var raw []positionRisk
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing positions for %s: %w", symbol, err)
	}

	positions := make([]Position, 0, len(raw))
	for _, r := range raw {
		if r.PositionAmt == 0 {
			continue
		}
		positions = append(positions, r.toPosition())
	}
	return positions, nil
}

// GetCurrentPrice returns the current mark price.
func (c *RESTClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := map[string]string{"symbol": NormalizeSymbol(symbol)}

	body, err := c.get(ctx, "/fapi/v1/premiumIndex", params, PriorityNormal)
	if err != nil {
		return 0, fmt.Errorf("fetching mark price for %s: %w", symbol, err)
	}

	var mark struct {
		MarkPrice float64 `json:"markPrice,string"`
	}
	if err := json.Unmarshal(body, &mark); err != nil {
		return 0, fmt.Errorf("parsing mark price for %s: %w", symbol, err)
	}
	return mark.MarkPrice, nil
}

// SetLeverage sets leverage for subsequent orders on the symbol.
func (c *RESTClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := map[string]string{
		"symbol":    NormalizeSymbol(symbol),
		"leverage":  strconv.Itoa(leverage),
		"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	_, err := c.signedPost(ctx, "/fapi/v1/leverage", params, PriorityCritical)
	if err != nil {
		return fmt.Errorf("setting leverage for %s: %w", symbol, err)
	}
	return nil
}

// PlaceOrder submits a market order.
func (c *RESTClient) PlaceOrder(ctx context.Context, p OrderParams) (*OrderResponse, error) {
	params := map[string]string{
		"symbol":    NormalizeSymbol(p.Symbol),
		"side":      string(p.Side),
		"type":      "MARKET",
		"quantity":  strconv.FormatFloat(p.Quantity, 'f', -1, 64),
		"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if p.PositionSide != "" {
		params["positionSide"] = string(p.PositionSide)
	}
	if p.ReduceOnly {
		params["reduceOnly"] = "true"
	}

	body, err := c.signedPost(ctx, "/fapi/v1/order", params, PriorityCritical)
	if err != nil {
		return nil, fmt.Errorf("placing %s order for %s: %w", p.Side, p.Symbol, err)
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing order response for %s: %w", p.Symbol, err)
	}

	c.logger.Info().
		Str("symbol", resp.Symbol).
		Str("side", string(p.Side)).
		Int64("order_id", resp.OrderID).
		Float64("quantity", p.Quantity).
		Msg("Order placed")
	return &resp, nil
}

// ClosePosition reduces one leg with a reduce-only market order.
// size <= 0 closes the whole leg.
func (c *RESTClient) ClosePosition(ctx context.Context, symbol string, side PositionSide, size float64) error {
	if size <= 0 {
		positions, err := c.GetPositions(ctx, symbol)
		if err != nil {
			return err
		}
		for _, pos := range positions {
			if pos.Side == side {
				size = pos.Size
				break
			}
		}
		if size <= 0 {
			return nil
		}
	}

	orderSide := OrderSideSell
	if side == PositionSideShort {
		orderSide = OrderSideBuy
	}

	_, err := c.PlaceOrder(ctx, OrderParams{
		Symbol:       symbol,
		Side:         orderSide,
		PositionSide: side,
		Quantity:     size,
		ReduceOnly:   true,
	})
	return err
}

// ==================== HTTP PLUMBING ====================

func (c *RESTClient) get(ctx context.Context, endpoint string, params map[string]string, priority RequestPriority) ([]byte, error) {
	return c.request(ctx, http.MethodGet, endpoint, params, false, priority)
}

func (c *RESTClient) signedGet(ctx context.Context, endpoint string, params map[string]string, priority RequestPriority) ([]byte, error) {
	return c.request(ctx, http.MethodGet, endpoint, params, true, priority)
}

func (c *RESTClient) signedPost(ctx context.Context, endpoint string, params map[string]string, priority RequestPriority) ([]byte, error) {
	return c.request(ctx, http.MethodPost, endpoint, params, true, priority)
}

// request performs one API call with rate limiting and bounded retry on
// transient failures. Non-idempotent POSTs are not retried.
func (c *RESTClient) request(ctx context.Context, method, endpoint string, params map[string]string, signed bool, priority RequestPriority) ([]byte, error) {
	if err := c.limiter.Wait(ctx, EndpointWeight(endpoint), priority); err != nil {
		return nil, err
	}

	do := func() ([]byte, error) {
		return c.doOnce(ctx, method, endpoint, params, signed)
	}
	if method == http.MethodPost {
		return do()
	}

	policy := backoff.WithContext(newRetryPolicy(), ctx)
	var body []byte
	err := backoff.Retry(func() error {
		var err error
		body, err = do()
		if err != nil {
			// Only transient failures are worth retrying.
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, policy)
	return body, err
}

func newRetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxRetryElapsed
	return b
}

func (c *RESTClient) doOnce(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	query := values.Encode()
	if signed {
		query += "&signature=" + c.sign(query)
	}

	reqURL := c.baseURL + endpoint
	var reqBody io.Reader
	if method == http.MethodGet {
		reqURL += "?" + query
	} else {
		reqBody = strings.NewReader(query)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrTransient, resp.StatusCode, truncate(body, 200))
	default:
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, endpoint, truncate(body, 200))
	}
}

func (c *RESTClient) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
