package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"binance-futures-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL        = "https://fapi.binance.com"
	testnetBaseURL = "https://testnet.binancefuture.com"
	recvWindow     = "5000" // How long a request is valid in milliseconds

	OrderTypeMarket     = "MARKET"
	OrderTypeStopMarket = "STOP_MARKET"
	OrderSideBuy        = "BUY"
	OrderSideSell       = "SELL"

	OrderStatusNew             = "NEW"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
)

// Kline is a single candle from the futures klines endpoint.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// BookTicker is the current best bid/ask for a symbol.
type BookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// Order represents a futures order as reported by the exchange.
type Order struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	StopPrice     string `json:"stopPrice"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
	UpdateTime    int64  `json:"updateTime"`
}

// FuturesClientInterface defines the interface for the Binance futures REST
// API client. The trading engine depends on this, not on the concrete client,
// so tests can substitute a mock.
type FuturesClientInterface interface {
	GetServerTime() (int64, error)
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
	GetBookTicker(symbol string) (*BookTicker, error)
	GetPrice(symbol string) (float64, error)
	PlaceStopEntry(symbol, side string, stopPrice, quantity float64) (*Order, error)
	PlaceMarketOrder(symbol, side string, quantity float64) (*Order, error)
	GetOrder(symbol string, orderID int64) (*Order, error)
	CancelOrder(symbol string, orderID int64) error
	ChangeLeverage(symbol string, leverage int) error
}

// FuturesClient is a client for the Binance USD-M futures REST API.
// It implements the FuturesClientInterface.
type FuturesClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// ensure FuturesClient implements the interface
var _ FuturesClientInterface = (*FuturesClient)(nil)

// NewFuturesClient creates a new Binance futures REST API client.
func NewFuturesClient(cfg *config.Binance, logger *zap.Logger) *FuturesClient {
	var url string
	if cfg.Testnet {
		url = testnetBaseURL
		logger.Warn("Using Binance Futures Testnet")
	} else {
		url = baseURL
		logger.Info("Using Binance Futures Production API")
	}

	client := resty.New().SetBaseURL(url)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &FuturesClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *FuturesClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *FuturesClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// doSigned executes a signed request with the given form parameters.
func (c *FuturesClient) doSigned(ctx context.Context, method, endpoint string, params url.Values, result interface{}) (*resty.Response, error) {
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("recvWindow", recvWindow)

	queryString := params.Encode()
	signature := c.sign(queryString)

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(queryString + "&signature=" + signature)
	if result != nil {
		req.SetResult(result)
	}

	return c.doRequest(ctx, method, endpoint, req)
}

// GetServerTime fetches the current server time.
// This is a good endpoint to test connectivity.
func (c *FuturesClient) GetServerTime() (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetResult(&ServerTimeResponse{})
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/fapi/v1/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// GetKlines fetches recent candles for a symbol and interval.
// The endpoint returns rows of mixed-type arrays; prices come back as strings.
func (c *FuturesClient) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	var raw [][]interface{}

	req := c.client.R().
		SetResult(&raw).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		})
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/fapi/v1/klines", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s %s: %w", symbol, interval, err)
	}

	rows := *resp.Result().(*[][]interface{})
	klines := make([]Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("malformed kline row for %s: %d columns", symbol, len(row))
		}
		k := Kline{
			OpenTime:  asInt64(row[0]),
			Open:      asFloat(row[1]),
			High:      asFloat(row[2]),
			Low:       asFloat(row[3]),
			Close:     asFloat(row[4]),
			Volume:    asFloat(row[5]),
			CloseTime: asInt64(row[6]),
		}
		klines = append(klines, k)
	}

	return klines, nil
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	}
	return 0
}

func asInt64(v interface{}) int64 {
	if f, ok := v.(float64); ok {
		return int64(f)
	}
	return 0
}

// GetBookTicker fetches the current best bid/ask for a symbol.
func (c *FuturesClient) GetBookTicker(symbol string) (*BookTicker, error) {
	var ticker BookTicker

	req := c.client.R().
		SetResult(&ticker).
		SetQueryParam("symbol", symbol)
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/fapi/v1/ticker/bookTicker", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get book ticker for %s: %w", symbol, err)
	}

	return resp.Result().(*BookTicker), nil
}

// GetPrice fetches the latest traded price for a symbol.
func (c *FuturesClient) GetPrice(symbol string) (float64, error) {
	type tickerPrice struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	var ticker tickerPrice

	req := c.client.R().
		SetResult(&ticker).
		SetQueryParam("symbol", symbol)
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/fapi/v1/ticker/price", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}

	result := resp.Result().(*tickerPrice)
	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q for %s: %w", result.Price, symbol, err)
	}
	return price, nil
}

// PlaceStopEntry places a STOP_MARKET entry order that triggers at stopPrice.
func (c *FuturesClient) PlaceStopEntry(symbol, side string, stopPrice, quantity float64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", OrderTypeStopMarket)
	params.Set("stopPrice", formatPrice(stopPrice))
	params.Set("quantity", formatQty(quantity))
	params.Set("newClientOrderId", newClientOrderID())

	var order Order
	ctx := context.Background()

	_, err := c.doSigned(ctx, "POST", "/fapi/v1/order", params, &order)
	if err != nil {
		c.logger.Error("Failed to place stop entry order",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("side", side),
			zap.Float64("stop_price", stopPrice),
		)
		return nil, fmt.Errorf("failed to place stop entry: %w", err)
	}

	c.logger.Info("Placed stop entry order",
		zap.Int64("order_id", order.OrderID),
		zap.String("side", side),
		zap.Float64("stop_price", stopPrice))
	return &order, nil
}

// PlaceMarketOrder places a MARKET order, used to close positions.
func (c *FuturesClient) PlaceMarketOrder(symbol, side string, quantity float64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", OrderTypeMarket)
	params.Set("quantity", formatQty(quantity))
	params.Set("newClientOrderId", newClientOrderID())

	var order Order
	ctx := context.Background()

	_, err := c.doSigned(ctx, "POST", "/fapi/v1/order", params, &order)
	if err != nil {
		c.logger.Error("Failed to place market order",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("side", side),
		)
		return nil, fmt.Errorf("failed to place market order: %w", err)
	}

	c.logger.Info("Placed market order",
		zap.Int64("order_id", order.OrderID),
		zap.String("side", side))
	return &order, nil
}

// GetOrder queries the status of an existing order.
func (c *FuturesClient) GetOrder(symbol string, orderID int64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	var order Order
	ctx := context.Background()

	_, err := c.doSigned(ctx, "GET", "/fapi/v1/order", params, &order)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}
	return &order, nil
}

// CancelOrder cancels an open order. Callers treat failure as non-fatal: the
// exchange may have already filled or expired the order.
func (c *FuturesClient) CancelOrder(symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	ctx := context.Background()

	_, err := c.doSigned(ctx, "DELETE", "/fapi/v1/order", params, nil)
	if err != nil {
		return fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}

	c.logger.Info("Canceled order", zap.Int64("order_id", orderID))
	return nil
}

// ChangeLeverage sets the leverage for a symbol.
func (c *FuturesClient) ChangeLeverage(symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	ctx := context.Background()

	_, err := c.doSigned(ctx, "POST", "/fapi/v1/leverage", params, nil)
	if err != nil {
		return fmt.Errorf("failed to change leverage for %s: %w", symbol, err)
	}
	return nil
}

func newClientOrderID() string {
	return "bot-" + uuid.NewString()[:18]
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
