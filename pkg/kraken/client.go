package kraken

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"nakula/internal/circuitbreaker"
	"nakula/internal/keyring"
	"nakula/internal/nonce"
	"nakula/internal/ratelimit"
	"nakula/pkg/core"
)

const (
	publicPrefix  = "/0/public/"
	privatePrefix = "/0/private/"

	bucketPublic  = "public"
	bucketPrivate = "private"
)

// Client dispatches REST calls to the exchange. One Client owns one nonce
// sequence and must not be shared between processes using the same API key;
// concurrent use within a process is safe.
type Client struct {
	config  *core.Config
	rest    *resty.Client
	limiter *ratelimit.Limiter
	nonces  *nonce.Counter
	keys    *keyring.Ring
	breaker *circuitbreaker.Breaker
	logger  zerolog.Logger
}

// New creates a Client from the given configuration. Credentials are
// optional; without them only public endpoints are usable.
func New(config *core.Config) (*Client, error) {
	if config == nil {
		config = core.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rest := resty.New()
	rest.SetBaseURL(config.BaseURL)
	rest.SetTimeout(config.Timeout)
	rest.SetRetryCount(config.MaxRetries)
	rest.SetRetryWaitTime(config.RetryWaitMin)
	rest.SetRetryMaxWaitTime(config.RetryWaitMax)
	rest.AddContentTypeDecoder("application/json", func(r io.Reader, v any) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return sonic.Unmarshal(data, v)
	})

	c := &Client{
		config:  config,
		rest:    rest,
		limiter: ratelimit.New(config.RateLimitPerSec, config.RateLimitBurst),
		nonces:  nonce.New(),
		keys:    keyring.New(keyring.RotationRoundRobin),
		logger:  zerolog.Nop(),
	}

	if config.HasCredentials() {
		if err := c.keys.Add("default", config.Credentials.APIKey, config.Credentials.APISecret); err != nil {
			return nil, &core.Error{Type: core.ErrorTypeConfig, Message: err.Error()}
		}
	}

	if config.CircuitBreakerEnabled {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
		})
	}

	return c, nil
}

// SetLogger configures the logger for the client.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// AddAPIKey registers an additional credential pair for rotation.
func (c *Client) AddAPIKey(id, key, encodedSecret string) error {
	return c.keys.Add(id, key, encodedSecret)
}

// RotateAPIKey advances to the next registered credential pair.
func (c *Client) RotateAPIKey() {
	c.keys.Rotate()
}

// Close releases the underlying HTTP transport.
func (c *Client) Close() error {
	return c.rest.Close()
}

// LimiterStats returns admission statistics for the shared rate limiter.
func (c *Client) LimiterStats() ratelimit.Snapshot {
	return c.limiter.Stats()
}

// Public performs an unauthenticated GET against /0/public/<endpoint> and
// decodes the result payload into out. The call blocks on the rate limiter
// before any network activity.
func (c *Client) Public(ctx context.Context, endpoint string, query url.Values, out any) error {
	if err := c.limiter.WaitBucket(ctx, bucketPublic); err != nil {
		return core.NewNetworkError(err)
	}
	if err := c.admit(); err != nil {
		return err
	}

	req := c.rest.R().SetContext(ctx)
	for key, vals := range query {
		for _, v := range vals {
			req.SetQueryParam(key, v)
		}
	}

	c.logger.Debug().Str("endpoint", endpoint).Msg("public request")

	resp, err := req.Get(publicPrefix + endpoint)
	if err != nil {
		c.record(false)
		return core.NewNetworkError(err)
	}
	return c.finish(resp, out)
}

// Private performs an authenticated POST against /0/private/<endpoint> and
// decodes the result payload into out. Missing credentials fail before any
// network activity. A fresh nonce is drawn, the form is signed, and the
// body transmitted byte-identically to what was signed.
func (c *Client) Private(ctx context.Context, endpoint string, form url.Values, out any) error {
	key := c.keys.Current()
	if key == nil {
		return core.NewError(core.ErrorTypeInvalidUsage, "private call requires API credentials")
	}

	if err := c.limiter.WaitBucket(ctx, bucketPrivate); err != nil {
		return core.NewNetworkError(err)
	}
	if err := c.admit(); err != nil {
		return err
	}

	if form == nil {
		form = url.Values{}
	}
	n := strconv.FormatInt(c.nonces.Next(), 10)
	form.Set("nonce", n)

	path := privatePrefix + endpoint
	body := form.Encode()
	sig := Sign(key.Secret, path, n, form)

	c.logger.Debug().Str("endpoint", endpoint).Str("nonce", n).Msg("private request")

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("API-Key", key.Key).
		SetHeader("API-Sign", sig).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(body).
		Post(path)
	if err != nil {
		c.record(false)
		return core.NewNetworkError(err)
	}

	c.keys.MarkUsed()
	if ferr := c.finish(resp, out); ferr != nil {
		if core.IsType(ferr, core.ErrorTypeAPI) {
			c.keys.OnError()
		}
		return ferr
	}
	return nil
}

// finish parses the response envelope and classifies failures.
func (c *Client) finish(resp *resty.Response, out any) error {
	raw := resp.Bytes()

	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		c.record(false)
		if !resp.IsSuccess() {
			return core.NewHTTPError(resp.StatusCode(), resp.Status())
		}
		return core.NewError(core.ErrorTypeMalformed, fmt.Sprintf("decode response envelope: %v", err))
	}

	// The exchange reports failures through the envelope regardless of
	// HTTP status, so token classification comes first.
	if len(env.Error) > 0 {
		c.record(false)
		return core.ClassifyTokens(env.Error)
	}
	if !resp.IsSuccess() {
		c.record(false)
		return core.NewHTTPError(resp.StatusCode(), resp.Status())
	}

	c.record(true)
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(env.Result, out); err != nil {
		return core.NewError(core.ErrorTypeMalformed, fmt.Sprintf("decode result: %v", err))
	}
	return nil
}

func (c *Client) admit() error {
	if c.breaker != nil && !c.breaker.Allow() {
		return core.NewError(core.ErrorTypeService, "circuit breaker open")
	}
	return nil
}

func (c *Client) record(success bool) {
	if c.breaker != nil {
		c.breaker.Record(success)
	}
}

// Time returns the exchange server time.
func (c *Client) Time(ctx context.Context) (*ServerTime, error) {
	var out ServerTime
	if err := c.Public(ctx, "Time", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SystemStatus returns the exchange availability status.
func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	var out SystemStatus
	if err := c.Public(ctx, "SystemStatus", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Assets returns asset metadata, optionally filtered to the given assets.
func (c *Client) Assets(ctx context.Context, assets ...string) (map[string]AssetInfo, error) {
	query := url.Values{}
	if len(assets) > 0 {
		query.Set("asset", strings.Join(assets, ","))
	}
	out := make(map[string]AssetInfo)
	if err := c.Public(ctx, "Assets", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AssetPairs returns pair metadata, optionally filtered to the given pairs.
func (c *Client) AssetPairs(ctx context.Context, pairs ...string) (map[string]AssetPair, error) {
	query := url.Values{}
	if len(pairs) > 0 {
		query.Set("pair", strings.Join(pairs, ","))
	}
	out := make(map[string]AssetPair)
	if err := c.Public(ctx, "AssetPairs", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ticker returns ticker snapshots for the given pairs, or all pairs when
// none are named.
func (c *Client) Ticker(ctx context.Context, pairs ...string) (map[string]TickerInfo, error) {
	query := url.Values{}
	if len(pairs) > 0 {
		query.Set("pair", strings.Join(pairs, ","))
	}
	out := make(map[string]TickerInfo)
	if err := c.Public(ctx, "Ticker", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OHLC returns candle data for one pair. interval is in minutes; since is
// an exclusive lower bound, 0 for no bound.
func (c *Client) OHLC(ctx context.Context, pair string, interval int, since int64) (*OHLC, error) {
	query := url.Values{}
	query.Set("pair", pair)
	if interval > 0 {
		query.Set("interval", strconv.Itoa(interval))
	}
	if since > 0 {
		query.Set("since", strconv.FormatInt(since, 10))
	}
	var out OHLC
	if err := c.Public(ctx, "OHLC", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Depth returns the order book for one pair, limited to count levels per
// side when count is positive.
func (c *Client) Depth(ctx context.Context, pair string, count int) (*Depth, error) {
	query := url.Values{}
	query.Set("pair", pair)
	if count > 0 {
		query.Set("count", strconv.Itoa(count))
	}
	out := make(map[string]Depth)
	if err := c.Public(ctx, "Depth", query, &out); err != nil {
		return nil, err
	}
	for _, depth := range out {
		return &depth, nil
	}
	return nil, core.NewError(core.ErrorTypeMalformed, "depth response missing pair entry")
}

// Trades returns recent public trades for one pair. since is a pagination
// cursor from a previous response, empty for the most recent trades.
func (c *Client) Trades(ctx context.Context, pair, since string) (*RecentTrades, error) {
	query := url.Values{}
	query.Set("pair", pair)
	if since != "" {
		query.Set("since", since)
	}
	var out RecentTrades
	if err := c.Public(ctx, "Trades", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the account's asset balances.
func (c *Client) Balance(ctx context.Context) (Balances, error) {
	out := make(Balances)
	if err := c.Private(ctx, "Balance", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BalanceEx returns extended per-asset balances including holds and credit.
func (c *Client) BalanceEx(ctx context.Context) (map[string]BalanceDetail, error) {
	out := make(map[string]BalanceDetail)
	if err := c.Private(ctx, "BalanceEx", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TradeBalance returns the account's margin summary valued in the given
// base asset, or the account default when asset is empty.
func (c *Client) TradeBalance(ctx context.Context, asset string) (*TradeBalance, error) {
	form := url.Values{}
	if asset != "" {
		form.Set("asset", asset)
	}
	var out TradeBalance
	if err := c.Private(ctx, "TradeBalance", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenOrders returns the account's open orders.
func (c *Client) OpenOrders(ctx context.Context) (*OpenOrders, error) {
	var out OpenOrders
	if err := c.Private(ctx, "OpenOrders", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OrderRequest describes a new order for AddOrder.
type OrderRequest struct {
	Pair      string
	Type      string // buy or sell
	OrderType string // market, limit, stop-loss, take-profit, ...
	Volume    string
	Price     string // required for limit-style orders
	Price2    string
	Leverage  string
	UserRef   string
	Validate  bool // validate only, do not place
}

// form converts the request to the exchange's field names.
func (o *OrderRequest) form() url.Values {
	form := url.Values{}
	form.Set("pair", o.Pair)
	form.Set("type", o.Type)
	form.Set("ordertype", o.OrderType)
	form.Set("volume", o.Volume)
	if o.Price != "" {
		form.Set("price", o.Price)
	}
	if o.Price2 != "" {
		form.Set("price2", o.Price2)
	}
	if o.Leverage != "" {
		form.Set("leverage", o.Leverage)
	}
	if o.UserRef != "" {
		form.Set("userref", o.UserRef)
	}
	if o.Validate {
		form.Set("validate", "true")
	}
	return form
}

// AddOrder places a new order.
func (c *Client) AddOrder(ctx context.Context, order *OrderRequest) (*AddOrderResult, error) {
	var out AddOrderResult
	if err := c.Private(ctx, "AddOrder", order.form(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels one order by transaction id or userref.
func (c *Client) CancelOrder(ctx context.Context, txid string) (*CancelResult, error) {
	form := url.Values{}
	form.Set("txid", txid)
	var out CancelResult
	if err := c.Private(ctx, "CancelOrder", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelAll cancels all open orders.
func (c *Client) CancelAll(ctx context.Context) (*CancelResult, error) {
	var out CancelResult
	if err := c.Private(ctx, "CancelAll", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWebSocketsToken returns a short-lived token for authenticating
// private WebSocket subscriptions.
func (c *Client) GetWebSocketsToken(ctx context.Context) (*WebSocketsToken, error) {
	var out WebSocketsToken
	if err := c.Private(ctx, "GetWebSocketsToken", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
