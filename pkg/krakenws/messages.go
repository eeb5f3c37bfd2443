package krakenws

import "encoding/json"

// Method names for outbound request frames (WebSocket API v2).
const (
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
	MethodPing        = "ping"
	MethodAddOrder    = "add_order"
	MethodCancelOrder = "cancel_order"
	MethodCancelAll   = "cancel_all"
	MethodBatchAdd    = "batch_add"
	MethodBatchCancel = "batch_cancel"
)

// Channel names for subscriptions.
const (
	ChannelTicker     = "ticker"
	ChannelBook       = "book"
	ChannelOHLC       = "ohlc"
	ChannelTrade      = "trade"
	ChannelInstrument = "instrument"
	ChannelBalances   = "balances"
	ChannelExecutions = "executions"
	ChannelHeartbeat  = "heartbeat"
	ChannelStatus     = "status"
)

// Request is one outbound method frame. ReqID correlates the server's
// acknowledgement back to the caller.
type Request struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
	ReqID  int64  `json:"req_id,omitempty"`
}

// Response is the server's acknowledgement of a Request, matched by ReqID.
// A multi-symbol subscribe or unsubscribe is acknowledged with one Response
// per symbol, all carrying the same ReqID; rejections name the symbol at
// the top level, successes inside Result.
type Response struct {
	Method  string          `json:"method"`
	ReqID   int64           `json:"req_id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Symbol  string          `json:"symbol,omitempty"`
	TimeIn  string          `json:"time_in,omitempty"`
	TimeOut string          `json:"time_out,omitempty"`
}

// ChannelMessage is one inbound data frame on a subscribed channel.
type ChannelMessage struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// SubscribeParams is the params object of subscribe and unsubscribe
// requests. Zero-valued optional fields are omitted from the frame.
type SubscribeParams struct {
	Channel string   `json:"channel"`
	Symbol  []string `json:"symbol,omitempty"`
	// Depth is the book depth: 10, 25, 100, 500 or 1000.
	Depth int `json:"depth,omitempty"`
	// Interval is the candle interval in minutes.
	Interval int `json:"interval,omitempty"`
	// Snapshot requests an initial snapshot before updates.
	Snapshot *bool `json:"snapshot,omitempty"`
	// Token authenticates private channels.
	Token string `json:"token,omitempty"`
}

// AddOrderParams is the params object of an add_order request.
type AddOrderParams struct {
	OrderType    string  `json:"order_type"`
	Side         string  `json:"side"`
	Symbol       string  `json:"symbol"`
	OrderQty     float64 `json:"order_qty"`
	LimitPrice   float64 `json:"limit_price,omitempty"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
	TimeInForce  string  `json:"time_in_force,omitempty"`
	PostOnly     bool    `json:"post_only,omitempty"`
	ReduceOnly   bool    `json:"reduce_only,omitempty"`
	ClientOrdID  string  `json:"cl_ord_id,omitempty"`
	ValidateOnly bool    `json:"validate,omitempty"`
	Token        string  `json:"token,omitempty"`
}

// CancelOrderParams is the params object of a cancel_order request.
type CancelOrderParams struct {
	OrderID     []string `json:"order_id,omitempty"`
	ClientOrdID []string `json:"cl_ord_id,omitempty"`
	Token       string   `json:"token,omitempty"`
}

// BatchAddParams is the params object of a batch_add request.
type BatchAddParams struct {
	Symbol string           `json:"symbol"`
	Orders []AddOrderParams `json:"orders"`
	Token  string           `json:"token,omitempty"`
}

// BatchCancelParams is the params object of a batch_cancel request.
type BatchCancelParams struct {
	Orders []string `json:"orders"`
	Token  string   `json:"token,omitempty"`
}

// StatusData is the payload of the status channel, sent once after the
// connection opens and again when the exchange system status changes.
type StatusData struct {
	System       string `json:"system"`
	APIVersion   string `json:"api_version"`
	ConnectionID uint64 `json:"connection_id"`
	Version      string `json:"version"`
}

// privateChannels lists channels that require an authentication token.
var privateChannels = map[string]bool{
	ChannelBalances:   true,
	ChannelExecutions: true,
}
