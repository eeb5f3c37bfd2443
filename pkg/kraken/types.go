package kraken

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
)

// envelope is the outer shape of every REST response. A call fails iff
// the error list is non-empty; otherwise result holds the payload.
type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// ServerTime is the response of the Time endpoint.
type ServerTime struct {
	UnixTime int64  `json:"unixtime"`
	RFC1123  string `json:"rfc1123"`
}

// SystemStatus reports exchange availability: online, maintenance,
// cancel_only or post_only.
type SystemStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// AssetInfo describes one tradeable asset.
type AssetInfo struct {
	Aclass          string `json:"aclass"`
	Altname         string `json:"altname"`
	Decimals        int    `json:"decimals"`
	DisplayDecimals int    `json:"display_decimals"`
	Status          string `json:"status"`
}

// AssetPair describes one tradeable pair.
type AssetPair struct {
	Altname           string      `json:"altname"`
	WSName            string      `json:"wsname"`
	Base              string      `json:"base"`
	Quote             string      `json:"quote"`
	PairDecimals      int         `json:"pair_decimals"`
	LotDecimals       int         `json:"lot_decimals"`
	OrderMin          apd.Decimal `json:"ordermin"`
	CostMin           apd.Decimal `json:"costmin"`
	TickSize          apd.Decimal `json:"tick_size"`
	Status            string      `json:"status"`
	LongPositionLimit int         `json:"long_position_limit"`
}

// TickerInfo is one pair's ticker snapshot. The exchange encodes each
// field as a small array: ask/bid are [price, whole lot volume, lot
// volume], close is [price, lot volume], and the remaining pairs are
// [today, last 24 hours].
type TickerInfo struct {
	Ask    []apd.Decimal `json:"a"`
	Bid    []apd.Decimal `json:"b"`
	Close  []apd.Decimal `json:"c"`
	Volume []apd.Decimal `json:"v"`
	VWAP   []apd.Decimal `json:"p"`
	Trades []int64       `json:"t"`
	Low    []apd.Decimal `json:"l"`
	High   []apd.Decimal `json:"h"`
	Open   apd.Decimal   `json:"o"`
}

// Candle is one OHLC bar. The wire form is a positional array:
// [time, open, high, low, close, vwap, volume, count].
type Candle struct {
	Time   int64
	Open   apd.Decimal
	High   apd.Decimal
	Low    apd.Decimal
	Close  apd.Decimal
	VWAP   apd.Decimal
	Volume apd.Decimal
	Count  int64
}

// UnmarshalJSON decodes the positional array form.
func (c *Candle) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 8 {
		return fmt.Errorf("candle: expected 8 elements, got %d", len(raw))
	}
	if err := sonic.Unmarshal(raw[0], &c.Time); err != nil {
		return err
	}
	for i, dst := range []*apd.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.VWAP, &c.Volume} {
		if err := unmarshalDecimal(raw[i+1], dst); err != nil {
			return err
		}
	}
	return sonic.Unmarshal(raw[7], &c.Count)
}

// OHLC is the response of the OHLC endpoint: candles per pair plus the
// id to use as `since` on the next poll.
type OHLC struct {
	Pairs map[string][]Candle
	Last  int64
}

// UnmarshalJSON splits the `last` field from the per-pair candle lists.
func (o *OHLC) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Pairs = make(map[string][]Candle, len(raw))
	for key, val := range raw {
		if key == "last" {
			if err := sonic.Unmarshal(val, &o.Last); err != nil {
				return err
			}
			continue
		}
		var candles []Candle
		if err := sonic.Unmarshal(val, &candles); err != nil {
			return err
		}
		o.Pairs[key] = candles
	}
	return nil
}

// DepthLevel is one order book level: [price, volume, timestamp].
type DepthLevel struct {
	Price  apd.Decimal
	Volume apd.Decimal
	Time   int64
}

// UnmarshalJSON decodes the positional array form.
func (l *DepthLevel) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 3 {
		return fmt.Errorf("depth level: expected 3 elements, got %d", len(raw))
	}
	if err := unmarshalDecimal(raw[0], &l.Price); err != nil {
		return err
	}
	if err := unmarshalDecimal(raw[1], &l.Volume); err != nil {
		return err
	}
	return sonic.Unmarshal(raw[2], &l.Time)
}

// Depth is one pair's order book snapshot.
type Depth struct {
	Asks []DepthLevel `json:"asks"`
	Bids []DepthLevel `json:"bids"`
}

// Trade is one public trade:
// [price, volume, time, buy/sell, market/limit, misc, trade_id].
type Trade struct {
	Price     apd.Decimal
	Volume    apd.Decimal
	Time      float64
	Side      string
	OrderType string
	Misc      string
	ID        int64
}

// UnmarshalJSON decodes the positional array form.
func (t *Trade) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 6 {
		return fmt.Errorf("trade: expected at least 6 elements, got %d", len(raw))
	}
	if err := unmarshalDecimal(raw[0], &t.Price); err != nil {
		return err
	}
	if err := unmarshalDecimal(raw[1], &t.Volume); err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw[2], &t.Time); err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw[3], &t.Side); err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw[4], &t.OrderType); err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw[5], &t.Misc); err != nil {
		return err
	}
	if len(raw) > 6 {
		return sonic.Unmarshal(raw[6], &t.ID)
	}
	return nil
}

// RecentTrades is the response of the Trades endpoint.
type RecentTrades struct {
	Pairs map[string][]Trade
	Last  string
}

// UnmarshalJSON splits the `last` cursor from the per-pair trade lists.
func (r *RecentTrades) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Pairs = make(map[string][]Trade, len(raw))
	for key, val := range raw {
		if key == "last" {
			if err := sonic.Unmarshal(val, &r.Last); err != nil {
				return err
			}
			continue
		}
		var trades []Trade
		if err := sonic.Unmarshal(val, &trades); err != nil {
			return err
		}
		r.Pairs[key] = trades
	}
	return nil
}

// Balances maps asset name to available balance.
type Balances map[string]apd.Decimal

// BalanceDetail is one asset's entry in the extended balance response.
type BalanceDetail struct {
	Balance    apd.Decimal `json:"balance"`
	Credit     apd.Decimal `json:"credit"`
	CreditUsed apd.Decimal `json:"credit_used"`
	HoldTrade  apd.Decimal `json:"hold_trade"`
}

// TradeBalance summarizes the account's margin position.
type TradeBalance struct {
	EquivalentBalance apd.Decimal `json:"eb"`
	TradeBalance      apd.Decimal `json:"tb"`
	MarginAmount      apd.Decimal `json:"m"`
	UnrealizedNet     apd.Decimal `json:"n"`
	CostBasis         apd.Decimal `json:"c"`
	Valuation         apd.Decimal `json:"v"`
	Equity            apd.Decimal `json:"e"`
	FreeMargin        apd.Decimal `json:"mf"`
}

// OrderDescription is the human-readable order summary.
type OrderDescription struct {
	Pair      string      `json:"pair"`
	Type      string      `json:"type"`
	OrderType string      `json:"ordertype"`
	Price     apd.Decimal `json:"price"`
	Price2    apd.Decimal `json:"price2"`
	Leverage  string      `json:"leverage"`
	Order     string      `json:"order"`
	Close     string      `json:"close"`
}

// OpenOrder is one entry in the open orders response.
type OpenOrder struct {
	Status      string           `json:"status"`
	OpenTime    float64          `json:"opentm"`
	Description OrderDescription `json:"descr"`
	Volume      apd.Decimal      `json:"vol"`
	VolumeExec  apd.Decimal      `json:"vol_exec"`
	Cost        apd.Decimal      `json:"cost"`
	Fee         apd.Decimal      `json:"fee"`
	Price       apd.Decimal      `json:"price"`
	UserRef     int64            `json:"userref"`
}

// OpenOrders is the response of the OpenOrders endpoint.
type OpenOrders struct {
	Open map[string]OpenOrder `json:"open"`
}

// AddOrderResult is the response of the AddOrder endpoint.
type AddOrderResult struct {
	Description struct {
		Order string `json:"order"`
		Close string `json:"close"`
	} `json:"descr"`
	TxIDs []string `json:"txid"`
}

// CancelResult is the response of the CancelOrder and CancelAll endpoints.
type CancelResult struct {
	Count   int  `json:"count"`
	Pending bool `json:"pending,omitempty"`
}

// WebSocketsToken is the response of the GetWebSocketsToken endpoint. The
// token authenticates private WebSocket subscriptions and must be used
// within Expires seconds.
type WebSocketsToken struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

func unmarshalDecimal(raw json.RawMessage, dst *apd.Decimal) error {
	var s string
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return err
	}
	if _, _, err := dst.SetString(s); err != nil {
		return fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return nil
}
