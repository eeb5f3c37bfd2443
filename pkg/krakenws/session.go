package krakenws

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"nakula/internal/ws"
	"nakula/pkg/core"
)

// SubState tracks where a subscription is in its lifecycle. Entries are
// removed outright on unsubscribe acknowledgment and on session close, so
// there is no terminal state.
type SubState int

const (
	// SubRequested means the subscribe request is in flight.
	SubRequested SubState = iota
	// SubActive means the server acknowledged the subscription.
	SubActive
	// SubFailed means the server rejected the subscription.
	SubFailed
)

// String returns the string representation of the subscription state.
func (s SubState) String() string {
	return [...]string{"requested", "active", "failed"}[s]
}

// Subscription is the tracked state of one (channel, symbol) pair.
// Channel-wide subscriptions (no symbol) use an empty Symbol.
type Subscription struct {
	Channel string
	Symbol  string
	State   SubState
}

type subKey struct {
	channel string
	symbol  string
}

// pendingCall is one in-flight request. Subscribe and unsubscribe requests
// expect one acknowledgment per symbol, all sharing the req_id; the entry
// stays registered until every expected ack has arrived.
type pendingCall struct {
	ch        chan *Response
	remaining int
}

// MessageHandler receives inbound data frames for one channel.
type MessageHandler func(*ChannelMessage)

// Session manages one WebSocket connection: request-id correlation,
// subscription state, and the authentication token for private traffic.
// A Session is single-use; after Close a new Session must be built.
type Session struct {
	config *core.Config
	conn   *ws.Conn
	logger zerolog.Logger

	reqID      atomic.Int64
	heartbeats atomic.Int64

	mu       sync.Mutex
	closed   bool
	pending  map[int64]*pendingCall
	subs     map[subKey]*Subscription
	handlers map[string]MessageHandler
	token    string
	status   *StatusData

	closedCh chan struct{}

	// OnUnhandled receives frames that match no pending request and no
	// registered channel handler. Optional.
	OnUnhandled func(data []byte)
}

// NewSession creates a Session for the config's WebSocket endpoint.
func NewSession(config *core.Config) *Session {
	if config == nil {
		config = core.DefaultConfig()
	}

	s := &Session{
		config:   config,
		pending:  make(map[int64]*pendingCall),
		subs:     make(map[subKey]*Subscription),
		handlers: make(map[string]MessageHandler),
		closedCh: make(chan struct{}),
		logger:   zerolog.Nop(),
	}

	s.conn = ws.New(ws.Config{URL: config.WSURL})
	s.conn.OnFrame = s.route
	s.conn.OnClosed = s.onClosed
	return s
}

// SetLogger configures the logger for the session and its transport.
func (s *Session) SetLogger(logger zerolog.Logger) {
	s.logger = logger
	s.conn.SetLogger(logger)
}

// Connect establishes the WebSocket connection and starts routing frames.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return core.NewNetworkError(err)
	}
	return nil
}

// Close terminates the session. Every in-flight request fails with a
// closed-session error and every subscription entry is destroyed. Safe to
// call more than once, including from inside a MessageHandler.
func (s *Session) Close() error {
	return s.conn.Close()
}

// onClosed fires exactly once when the transport goes away, whether by
// Close or by the peer. All pending calls are failed so no caller blocks
// on a response that can never arrive. Pending channels are abandoned
// rather than closed so a concurrent route of a late frame can never send
// on a closed channel.
func (s *Session) onClosed(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := len(s.pending)
	s.pending = make(map[int64]*pendingCall)
	s.subs = make(map[subKey]*Subscription)
	s.mu.Unlock()

	close(s.closedCh)

	if dropped > 0 {
		s.logger.Debug().Int("count", dropped).Msg("failing pending requests on close")
	}
}

// IsOpen reports whether the underlying connection is active.
func (s *Session) IsOpen() bool {
	return s.conn.IsOpen()
}

// Authorize stores the token obtained from the REST GetWebSocketsToken
// endpoint. Subsequent private subscriptions and trading requests carry it
// automatically.
func (s *Session) Authorize(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Authorized reports whether a token has been stored.
func (s *Session) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Heartbeats returns the number of heartbeat frames received.
func (s *Session) Heartbeats() int64 {
	return s.heartbeats.Load()
}

// Status returns the most recent status-channel payload, or nil before
// the first one arrives.
func (s *Session) Status() *StatusData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Handle registers the handler for one channel's data frames, replacing
// any previous handler. Register before Subscribe so no frame is dropped.
func (s *Session) Handle(channel string, handler MessageHandler) {
	s.mu.Lock()
	s.handlers[channel] = handler
	s.mu.Unlock()
}

// Call sends one request frame and blocks until the matching response
// arrives, ctx expires, or the session closes. The pending entry is
// registered before the frame is written, so a response can never race
// the registration.
func (s *Session) Call(ctx context.Context, method string, params any) (*Response, error) {
	resps, err := s.call(ctx, method, params, 1)
	if err != nil {
		return nil, err
	}
	resp := resps[0]
	if !resp.Success {
		return resp, classifyWSError(resp.Error)
	}
	return resp, nil
}

// call sends one request frame and collects expect acknowledgment frames
// sharing its req_id. Responses are returned in arrival order, rejections
// included; classifying them is the caller's job.
func (s *Session) call(ctx context.Context, method string, params any, expect int) ([]*Response, error) {
	if expect < 1 {
		expect = 1
	}
	id := s.reqID.Add(1)
	p := &pendingCall{ch: make(chan *Response, expect), remaining: expect}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, core.NewError(core.ErrorTypeClosed, "session is closed")
	}
	s.pending[id] = p
	s.mu.Unlock()

	drop := func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}

	if err := s.conn.SendJSON(Request{Method: method, Params: params, ReqID: id}); err != nil {
		drop()
		return nil, core.NewNetworkError(err)
	}

	s.logger.Debug().Str("method", method).Int64("req_id", id).Int("expect", expect).Msg("request sent")

	resps := make([]*Response, 0, expect)
	for len(resps) < expect {
		// Acks that already arrived win over a concurrent close.
		select {
		case resp := <-p.ch:
			resps = append(resps, resp)
			continue
		default:
		}
		select {
		case resp := <-p.ch:
			resps = append(resps, resp)
		case <-ctx.Done():
			drop()
			return nil, ctx.Err()
		case <-s.closedCh:
			return nil, core.NewError(core.ErrorTypeClosed, "session closed while awaiting response")
		}
	}
	return resps, nil
}

// Ping sends an application-level ping and waits for the pong response.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.Call(ctx, MethodPing, nil)
	return err
}

// Subscribe subscribes to a channel for the given symbols. Pairs that are
// already active or requested are skipped, so repeated calls are
// idempotent. Private channels automatically carry the stored token. The
// server acknowledges each symbol with its own response frame; every pair
// transitions on its own ack, so a partial rejection leaves the accepted
// pairs active and returns the first rejection's classified error.
func (s *Session) Subscribe(ctx context.Context, params SubscribeParams) error {
	symbols := params.Symbol
	channelWide := len(symbols) == 0
	if channelWide {
		symbols = []string{""}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.NewError(core.ErrorTypeClosed, "session is closed")
	}
	// Pairs already requested or active are skipped so repeated calls
	// never duplicate server-side subscriptions.
	var registered []string
	for _, sym := range symbols {
		key := subKey{channel: params.Channel, symbol: sym}
		if sub, ok := s.subs[key]; ok && (sub.State == SubActive || sub.State == SubRequested) {
			continue
		}
		s.subs[key] = &Subscription{Channel: params.Channel, Symbol: sym, State: SubRequested}
		registered = append(registered, sym)
	}
	if privateChannels[params.Channel] && params.Token == "" {
		params.Token = s.token
	}
	s.mu.Unlock()

	if len(registered) == 0 {
		return nil
	}
	if channelWide {
		params.Symbol = nil
	} else {
		params.Symbol = registered
	}

	if privateChannels[params.Channel] && params.Token == "" {
		s.markSubs(params.Channel, registered, SubFailed)
		return core.NewError(core.ErrorTypeInvalidUsage, fmt.Sprintf("channel %s requires authorization", params.Channel))
	}

	resps, err := s.call(ctx, MethodSubscribe, params, len(registered))
	if err != nil {
		s.markSubs(params.Channel, registered, SubFailed)
		return err
	}

	var firstErr error
	for _, resp := range resps {
		sym := ackSymbol(resp, registered)
		if resp.Success {
			s.markSubs(params.Channel, []string{sym}, SubActive)
			continue
		}
		s.markSubs(params.Channel, []string{sym}, SubFailed)
		if firstErr == nil {
			firstErr = classifyWSError(resp.Error)
		}
	}
	return firstErr
}

// Unsubscribe tears down the subscription for the given symbols. Pairs
// that were never subscribed are skipped before anything reaches the
// wire; each acknowledged pair's entry is destroyed.
func (s *Session) Unsubscribe(ctx context.Context, params SubscribeParams) error {
	symbols := params.Symbol
	channelWide := len(symbols) == 0
	if channelWide {
		symbols = []string{""}
	}

	s.mu.Lock()
	var known []string
	for _, sym := range symbols {
		if _, ok := s.subs[subKey{channel: params.Channel, symbol: sym}]; ok {
			known = append(known, sym)
		}
	}
	if privateChannels[params.Channel] && params.Token == "" {
		params.Token = s.token
	}
	s.mu.Unlock()

	if len(known) == 0 {
		return nil
	}
	if channelWide {
		params.Symbol = nil
	} else {
		params.Symbol = known
	}

	resps, err := s.call(ctx, MethodUnsubscribe, params, len(known))
	if err != nil {
		return err
	}

	var firstErr error
	for _, resp := range resps {
		sym := ackSymbol(resp, known)
		if resp.Success {
			s.removeSubs(params.Channel, []string{sym})
		} else if firstErr == nil {
			firstErr = classifyWSError(resp.Error)
		}
	}
	return firstErr
}

// ackSymbol extracts the symbol a subscribe/unsubscribe ack refers to.
// Rejections name it at the top level, successes inside result; acks for
// a single-pair request fall back to that pair when neither is present.
func ackSymbol(resp *Response, requested []string) string {
	if resp.Symbol != "" {
		return resp.Symbol
	}
	var result struct {
		Symbol string `json:"symbol"`
	}
	if len(resp.Result) > 0 && sonic.Unmarshal(resp.Result, &result) == nil && result.Symbol != "" {
		return result.Symbol
	}
	if len(requested) == 1 {
		return requested[0]
	}
	return ""
}

func (s *Session) markSubs(channel string, symbols []string, state SubState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		if sub, ok := s.subs[subKey{channel: channel, symbol: sym}]; ok {
			sub.State = state
		}
	}
}

func (s *Session) removeSubs(channel string, symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		delete(s.subs, subKey{channel: channel, symbol: sym})
	}
}

// Subscriptions returns a snapshot of all tracked subscriptions.
func (s *Session) Subscriptions() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *sub)
	}
	return out
}

// SubscriptionState returns the tracked state for one (channel, symbol)
// pair; ok is false when the pair is not tracked, either because it was
// never subscribed or because its entry was destroyed by an unsubscribe
// or session close.
func (s *Session) SubscriptionState(channel, symbol string) (SubState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[subKey{channel: channel, symbol: symbol}]
	if !ok {
		return 0, false
	}
	return sub.State, true
}

// withToken injects the stored token into trading params that carry none.
func (s *Session) withToken(token *string) error {
	if *token != "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return core.NewError(core.ErrorTypeInvalidUsage, "trading requires authorization")
	}
	*token = s.token
	return nil
}

// AddOrder places an order over the WebSocket.
func (s *Session) AddOrder(ctx context.Context, params AddOrderParams) (*Response, error) {
	if err := s.withToken(&params.Token); err != nil {
		return nil, err
	}
	return s.Call(ctx, MethodAddOrder, params)
}

// CancelOrder cancels orders by id over the WebSocket.
func (s *Session) CancelOrder(ctx context.Context, params CancelOrderParams) (*Response, error) {
	if err := s.withToken(&params.Token); err != nil {
		return nil, err
	}
	return s.Call(ctx, MethodCancelOrder, params)
}

// CancelAll cancels all open orders over the WebSocket.
func (s *Session) CancelAll(ctx context.Context) (*Response, error) {
	var token string
	if err := s.withToken(&token); err != nil {
		return nil, err
	}
	return s.Call(ctx, MethodCancelAll, struct {
		Token string `json:"token"`
	}{Token: token})
}

// BatchAdd places several orders on one symbol in a single request.
func (s *Session) BatchAdd(ctx context.Context, params BatchAddParams) (*Response, error) {
	if err := s.withToken(&params.Token); err != nil {
		return nil, err
	}
	return s.Call(ctx, MethodBatchAdd, params)
}

// BatchCancel cancels several orders in a single request.
func (s *Session) BatchCancel(ctx context.Context, params BatchCancelParams) (*Response, error) {
	if err := s.withToken(&params.Token); err != nil {
		return nil, err
	}
	return s.Call(ctx, MethodBatchCancel, params)
}

// route dispatches one inbound frame: responses to their pending caller,
// channel frames to their handler, everything else to OnUnhandled.
func (s *Session) route(data []byte) {
	var probe struct {
		Method  string `json:"method"`
		ReqID   int64  `json:"req_id"`
		Channel string `json:"channel"`
	}
	if err := sonic.Unmarshal(data, &probe); err != nil {
		s.logger.Warn().Err(err).Msg("undecodable frame")
		s.unhandled(data)
		return
	}

	switch {
	case probe.Channel == ChannelHeartbeat:
		s.heartbeats.Add(1)
		return

	case probe.Channel == ChannelStatus:
		s.routeStatus(data)
		return

	case probe.Channel != "":
		s.routeChannel(probe.Channel, data)
		return

	case probe.Method != "":
		s.routeResponse(probe.ReqID, data)
		return
	}

	s.unhandled(data)
}

func (s *Session) routeStatus(data []byte) {
	var msg struct {
		Data []StatusData `json:"data"`
	}
	if err := sonic.Unmarshal(data, &msg); err != nil || len(msg.Data) == 0 {
		s.unhandled(data)
		return
	}

	s.mu.Lock()
	s.status = &msg.Data[0]
	s.mu.Unlock()

	s.logger.Info().
		Str("system", msg.Data[0].System).
		Str("api_version", msg.Data[0].APIVersion).
		Msg("exchange status")

	s.routeChannel(ChannelStatus, data)
}

func (s *Session) routeChannel(channel string, data []byte) {
	s.mu.Lock()
	handler := s.handlers[channel]
	s.mu.Unlock()

	if handler == nil {
		if channel != ChannelStatus {
			s.unhandled(data)
		}
		return
	}

	var msg ChannelMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		s.logger.Warn().Err(err).Str("channel", channel).Msg("undecodable channel frame")
		return
	}
	handler(&msg)
}

func (s *Session) routeResponse(reqID int64, data []byte) {
	var resp Response
	if err := sonic.Unmarshal(data, &resp); err != nil {
		s.logger.Warn().Err(err).Msg("undecodable response frame")
		s.unhandled(data)
		return
	}

	s.mu.Lock()
	p, ok := s.pending[reqID]
	if ok {
		p.remaining--
		if p.remaining == 0 {
			delete(s.pending, reqID)
		}
	}
	s.mu.Unlock()

	if !ok {
		// Late response for a caller that gave up, or a frame the server
		// sent unsolicited.
		s.logger.Debug().Int64("req_id", reqID).Str("method", resp.Method).Msg("response with no pending request")
		s.unhandled(data)
		return
	}
	// Buffered to the expected ack count, so this never blocks even when
	// the caller has already given up.
	p.ch <- &resp
}

func (s *Session) unhandled(data []byte) {
	if s.OnUnhandled != nil {
		s.OnUnhandled(data)
	}
}

// classifyWSError maps a WebSocket error string onto the shared error
// taxonomy. The string is a single token in the same EFamily:Message
// format the REST envelope uses.
func classifyWSError(msg string) error {
	if msg == "" {
		return core.NewError(core.ErrorTypeMalformed, "failed response without error message")
	}
	return core.ClassifyTokens([]string{msg})
}

// WaitForStatus blocks until the first status frame arrives or ctx
// expires. Useful right after Connect since the server always announces
// itself before any data flows.
func (s *Session) WaitForStatus(ctx context.Context) (*StatusData, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if status := s.Status(); status != nil {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closedCh:
			return nil, core.NewError(core.ErrorTypeClosed, "session closed")
		case <-ticker.C:
		}
	}
}
