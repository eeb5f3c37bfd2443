// Package krakenws manages a Kraken WebSocket v2 session: connection
// lifecycle, request/response correlation by req_id, subscription state
// tracking, and token-based authentication for private traffic.
//
// A Session is single-use. Build one, connect, register handlers, then
// subscribe:
//
//	session := krakenws.NewSession(core.DefaultConfig())
//	if err := session.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Handle(krakenws.ChannelTicker, func(msg *krakenws.ChannelMessage) {
//		fmt.Println(string(msg.Data))
//	})
//	err := session.Subscribe(ctx, krakenws.SubscribeParams{
//		Channel: krakenws.ChannelTicker,
//		Symbol:  []string{"BTC/USD"},
//	})
//
// Private channels and trading methods need a token from the REST
// GetWebSocketsToken endpoint, stored once with Authorize. The session
// does not reconnect: when the connection drops, every in-flight request
// fails with a closed-session error and the caller decides whether to
// build a new session and resubscribe.
package krakenws
