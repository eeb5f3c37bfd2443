// Package kraken implements the authenticated REST pipeline for the Kraken
// Spot API: nonce generation, request signing, rate-limited dispatch, and
// response-envelope classification.
//
// A Client owns a monotonic nonce sequence, so each API key should be used
// by exactly one Client. Public endpoints need no credentials:
//
//	client, err := kraken.New(core.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	ticker, err := client.Ticker(ctx, "XBT/USD")
//
// Private endpoints require credentials on the config. Each private call
// draws a fresh nonce, signs the form body with HMAC-SHA512, and transmits
// exactly the bytes that were signed:
//
//	cfg := core.DefaultConfig().WithCredentials(&core.Credentials{
//		APIKey:    os.Getenv("KRAKEN_API_KEY"),
//		APISecret: os.Getenv("KRAKEN_API_SECRET"),
//	})
//
// Failures surface as *core.Error with the raw exchange error tokens
// preserved, so callers can branch on core.IsRateLimited and friends
// without string matching.
package kraken
