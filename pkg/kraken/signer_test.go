package kraken

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Key material and expected signature from Kraken's public REST
// authentication documentation.
func TestSign_DocumentedVector(t *testing.T) {
	secret, err := DecodeSecret("kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg==")
	require.NoError(t, err)

	form := url.Values{}
	form.Set("nonce", "1616492376594")
	form.Set("ordertype", "limit")
	form.Set("pair", "XBTUSD")
	form.Set("price", "37500")
	form.Set("type", "buy")
	form.Set("volume", "1.25")

	sig := Sign(secret, "/0/private/AddOrder", "1616492376594", form)

	assert.Equal(t, "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ==", sig)
}

func TestSign_DependsOnEveryInput(t *testing.T) {
	secret, err := DecodeSecret("kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg==")
	require.NoError(t, err)

	form := url.Values{}
	form.Set("nonce", "1616492376594")

	base := Sign(secret, "/0/private/Balance", "1616492376594", form)

	assert.NotEqual(t, base, Sign(secret, "/0/private/TradeBalance", "1616492376594", form))

	form2 := url.Values{}
	form2.Set("nonce", "1616492376595")
	assert.NotEqual(t, base, Sign(secret, "/0/private/Balance", "1616492376595", form2))

	other := append([]byte{0x01}, secret...)
	assert.NotEqual(t, base, Sign(other, "/0/private/Balance", "1616492376594", form))
}

func TestDecodeSecret_Invalid(t *testing.T) {
	_, err := DecodeSecret("not base64 !!!")
	assert.Error(t, err)
}
