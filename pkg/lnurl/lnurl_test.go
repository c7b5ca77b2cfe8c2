package lnurl

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Shape(t *testing.T) {
	encoded, err := Encode("https://fancy.domain/withdraw/ln/cb?k1=abc")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(encoded, "LNURL1"))
	assert.Equal(t, strings.ToUpper(encoded), encoded)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	urls := []string{
		"https://fancy.domain/withdraw/ln/cb?k1=aa64c1312b25a8cfc3e92312b70934c2c8e1b9e3ea6b12f65a24b132accf6e05",
		"https://fancy.domain/deposit/ln?k1=00ff",
		"https://example.com/",
	}

	for _, url := range urls {
		encoded, err := Encode(url)
		require.NoError(t, err)

		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, url, decoded)
	}
}

// decode-then-encode must reproduce any well-formed lowercase LNURL string.
func TestDecodeEncode_RoundTrip(t *testing.T) {
	encoded, err := Encode("https://fancy.domain/withdraw/ln/cb?k1=deadbeef")
	require.NoError(t, err)

	lower := strings.ToLower(encoded)
	url, err := Decode(lower)
	require.NoError(t, err)

	again, err := Encode(url)
	require.NoError(t, err)
	assert.Equal(t, lower, strings.ToLower(again))
}

func TestDecode_RejectsWrongPrefix(t *testing.T) {
	// valid bech32, wrong hrp
	_, err := Decode("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	assert.Error(t, err)
}

func TestWithdrawResponse_WireFormat(t *testing.T) {
	resp := NewWithdrawResponse("https://fancy.domain/withdraw", "abcd", 1000000, 50000, "Some withdraw description")

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Equal(t, "withdrawRequest", fields["tag"])
	assert.Equal(t, "https://fancy.domain/withdraw", fields["callback"])
	assert.Equal(t, "abcd", fields["k1"])
	assert.Equal(t, float64(1000000), fields["maxWithdrawable"])
	assert.Equal(t, float64(50000), fields["minWithdrawable"])
	assert.Equal(t, "Some withdraw description", fields["defaultDescription"])
}

func TestPayResponse_WireFormat(t *testing.T) {
	resp := NewPayResponse("https://fancy.domain/deposit?k1=abcd", 10000, 100000000, PayMetadata("Some deposit description"))

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Equal(t, "payRequest", fields["tag"])
	assert.Equal(t, float64(10000), fields["minSendable"])
	assert.Equal(t, float64(100000000), fields["maxSendable"])
	assert.Equal(t, `[["text/plain","Some deposit description"]]`, fields["metadata"])
}

func TestPayActionResponse_WireFormat(t *testing.T) {
	resp := NewPayActionResponse("lnbc1...", MessageAction("Thank you!"))

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pr":"lnbc1...","successAction":{"tag":"message","message":"Thank you!"},"routes":[]}`, string(raw))
}

func TestErrorAndSuccessEnvelopes(t *testing.T) {
	rawErr, err := json.Marshal(Error("Request expired"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ERROR","reason":"Request expired"}`, string(rawErr))

	rawOK, err := json.Marshal(Success())
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"OK"}`, string(rawOK))
}
