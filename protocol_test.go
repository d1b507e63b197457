package lrthrome

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsMismatchingVersion(t *testing.T) {
	buf := []byte{100, byte(VariantRequest)}
	_, _, err := Decode(buf)
	require.Error(t, err)
	assert.Equal(t, "Mismatching protocol version, expected 1, received 100", err.Error())
	assert.Equal(t, KindVersionMismatch, KindOf(err))
}

func TestDecodeRejectsInvalidVariant(t *testing.T) {
	buf := []byte{ProtocolVersion, 250}
	_, _, err := Decode(buf)
	require.Error(t, err)
	assert.Equal(t, KindInvalidMessageVariant, KindOf(err))
}

func TestDecodeIncompleteHeaderIsIncomplete(t *testing.T) {
	_, _, err := Decode([]byte{ProtocolVersion})
	require.Error(t, err)
	assert.True(t, IsIncomplete(err))
}

func TestEstablishedRoundTrips(t *testing.T) {
	msg := Established{RateLimit: 10, TreeSize: 1234, CacheTTL: 300, PeerTTL: 60, Banner: "lrthrome"}
	buf := msg.Encode(nil)

	decoded, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, msg, decoded)
}

func TestRequestRoundTripsWithMeta(t *testing.T) {
	msg := Request{
		IP:   net.IPv4(1, 2, 3, 4),
		Meta: []MetaPair{{Key: "asn", Value: "64500"}},
	}
	buf := msg.Encode(nil)

	decoded, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	req, ok := decoded.(Request)
	require.True(t, ok)
	assert.True(t, req.IP.Equal(msg.IP))
	require.Len(t, req.Meta, 1)
	assert.Equal(t, msg.Meta[0], req.Meta[0])
}

func TestResponseOkFoundRoundTrips(t *testing.T) {
	msg := ResponseOkFound{
		IP:      net.IPv4(8, 8, 8, 8),
		Prefix:  net.IPv4(8, 8, 8, 0),
		MaskLen: 24,
	}
	buf := msg.Encode(nil)

	decoded, _, err := Decode(buf)
	require.NoError(t, err)
	resp, ok := decoded.(ResponseOkFound)
	require.True(t, ok)
	assert.True(t, resp.IP.Equal(msg.IP))
	assert.True(t, resp.Prefix.Equal(msg.Prefix))
	assert.Equal(t, msg.MaskLen, resp.MaskLen)
}

func TestResponseOkNotFoundRoundTrips(t *testing.T) {
	msg := ResponseOkNotFound{IP: net.IPv4(9, 9, 9, 9)}
	buf := msg.Encode(nil)

	decoded, _, err := Decode(buf)
	require.NoError(t, err)
	resp, ok := decoded.(ResponseOkNotFound)
	require.True(t, ok)
	assert.True(t, resp.IP.Equal(msg.IP))
}

func TestResponseErrorRatelimitedRoundTrips(t *testing.T) {
	resp := NewResponseError(KindRatelimited, ErrRatelimited.Error())
	buf := resp.Encode(nil)

	decoded, _, err := Decode(buf)
	require.NoError(t, err)
	got, ok := decoded.(ResponseError)
	require.True(t, ok)
	assert.Equal(t, KindRatelimited.Code(), got.Code)
	assert.Equal(t, "Exceeded ratelimit", got.Message)
}

func TestDecodeSplitAcrossTwoChunksIsIncompleteThenComplete(t *testing.T) {
	msg := Identify{Identification: "probe"}
	buf := msg.Encode(nil)

	_, _, err := Decode(buf[:len(buf)-2])
	require.Error(t, err)
	assert.True(t, IsIncomplete(err))

	decoded, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, msg, decoded)
}

func TestDecodeRejectsNonUTF8CString(t *testing.T) {
	buf := []byte{ProtocolVersion, byte(VariantIdentify), 0xff, 0xfe, 0x00}
	_, _, err := Decode(buf)
	require.Error(t, err)
	assert.False(t, IsIncomplete(err))
	assert.Equal(t, KindMalformedPayload, KindOf(err))
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	buf := make([]byte, maxFrameLen+1)
	_, _, err := Decode(buf)
	require.Error(t, err)
	assert.Equal(t, KindMalformedPayload, KindOf(err))
}
