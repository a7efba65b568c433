package ipc

import "testing"

import "github.com/stretchr/testify/assert"

func TestIsInternal(t *testing.T) {
	assert.True(t, IsInternal("WCLUSTER_CLUSTER_online"))
	assert.False(t, IsInternal("online"))
	assert.False(t, IsInternal(""))
}

func TestInternalizeBareRoundTrip(t *testing.T) {
	assert.Equal(t, "WCLUSTER_CLUSTER_queryServer", Internalize("queryServer"))
	assert.Equal(t, "WCLUSTER_CLUSTER_queryServer", Internalize("WCLUSTER_CLUSTER_queryServer"))
	assert.Equal(t, "queryServer", Bare(Internalize("queryServer")))
	assert.Equal(t, "hello", Bare("hello"))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type payload struct {
		A int    `msgpack:"a"`
		B string `msgpack:"b"`
	}

	raw, err := Encode(payload{A: 1, B: "x"})
	assert.NoError(t, err)

	var out payload
	assert.NoError(t, Decode(raw, &out))
	assert.Equal(t, payload{A: 1, B: "x"}, out)
}

func TestDecodeEmptyIsNoop(t *testing.T) {
	var out struct{ A int }
	assert.NoError(t, Decode(nil, &out))
	assert.Equal(t, 0, out.A)
}
