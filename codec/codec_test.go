package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	c, ok = ByName("go-json")
	require.True(t, ok)
	assert.Equal(t, "go-json", c.Name())

	_, ok = ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsAreWireCompatible(t *testing.T) {
	type payload struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}
	in := payload{Name: "doc", Count: 3, Tags: []string{"a", "b"}}

	b, err := JSON{}.Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, GoJSON{}.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}
