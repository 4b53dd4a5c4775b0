package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvKeyIsSymmetric(t *testing.T) {
	k1 := GenConvKey("alice@x.io", "bob@x.io", 42, "m1")
	k2 := GenConvKey("Bob@x.io", "alice@x.io", 42, "m1")
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, GenConvPrefix("bob@x.io", "alice@x.io")))
}

func TestConvKeyRoundTrip(t *testing.T) {
	cases := []struct {
		a, b string
		ts   int64
		id   string
	}{
		{"alice@x.io", "bob@x.io", 0, "m-1"},
		{"we:ird@x.io", "bob@x.io", 1700000000000000000, "0190c1f2-aaaa"},
	}
	for _, c := range cases {
		k := GenConvKey(c.a, c.b, c.ts, c.id)
		parts, err := ParseConvKey(k)
		require.NoError(t, err, k)
		assert.Equal(t, c.ts, parts.CreatedNS)
		assert.Equal(t, c.id, parts.MessageID)
		assert.ElementsMatch(t, []string{c.a, c.b}, []string{parts.Low, parts.High})
	}
}

func TestConvKeysSortByTime(t *testing.T) {
	early := GenConvKey("a@x", "b@x", 9, "z")
	late := GenConvKey("a@x", "b@x", 10, "a")
	assert.Less(t, early, late)
}

func TestPartnerKey(t *testing.T) {
	k := GenPartnerKey("a@x.io", "b:c@x.io")
	p, err := ParsePartnerKey(k)
	require.NoError(t, err)
	assert.Equal(t, "b:c@x.io", p)
	assert.True(t, strings.HasPrefix(k, GenPartnerPrefix("a@x.io")))
}

func TestUpperBound(t *testing.T) {
	assert.Equal(t, []byte("c:b"), UpperBound("c:a"))
	assert.Equal(t, []byte("d"), UpperBound("c\xff"))
	assert.Nil(t, UpperBound("\xff\xff"))
}

func TestValidateMessageID(t *testing.T) {
	assert.NoError(t, ValidateMessageID("0190c1f2-7b1c-7d3e-8000-000000000001"))
	assert.Error(t, ValidateMessageID("m:bad"))
	assert.Error(t, ValidateMessageID(""))
}
