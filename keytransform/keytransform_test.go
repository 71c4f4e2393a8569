package keytransform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransformers(t *testing.T) {
	assert.Equal(t, "Some:Key", Identity("Some:Key"))
	assert.Equal(t, "some:key", Lowercase("Some:Key"))

	// known sha1 of "abc"
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", SHA1Hex("abc"))
	assert.Len(t, SHA1Hex(strings.Repeat("x", 10_000)), 40,
		"hashed keys stay under the protocol length cap")

	h := XXHashHex("abc")
	assert.NotEmpty(t, h)
	assert.Equal(t, h, XXHashHex("abc"), "hashing is deterministic")
	assert.NotEqual(t, h, XXHashHex("abd"))
	assert.LessOrEqual(t, len(XXHashHex(strings.Repeat("x", 10_000))), 16)
}

func TestRegistry(t *testing.T) {
	for name, probe := range map[string]struct{ in, want string }{
		"identity":  {"AbC", "AbC"},
		"lowercase": {"AbC", "abc"},
	} {
		tr, err := New(name)
		assert.NoError(t, err, name)
		assert.Equal(t, probe.want, tr(probe.in), name)
	}

	for _, name := range []string{"sha1", "xxhash"} {
		tr, err := New(name)
		assert.NoError(t, err, name)
		assert.NotEqual(t, "longkey", tr("longkey"), name)
	}

	_, err := New("bogus")
	assert.Error(t, err)

	Register("reversed-test", func(key string) string {
		b := []byte(key)
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
		return string(b)
	})
	tr, err := New("reversed-test")
	assert.NoError(t, err)
	assert.Equal(t, "cba", tr("abc"))
}
