package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageTTLGetSet(t *testing.T) {
	c := NewPageTTL(time.Minute)

	_, ok := c.Get("/beneficiaries", "u-1")
	assert.False(t, ok)

	c.Set("/beneficiaries", "u-1", []byte(`{"items":[]}`))
	body, ok := c.Get("/beneficiaries", "u-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"items":[]}`, string(body))

	_, ok = c.Get("/beneficiaries", "u-2")
	assert.False(t, ok, "entries are per caller")
}

func TestRevalidateDropsRouteForAllCallers(t *testing.T) {
	c := NewPageTTL(time.Minute)
	c.Set("/beneficiaries", "u-1", []byte("a"))
	c.Set("/beneficiaries", "u-2", []byte("b"))
	c.Set("/dashboard", "u-1", []byte("c"))
	c.Set("/stories", "u-1", []byte("d"))

	removed := c.Revalidate("/beneficiaries", "/dashboard")
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("/stories", "u-1")
	assert.True(t, ok)
}

func TestRevalidateMatchesWholeRoute(t *testing.T) {
	c := NewPageTTL(time.Minute)
	c.Set("/reports", "u-1", []byte("a"))
	c.Set("/reports-archive", "u-1", []byte("b"))

	assert.Equal(t, 1, c.Revalidate("/reports"))
	_, ok := c.Get("/reports-archive", "u-1")
	assert.True(t, ok)
}

func TestPageTTLExpires(t *testing.T) {
	c := NewPageTTL(20 * time.Millisecond)
	c.Set("/dashboard", "u-1", []byte("a"))

	assert.Eventually(t, func() bool {
		_, ok := c.Get("/dashboard", "u-1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNoop(t *testing.T) {
	var c Pages = Noop{}
	c.Set("/dashboard", "u-1", []byte("a"))
	_, ok := c.Get("/dashboard", "u-1")
	assert.False(t, ok)
	assert.Zero(t, c.Revalidate("/dashboard"))
}
