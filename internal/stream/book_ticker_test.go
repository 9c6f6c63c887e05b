package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCache(staleAfter time.Duration) *BookTickerCache {
	return NewBookTickerCache("BTCUSDT", true, staleAfter, zap.NewNop())
}

func TestCache_EmptyUntilFirstMessage(t *testing.T) {
	c := newTestCache(10 * time.Second)

	_, ok := c.Quote()
	assert.False(t, ok)
}

func TestCache_HandleUpdatesQuote(t *testing.T) {
	c := newTestCache(10 * time.Second)

	c.handle([]byte(`{"e":"bookTicker","s":"BTCUSDT","b":"100.10","a":"100.20"}`))

	q, ok := c.Quote()
	assert.True(t, ok)
	assert.Equal(t, 100.10, q.Bid)
	assert.Equal(t, 100.20, q.Ask)
	assert.False(t, q.UpdatedAt.IsZero())
}

func TestCache_BadMessagesIgnored(t *testing.T) {
	c := newTestCache(10 * time.Second)

	c.handle([]byte(`not json`))
	c.handle([]byte(`{"s":"BTCUSDT","b":"oops","a":"100.20"}`))
	c.handle([]byte(`{"s":"BTCUSDT","b":"0","a":"100.20"}`))

	_, ok := c.Quote()
	assert.False(t, ok)
}

func TestCache_StaleQuoteRejected(t *testing.T) {
	c := newTestCache(time.Nanosecond)

	c.handle([]byte(`{"s":"BTCUSDT","b":"100.10","a":"100.20"}`))
	time.Sleep(time.Millisecond)

	_, ok := c.Quote()
	assert.False(t, ok)
}

func TestCache_LatestMessageWins(t *testing.T) {
	c := newTestCache(10 * time.Second)

	c.handle([]byte(`{"s":"BTCUSDT","b":"100.10","a":"100.20"}`))
	c.handle([]byte(`{"s":"BTCUSDT","b":"100.30","a":"100.40"}`))

	q, ok := c.Quote()
	assert.True(t, ok)
	assert.Equal(t, 100.30, q.Bid)
	assert.Equal(t, 100.40, q.Ask)
}
