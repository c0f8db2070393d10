package bus

import (
	"fmt"
	"testing"
	"time"

	"github.com/omnichain/relayer/relaying/types"
	"github.com/omnichain/relayer/testing/assert"
	"github.com/omnichain/relayer/testing/require"
	testifyrequire "github.com/stretchr/testify/require"
)

func testEvent(nonce uint64) *types.Event {
	return types.NewEvent("0xabc", nonce, types.ActorRelayer, types.StepObserved, types.StatusSuccess)
}

func TestSend_PreservesOrder(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	for i := uint64(1); i <= 5; i++ {
		assert.Equal(t, 1, b.Send(testEvent(i)))
	}
	for i := uint64(1); i <= 5; i++ {
		ev := <-sub.Chan()
		assert.Equal(t, i, ev.Nonce)
	}
}

func TestSend_DropsOnFullBuffer(t *testing.T) {
	b := NewWithBuffer(2)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	assert.Equal(t, 1, b.Send(testEvent(1)))
	assert.Equal(t, 1, b.Send(testEvent(2)))
	// Buffer full; this one is lost for the slow subscriber.
	assert.Equal(t, 0, b.Send(testEvent(3)))
	assert.Equal(t, uint64(1), sub.Dropped())

	// The retained events arrive intact and in order.
	assert.Equal(t, uint64(1), (<-sub.Chan()).Nonce)
	assert.Equal(t, uint64(2), (<-sub.Chan()).Nonce)
}

func TestSend_NoSubscribers(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.Send(testEvent(1)))
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	sub.Unsubscribe()
	// Safe to call twice.
	sub.Unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Chan()
	assert.Equal(t, false, open)
}

func TestSend_ConcurrentSubscribers(t *testing.T) {
	b := New()
	const subscribers = 4
	const events = 100

	done := make(chan uint64, subscribers)
	for i := 0; i < subscribers; i++ {
		sub := b.Subscribe()
		go func() {
			var last uint64
			for ev := range sub.Chan() {
				last = ev.Nonce
				if last == events {
					break
				}
			}
			done <- last
		}()
	}

	go func() {
		for i := uint64(1); i <= events; i++ {
			b.Send(testEvent(i))
		}
	}()

	testifyrequire.Eventually(t, func() bool {
		return len(done) == subscribers
	}, 5*time.Second, 10*time.Millisecond, fmt.Sprintf("expected %d subscribers to finish", subscribers))
}
