/*
Package events provides a generic, non-blocking pub/sub broker used as the
broadcast mechanism for collabcore's asynchronous notifications.

Two consumers use it:

  - pkg/rowcache publishes a batch of fetched rows on every
    DidFetchRow event, so subscribers find out when a background fetch
    task completes without polling.
  - pkg/sink exposes sink state transitions (Init/Syncing/Finished) as a
    watch-style stream built on the same broker.

# Architecture

	┌──────────────────── BROKER[T] ───────────────────────────┐
	│                                                            │
	│  Publisher → internal channel (buffer: 100)               │
	│       ↓                                                    │
	│  distribution loop (goroutine started by Start)            │
	│       ↓                                                    │
	│  Subscriber channels (buffer: 50 each)                     │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

Publish never blocks on a slow subscriber: broadcast is a non-blocking
send per subscriber, so a full subscriber buffer drops that value for that
subscriber rather than stalling the broker or other subscribers.

# Usage

	broker := events.NewBroker[types.RowDetail]()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for detail := range sub {
			// handle a fetched row
		}
	}()

	broker.Publish(detail)

Row sessions hold no broker subscription: evicting one from the row
cache's LRU closes its session handle and does not touch the broker.
*/
package events
