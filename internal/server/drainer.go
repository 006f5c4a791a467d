package server

import (
	"fmt"
	"log"

	"github.com/nmorelli/go-chatserver/internal/chat"
	"github.com/nmorelli/go-chatserver/internal/stats"
)

// QueueDrainer flushes a user's offline queue when they come online.
type QueueDrainer struct {
	store    *chat.MessageStore
	registry *Registry
	stats    stats.StatsProvider
	log      *log.Logger
}

func NewQueueDrainer(store *chat.MessageStore, registry *Registry, statsProvider stats.StatsProvider, l *log.Logger) *QueueDrainer {
	return &QueueDrainer{
		store:    store,
		registry: registry,
		stats:    statsProvider,
		log:      l,
	}
}

// Drain pushes every queued message for the user to their live
// connections in arrival order, then removes the delivered entries.
// Entries are only removed after the push so a crash mid-drain leaves
// them queued for the next session rather than lost.
func (qd *QueueDrainer) Drain(userId int) error {
	msgs, err := qd.store.PendingOffline(userId)
	if err != nil {
		return fmt.Errorf("failed loading offline queue for user %d: %w", userId, err)
	}

	if len(msgs) == 0 {
		return nil
	}

	clients := qd.registry.ConnectionsFor(userId)
	if len(clients) == 0 {
		return nil
	}

	delivered := make([]int, 0, len(msgs))
	for i := range msgs {
		serverMsg := &ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Message: &msgs[i],
		}
		for _, c := range clients {
			c.queueMessage(serverMsg)
		}
		delivered = append(delivered, msgs[i].Id)
	}

	if err := qd.store.AckOffline(userId, delivered); err != nil {
		return fmt.Errorf("failed clearing offline queue for user %d: %w", userId, err)
	}

	qd.stats.Add(DrainedMessages, len(delivered))
	qd.log.Printf("drained %d queued messages for user %d", len(delivered), userId)

	return nil
}
