package server

import (
	"fmt"
	"log"

	"github.com/nmorelli/go-chatserver/internal/database"
	"github.com/nmorelli/go-chatserver/internal/stats"
	"github.com/nmorelli/go-chatserver/internal/types"
)

// DeliveryOutcome describes how a message reached (or did not reach)
// a single recipient.
type DeliveryOutcome string

const (
	// DeliveryLive means the message was pushed to at least one
	// connection of an online recipient.
	DeliveryLive DeliveryOutcome = "live"
	// DeliveryQueued means the recipient was offline and the message
	// was parked in the offline queue.
	DeliveryQueued DeliveryOutcome = "queued"
	// DeliverySuppressed means a block exists between sender and
	// recipient and the message was neither pushed nor queued.
	DeliverySuppressed DeliveryOutcome = "suppressed"
)

// DeliveryRouter decides, per recipient, whether a message is pushed
// live, queued for later, or suppressed by a block.
type DeliveryRouter struct {
	registry *Registry
	db       database.ChatRepository
	stats    stats.StatsProvider
	log      *log.Logger
}

func NewDeliveryRouter(registry *Registry, db database.ChatRepository, statsProvider stats.StatsProvider, l *log.Logger) *DeliveryRouter {
	return &DeliveryRouter{
		registry: registry,
		db:       db,
		stats:    statsProvider,
		log:      l,
	}
}

// Route delivers msg to a single recipient. The block check runs first
// so a blocked pair produces no queue entry and no live push.
func (dr *DeliveryRouter) Route(msg types.Message, recipientId int) (DeliveryOutcome, error) {
	blocked, err := dr.db.IsBlocked(msg.SenderId, recipientId)
	if err != nil {
		return "", fmt.Errorf("failed checking block state: %w", err)
	}

	if blocked {
		dr.stats.Add(SuppressedDeliveries, 1)
		return DeliverySuppressed, nil
	}

	if clients := dr.registry.ConnectionsFor(recipientId); len(clients) > 0 {
		serverMsg := &ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Message: &msg,
		}
		for _, c := range clients {
			c.queueMessage(serverMsg)
		}

		dr.stats.Add(LiveDeliveries, 1)
		return DeliveryLive, nil
	}

	if err := dr.db.EnqueueOffline(recipientId, msg.Id); err != nil {
		return "", fmt.Errorf("failed queueing message %s for user %d: %w", msg.ExternalId, recipientId, err)
	}

	dr.stats.Add(QueuedDeliveries, 1)
	return DeliveryQueued, nil
}
