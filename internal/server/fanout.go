package server

import (
	"github.com/nmorelli/go-chatserver/internal/database"
	"github.com/nmorelli/go-chatserver/internal/types"
)

// Fanout routes a group message to every member except the sender.
// Each member's delivery is independent: a failure for one member is
// logged and does not stop delivery to the rest. The returned map
// holds the outcome for every member that was attempted.
func (dr *DeliveryRouter) Fanout(msg types.Message, group database.Group) map[int]DeliveryOutcome {
	outcomes := make(map[int]DeliveryOutcome, len(group.Members))
	for _, member := range group.Members {
		if member.AccountId == msg.SenderId {
			continue
		}

		outcome, err := dr.Route(msg, member.AccountId)
		if err != nil {
			dr.log.Printf("fanout of message %s to user %d in group %s failed: %s",
				msg.ExternalId, member.AccountId, group.ExternalId, err)
			continue
		}
		outcomes[member.AccountId] = outcome
	}

	return outcomes
}
