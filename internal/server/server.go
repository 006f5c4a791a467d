package server

import (
	"context"
	"fmt"
	"log"

	"github.com/nmorelli/go-chatserver/internal/chat"
	"github.com/nmorelli/go-chatserver/internal/database"
	"github.com/nmorelli/go-chatserver/internal/stats"
	"github.com/nmorelli/go-chatserver/internal/types"
)

// Metric names published via expvar.
const (
	ActiveConnections    = "ActiveConnections"
	OnlineUsers          = "OnlineUsers"
	LiveDeliveries       = "LiveDeliveries"
	QueuedDeliveries     = "QueuedDeliveries"
	SuppressedDeliveries = "SuppressedDeliveries"
	DrainedMessages      = "DrainedMessages"
)

type ChatServer struct {
	log            *log.Logger
	db             database.ChatRepository
	stats          stats.StatsProvider
	store          *chat.MessageStore
	roster         *chat.GroupRoster
	registry       *Registry
	router         *DeliveryRouter
	drainer        *QueueDrainer
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, store *chat.MessageStore, roster *chat.GroupRoster, statsProvider stats.StatsProvider) (*ChatServer, error) {
	registry := NewRegistry()

	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          statsProvider,
		store:          store,
		roster:         roster,
		registry:       registry,
		router:         NewDeliveryRouter(registry, db, statsProvider, logger),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	cs.drainer = NewQueueDrainer(store, registry, statsProvider, logger)

	for _, name := range []string{
		ActiveConnections,
		OnlineUsers,
		LiveDeliveries,
		QueuedDeliveries,
		SuppressedDeliveries,
		DrainedMessages,
	} {
		statsProvider.RegisterMetric(name)
	}

	return cs, nil
}

// RegisterClient hands a freshly upgraded connection to the hub. It
// reports false when the hub has stopped accepting clients.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	select {
	case cs.RegisterChan <- c:
		return true
	case <-cs.stop:
		return false
	}
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection from %q", client.user.Username)
			cs.handleRegister(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.user.Username)
			cs.handleDeregister(client)
		case <-cs.stop:
			cs.log.Println("stopping clients")
			for _, c := range cs.registry.AllClients() {
				c.stopClient()
			}

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) handleRegister(client *Client) {
	first := cs.registry.Register(client.user.Id, client)
	cs.stats.Incr(ActiveConnections)

	if !first {
		return
	}

	cs.stats.Incr(OnlineUsers)
	cs.notifyPresence(client.user.Id, true)

	// The queue is drained exactly once per offline-to-online
	// transition, additional devices attach without a replay.
	if err := cs.drainer.Drain(client.user.Id); err != nil {
		cs.log.Printf("drain for user %d: %s", client.user.Id, err)
	}
}

func (cs *ChatServer) handleDeregister(client *Client) {
	last := cs.registry.Unregister(client.user.Id, client)
	cs.stats.Decr(ActiveConnections)

	if last {
		cs.stats.Decr(OnlineUsers)
		cs.notifyPresence(client.user.Id, false)
	}
}

// notifyPresence tells the user's contacts that they went on or
// offline. Contacts are users sharing a conversation or a group.
func (cs *ChatServer) notifyPresence(userId int, online bool) {
	contactIds, err := cs.db.ListContactIds(userId)
	if err != nil {
		cs.log.Printf("failed listing contacts for user %d: %s", userId, err)
		return
	}

	event := EventUserOffline
	if online {
		event = EventUserOnline
	}

	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Event:    event,
			Presence: &Presence{UserId: userId, Online: online},
		},
	}

	for _, contactId := range contactIds {
		for _, c := range cs.registry.ConnectionsFor(contactId) {
			c.queueMessage(msg)
		}
	}
}

// SendDirect persists a direct message and routes it to the recipient.
func (cs *ChatServer) SendDirect(senderId, recipientId int, body string, media []types.MediaRef) (types.Message, DeliveryOutcome, error) {
	msg, err := cs.store.CreateDirectMessage(senderId, recipientId, body, media)
	if err != nil {
		return types.Message{}, "", err
	}

	outcome, err := cs.router.Route(msg, recipientId)
	if err != nil {
		return types.Message{}, "", fmt.Errorf("route message %s: %w", msg.ExternalId, err)
	}

	cs.notifyDelivery(senderId, msg, recipientId, outcome)

	return msg, outcome, nil
}

// SendGroup persists a group message and fans it out to every member
// except the sender.
func (cs *ChatServer) SendGroup(senderId int, groupExternalId, body string, media []types.MediaRef) (types.Message, map[int]DeliveryOutcome, error) {
	msg, group, err := cs.store.CreateGroupMessage(senderId, groupExternalId, body, media)
	if err != nil {
		return types.Message{}, nil, err
	}

	outcomes := cs.router.Fanout(msg, group)
	for memberId, outcome := range outcomes {
		cs.notifyDelivery(senderId, msg, memberId, outcome)
	}

	return msg, outcomes, nil
}

// MarkRead records a read receipt and notifies the sender.
func (cs *ChatServer) MarkRead(readerId int, messageExternalId string) (types.Message, error) {
	msg, err := cs.store.MarkRead(messageExternalId, readerId)
	if err != nil {
		return types.Message{}, err
	}

	notification := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Event:    EventMessageRead,
			Delivery: &Delivery{MessageId: msg.ExternalId, UserId: readerId},
		},
	}
	for _, c := range cs.registry.ConnectionsFor(msg.SenderId) {
		c.queueMessage(notification)
	}

	return msg, nil
}

// NotifyMessageDeleted pushes a deletion notice to every recipient of
// a tombstoned message.
func (cs *ChatServer) NotifyMessageDeleted(msg types.Message) {
	notification := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Event:    EventMessageDeleted,
			Delivery: &Delivery{MessageId: msg.ExternalId},
		},
	}

	for _, recipientId := range cs.recipientsOf(msg) {
		for _, c := range cs.registry.ConnectionsFor(recipientId) {
			c.queueMessage(notification)
		}
	}
}

// NotifyGroupUpdated pushes a roster change notice to every member.
func (cs *ChatServer) NotifyGroupUpdated(group types.Group) {
	notification := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Event: EventGroupUpdated,
			Group: &Group{GroupId: group.ExternalId},
		},
	}

	for _, member := range group.Members {
		for _, c := range cs.registry.ConnectionsFor(member.UserId) {
			c.queueMessage(notification)
		}
	}
}

// notifyDelivery reports a delivery status back to the sender's other
// connections. A suppressed delivery is reported as delivered so the
// sender cannot probe for blocks.
func (cs *ChatServer) notifyDelivery(senderId int, msg types.Message, recipientId int, outcome DeliveryOutcome) {
	event := EventMessageDelivered
	if outcome == DeliveryQueued {
		event = EventMessageQueued
	}

	notification := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Event:    event,
			Delivery: &Delivery{MessageId: msg.ExternalId, UserId: recipientId},
		},
	}

	for _, c := range cs.registry.ConnectionsFor(senderId) {
		c.queueMessage(notification)
	}
}

// RelayTyping forwards a typing indicator to the target's live
// connections. Indicators are ephemeral: nothing is stored or queued
// for offline users, and blocked pairs see nothing.
func (cs *ChatServer) RelayTyping(senderId int, typing *Typing) {
	notification := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Event:  EventUserTyping,
			Typing: &TypingEvent{UserId: senderId, GroupId: typing.GroupId},
		},
	}

	targets := []int{typing.RecipientId}
	if typing.GroupId != "" {
		group, err := cs.roster.Group(typing.GroupId)
		if err != nil {
			cs.log.Printf("failed resolving group %s: %s", typing.GroupId, err)
			return
		}

		targets = targets[:0]
		for _, member := range group.Members {
			if member.UserId != senderId {
				targets = append(targets, member.UserId)
			}
		}
	}

	for _, targetId := range targets {
		conns := cs.registry.ConnectionsFor(targetId)
		if len(conns) == 0 {
			continue
		}

		blocked, err := cs.db.IsBlocked(senderId, targetId)
		if err != nil || blocked {
			continue
		}

		for _, c := range conns {
			c.queueMessage(notification)
		}
	}
}

func (cs *ChatServer) recipientsOf(msg types.Message) []int {
	if msg.GroupId == "" {
		if msg.RecipientId != 0 {
			return []int{msg.RecipientId}
		}
		return nil
	}

	group, err := cs.roster.Group(msg.GroupId)
	if err != nil {
		cs.log.Printf("failed resolving group %s: %s", msg.GroupId, err)
		return nil
	}

	recipients := make([]int, 0, len(group.Members))
	for _, member := range group.Members {
		if member.UserId == msg.SenderId {
			continue
		}
		recipients = append(recipients, member.UserId)
	}
	return recipients
}

// IsOnline reports whether the user has at least one live connection.
func (cs *ChatServer) IsOnline(userId int) bool {
	return cs.registry.IsOnline(userId)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
