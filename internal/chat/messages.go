package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/teris-io/shortid"

	"github.com/nmorelli/go-chatserver/internal/database"
	"github.com/nmorelli/go-chatserver/internal/types"
)

// MessageStore owns the durable message state: direct and group messages,
// their per-recipient deletion and read flags, and tombstones. Persistence
// is the commit point for a send; routing happens after and may fail
// without invalidating the stored message.
type MessageStore struct {
	db  database.ChatRepository
	log *log.Logger
	// swapped out in tests
	generateId func() (string, error)
}

func NewMessageStore(db database.ChatRepository, logger *log.Logger) *MessageStore {
	return &MessageStore{
		db:         db,
		log:        logger,
		generateId: shortid.Generate,
	}
}

func (s *MessageStore) CreateDirectMessage(senderId, recipientId int, body string, media []types.MediaRef) (types.Message, error) {
	if body == "" && len(media) == 0 {
		return types.Message{}, NewValidationError("either message or media is required")
	}

	if senderId == recipientId {
		return types.Message{}, NewValidationError("cannot send a message to yourself")
	}

	conv, err := s.db.GetOrCreateConversation(senderId, recipientId)
	if err != nil {
		return types.Message{}, fmt.Errorf("get or create conversation: %w", err)
	}

	externalId, err := s.generateId()
	if err != nil {
		return types.Message{}, fmt.Errorf("generate message id: %w", err)
	}

	msg, err := s.db.CreateMessage(database.CreateMessageParams{
		ExternalId:     externalId,
		ConversationId: conv.Id,
		SenderId:       senderId,
		RecipientId:    recipientId,
		Body:           body,
		Media:          toDbMedia(media),
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	return toMessage(msg), nil
}

func (s *MessageStore) CreateGroupMessage(senderId int, groupExternalId, body string, media []types.MediaRef) (types.Message, database.Group, error) {
	group, err := s.db.GetGroupByExternalId(groupExternalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, database.Group{}, NewNotFoundError("group")
		}
		return types.Message{}, database.Group{}, fmt.Errorf("get group: %w", err)
	}

	if !isMember(group, senderId) {
		return types.Message{}, database.Group{}, NewAuthorizationError("sender is not a member of the group")
	}

	if body == "" && len(media) == 0 {
		return types.Message{}, database.Group{}, NewValidationError("either message or media is required")
	}

	externalId, err := s.generateId()
	if err != nil {
		return types.Message{}, database.Group{}, fmt.Errorf("generate message id: %w", err)
	}

	msg, err := s.db.CreateMessage(database.CreateMessageParams{
		ExternalId: externalId,
		GroupId:    group.Id,
		SenderId:   senderId,
		Body:       body,
		Media:      toDbMedia(media),
	})
	if err != nil {
		return types.Message{}, database.Group{}, fmt.Errorf("create group message: %w", err)
	}

	msg.GroupExternalId = group.ExternalId
	return toMessage(msg), group, nil
}

// MarkRead flags the message read by reader. Idempotent.
func (s *MessageStore) MarkRead(messageExternalId string, readerId int) (types.Message, error) {
	msg, err := s.getMessage(messageExternalId)
	if err != nil {
		return types.Message{}, err
	}

	if err := s.requireParticipant(msg, readerId); err != nil {
		return types.Message{}, err
	}

	if err := s.db.MarkMessageRead(msg.Id, readerId); err != nil {
		return types.Message{}, fmt.Errorf("mark message read: %w", err)
	}

	out := toMessage(msg)
	out.Read = true
	return out, nil
}

// DeleteForSelf hides the message from one user. Other participants keep
// seeing it. Idempotent.
func (s *MessageStore) DeleteForSelf(messageExternalId string, userId int) error {
	msg, err := s.getMessage(messageExternalId)
	if err != nil {
		return err
	}

	if err := s.requireParticipant(msg, userId); err != nil {
		return err
	}

	if err := s.db.MarkMessageDeletedFor(msg.Id, userId); err != nil {
		return fmt.Errorf("mark message deleted: %w", err)
	}

	return nil
}

// DeleteForEveryone tombstones the message: content is cleared for all
// participants but the id and thread position survive. Only the original
// sender may do this, and it cannot be undone.
func (s *MessageStore) DeleteForEveryone(messageExternalId string, requesterId int) (types.Message, error) {
	msg, err := s.getMessage(messageExternalId)
	if err != nil {
		return types.Message{}, err
	}

	if msg.SenderId != requesterId {
		return types.Message{}, NewAuthorizationError("only the sender can delete a message for everyone")
	}

	if err := s.db.TombstoneMessage(msg.Id); err != nil {
		return types.Message{}, fmt.Errorf("tombstone message: %w", err)
	}

	out := toMessage(msg)
	out.Deleted = true
	out.Body = ""
	out.Media = nil
	return out, nil
}

// DeleteMedia removes one media reference and returns it so the caller can
// issue the compensating blob-store delete.
func (s *MessageStore) DeleteMedia(messageExternalId, refId string) (types.MediaRef, error) {
	msg, err := s.getMessage(messageExternalId)
	if err != nil {
		return types.MediaRef{}, err
	}

	media, err := s.db.DeleteMessageMedia(msg.Id, refId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.MediaRef{}, NewNotFoundError("media")
		}
		return types.MediaRef{}, fmt.Errorf("delete media: %w", err)
	}

	return types.MediaRef{Id: media.RefId, Url: media.Url}, nil
}

// ClearConversation hides every message in the two-party conversation from
// the requesting user only.
func (s *MessageStore) ClearConversation(userId, otherUserId int) error {
	conv, err := s.db.GetConversation(userId, otherUserId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError("conversation")
		}
		return fmt.Errorf("get conversation: %w", err)
	}

	if err := s.db.MarkConversationDeleted(conv.Id, userId); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}

	return nil
}

func (s *MessageStore) ClearGroupChat(groupExternalId string, userId int) error {
	group, err := s.db.GetGroupByExternalId(groupExternalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError("group")
		}
		return fmt.Errorf("get group: %w", err)
	}

	if !isMember(group, userId) {
		return NewAuthorizationError("user is not a member of the group")
	}

	if err := s.db.MarkGroupChatDeleted(group.Id, userId); err != nil {
		return fmt.Errorf("clear group chat: %w", err)
	}

	return nil
}

// ConversationMessages returns the direct history between two users as
// seen by the viewer: messages the viewer deleted are excluded and
// tombstoned messages come back with empty content. An empty slice, not an
// error, is returned when the pair never talked.
func (s *MessageStore) ConversationMessages(viewerId, otherUserId, limit int) ([]types.Message, error) {
	conv, err := s.db.GetConversation(viewerId, otherUserId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []types.Message{}, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	msgs, err := s.db.GetConversationMessages(conv.Id, viewerId, limit)
	if err != nil {
		return nil, fmt.Errorf("get conversation messages: %w", err)
	}

	return toMessages(msgs), nil
}

func (s *MessageStore) GroupMessages(groupExternalId string, viewerId, limit int) ([]types.Message, error) {
	group, err := s.db.GetGroupByExternalId(groupExternalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError("group")
		}
		return nil, fmt.Errorf("get group: %w", err)
	}

	if !isMember(group, viewerId) {
		return nil, NewAuthorizationError("user is not a member of the group")
	}

	msgs, err := s.db.GetGroupMessages(group.Id, viewerId, limit)
	if err != nil {
		return nil, fmt.Errorf("get group messages: %w", err)
	}

	return toMessages(msgs), nil
}

// PendingOffline returns a user's queued messages in arrival order.
func (s *MessageStore) PendingOffline(userId int) ([]types.Message, error) {
	msgs, err := s.db.PendingOffline(userId)
	if err != nil {
		return nil, fmt.Errorf("pending offline: %w", err)
	}
	return toMessages(msgs), nil
}

// AckOffline removes queue entries once their messages have been
// handed to a live connection.
func (s *MessageStore) AckOffline(userId int, messageIds []int) error {
	if len(messageIds) == 0 {
		return nil
	}
	if err := s.db.DeleteOfflineEntries(userId, messageIds); err != nil {
		return fmt.Errorf("ack offline: %w", err)
	}
	return nil
}

// requireParticipant rejects callers who are neither a party to the
// direct conversation nor a member of the group the message belongs to.
func (s *MessageStore) requireParticipant(msg database.Message, userId int) error {
	if msg.GroupId == 0 {
		if userId == msg.SenderId || userId == msg.RecipientId {
			return nil
		}
		return NewAuthorizationError("user is not a participant in the conversation")
	}

	group, err := s.db.GetGroupByExternalId(msg.GroupExternalId)
	if err != nil {
		return fmt.Errorf("get group: %w", err)
	}
	if !isMember(group, userId) {
		return NewAuthorizationError("user is not a member of the group")
	}
	return nil
}

func (s *MessageStore) getMessage(externalId string) (database.Message, error) {
	msg, err := s.db.GetMessageByExternalId(externalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Message{}, NewNotFoundError("message")
		}
		return database.Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func isMember(group database.Group, userId int) bool {
	for _, m := range group.Members {
		if m.AccountId == userId {
			return true
		}
	}
	return false
}

func toDbMedia(media []types.MediaRef) []database.Media {
	out := make([]database.Media, len(media))
	for i, m := range media {
		out[i] = database.Media{RefId: m.Id, Url: m.Url}
	}
	return out
}

func toMessage(msg database.Message) types.Message {
	out := types.Message{
		Id:          msg.Id,
		ExternalId:  msg.ExternalId,
		SenderId:    msg.SenderId,
		RecipientId: msg.RecipientId,
		GroupId:     msg.GroupExternalId,
		Body:        msg.Body,
		Deleted:     msg.Deleted,
		Read:        len(msg.ReadBy) > 0,
		CreatedAt:   msg.CreatedAt,
	}

	if msg.Deleted {
		// tombstone: id and position survive, content does not
		out.Body = ""
		return out
	}

	for _, m := range msg.Media {
		out.Media = append(out.Media, types.MediaRef{Id: m.RefId, Url: m.Url})
	}

	return out
}

func toMessages(msgs []database.Message) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = toMessage(msg)
	}
	return out
}
