package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const messageColumns = "m.id, m.external_id, COALESCE(m.conversation_id, 0), COALESCE(m.group_id, 0), " +
	"COALESCE(g.external_id, ''), m.sender_id, COALESCE(m.recipient_id, 0), m.body, " +
	"m.deleted_for, m.deleted, m.read_by, m.created_at"

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET username = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, username, email, created_at, updated_at",
		params.UserId,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatRepository) CreateBlock(blockerId, blockedId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO blocks (blocker_id, blocked_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (blocker_id, blocked_id) DO NOTHING",
		blockerId,
		blockedId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatRepository) DeleteBlock(blockerId, blockedId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2",
		blockerId,
		blockedId,
	)

	return err
}

// IsBlocked reports whether either user has blocked the other. Suppression
// is symmetric, so direction does not matter here.
func (db *PgChatRepository) IsBlocked(userA, userB int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM blocks WHERE (blocker_id = $1 AND blocked_id = $2) "+
			"OR (blocker_id = $2 AND blocked_id = $1))",
		userA,
		userB,
	)

	var blocked bool
	err := row.Scan(&blocked)

	return blocked, err
}

// conversationPair puts a two-party conversation in canonical order so the
// same pair always maps to the same row.
func conversationPair(userA, userB int) (int, int) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}

func (db *PgChatRepository) GetConversation(userA, userB int) (Conversation, error) {
	a, b := conversationPair(userA, userB)
	row := db.conn.QueryRow(
		"SELECT id, user_a, user_b, created_at FROM conversations "+
			"WHERE user_a = $1 AND user_b = $2 LIMIT 1",
		a,
		b,
	)

	var conv Conversation
	err := row.Scan(&conv.Id, &conv.UserA, &conv.UserB, &conv.CreatedAt)

	return conv, err
}

func (db *PgChatRepository) GetOrCreateConversation(userA, userB int) (Conversation, error) {
	a, b := conversationPair(userA, userB)
	// the no-op DO UPDATE makes the statement return the existing row on
	// conflict instead of nothing
	row := db.conn.QueryRow(
		"INSERT INTO conversations (user_a, user_b, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (user_a, user_b) DO UPDATE SET user_a = EXCLUDED.user_a "+
			"RETURNING id, user_a, user_b, created_at",
		a,
		b,
		time.Now().UTC(),
	)

	var conv Conversation
	err := row.Scan(&conv.Id, &conv.UserA, &conv.UserB, &conv.CreatedAt)

	return conv, err
}

func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO messages (external_id, conversation_id, group_id, sender_id, recipient_id, body, created_at) "+
			"VALUES ($1, NULLIF($2, 0), NULLIF($3, 0), $4, NULLIF($5, 0), $6, $7) "+
			"RETURNING id, external_id, COALESCE(conversation_id, 0), COALESCE(group_id, 0), "+
			"sender_id, COALESCE(recipient_id, 0), body, deleted_for, deleted, read_by, created_at",
		params.ExternalId,
		params.ConversationId,
		params.GroupId,
		params.SenderId,
		params.RecipientId,
		params.Body,
		time.Now().UTC(),
	)

	var msg Message
	err = res.Scan(
		&msg.Id,
		&msg.ExternalId,
		&msg.ConversationId,
		&msg.GroupId,
		&msg.SenderId,
		&msg.RecipientId,
		&msg.Body,
		pq.Array(&msg.DeletedFor),
		&msg.Deleted,
		pq.Array(&msg.ReadBy),
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	for _, media := range params.Media {
		if _, err = tx.Exec(
			"INSERT INTO message_media (message_id, ref_id, url) VALUES ($1, $2, $3)",
			msg.Id,
			media.RefId,
			media.Url,
		); err != nil {
			return Message{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	msg.Media = params.Media
	return msg, nil
}

func (db *PgChatRepository) GetMessageByExternalId(externalId string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages m "+
			"LEFT JOIN groups g ON g.id = m.group_id "+
			"WHERE m.external_id = $1 LIMIT 1",
		externalId,
	)

	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, err
	}

	if err := db.loadMedia([]*Message{&msg}); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgChatRepository) GetConversationMessages(conversationId, viewerId, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages m "+
			"LEFT JOIN groups g ON g.id = m.group_id "+
			"WHERE m.conversation_id = $1 AND NOT $2 = ANY(m.deleted_for) "+
			"ORDER BY m.created_at, m.id LIMIT $3",
		conversationId,
		viewerId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return db.collectMessages(rows)
}

func (db *PgChatRepository) GetGroupMessages(groupId, viewerId, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages m "+
			"LEFT JOIN groups g ON g.id = m.group_id "+
			"WHERE m.group_id = $1 AND NOT $2 = ANY(m.deleted_for) "+
			"ORDER BY m.created_at, m.id LIMIT $3",
		groupId,
		viewerId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return db.collectMessages(rows)
}

func (db *PgChatRepository) MarkMessageRead(messageId, readerId int) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET read_by = array_append(read_by, $2) "+
			"WHERE id = $1 AND NOT $2 = ANY(read_by)",
		messageId,
		readerId,
	)

	return err
}

func (db *PgChatRepository) MarkMessageDeletedFor(messageId, userId int) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET deleted_for = array_append(deleted_for, $2) "+
			"WHERE id = $1 AND NOT $2 = ANY(deleted_for)",
		messageId,
		userId,
	)

	return err
}

// TombstoneMessage clears a message's content but keeps its row so thread
// ordering survives. Pending offline deliveries for it are dropped as well.
func (db *PgChatRepository) TombstoneMessage(messageId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(
		"UPDATE messages SET deleted = TRUE, body = '' WHERE id = $1",
		messageId,
	); err != nil {
		return err
	}

	if _, err = tx.Exec("DELETE FROM message_media WHERE message_id = $1", messageId); err != nil {
		return err
	}

	if _, err = tx.Exec("DELETE FROM offline_queue WHERE message_id = $1", messageId); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgChatRepository) DeleteMessageMedia(messageId int, refId string) (Media, error) {
	row := db.conn.QueryRow(
		"DELETE FROM message_media WHERE message_id = $1 AND ref_id = $2 RETURNING ref_id, url",
		messageId,
		refId,
	)

	var media Media
	err := row.Scan(&media.RefId, &media.Url)

	return media, err
}

func (db *PgChatRepository) MarkConversationDeleted(conversationId, userId int) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET deleted_for = array_append(deleted_for, $2) "+
			"WHERE conversation_id = $1 AND NOT $2 = ANY(deleted_for)",
		conversationId,
		userId,
	)

	return err
}

func (db *PgChatRepository) MarkGroupChatDeleted(groupId, userId int) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET deleted_for = array_append(deleted_for, $2) "+
			"WHERE group_id = $1 AND NOT $2 = ANY(deleted_for)",
		groupId,
		userId,
	)

	return err
}

// ListContactIds returns every user who shares a conversation or a group
// with the given user. Used as the audience for presence notifications.
func (db *PgChatRepository) ListContactIds(userId int) ([]int, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT contact_id FROM ("+
			"SELECT CASE WHEN user_a = $1 THEN user_b ELSE user_a END AS contact_id "+
			"FROM conversations WHERE user_a = $1 OR user_b = $1 "+
			"UNION "+
			"SELECT peer.account_id FROM group_members own "+
			"JOIN group_members peer ON peer.group_id = own.group_id "+
			"WHERE own.account_id = $1"+
			") c WHERE contact_id <> $1",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		contacts = append(contacts, id)
	}

	return contacts, rows.Err()
}

func (db *PgChatRepository) EnqueueOffline(recipientId, messageId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO offline_queue (recipient_id, message_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (recipient_id, message_id) DO NOTHING",
		recipientId,
		messageId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatRepository) PendingOffline(recipientId int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM offline_queue q "+
			"JOIN messages m ON m.id = q.message_id "+
			"LEFT JOIN groups g ON g.id = m.group_id "+
			"WHERE q.recipient_id = $1 "+
			"ORDER BY q.created_at, q.message_id",
		recipientId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return db.collectMessages(rows)
}

func (db *PgChatRepository) DeleteOfflineEntries(recipientId int, messageIds []int) error {
	if len(messageIds) == 0 {
		return nil
	}

	_, err := db.conn.Exec(
		"DELETE FROM offline_queue WHERE recipient_id = $1 AND message_id = ANY($2)",
		recipientId,
		pq.Array(messageIds),
	)

	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.ExternalId,
		&msg.ConversationId,
		&msg.GroupId,
		&msg.GroupExternalId,
		&msg.SenderId,
		&msg.RecipientId,
		&msg.Body,
		pq.Array(&msg.DeletedFor),
		&msg.Deleted,
		pq.Array(&msg.ReadBy),
		&msg.CreatedAt,
	)

	return msg, err
}

func (db *PgChatRepository) collectMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*Message, len(messages))
	for i := range messages {
		refs[i] = &messages[i]
	}
	if err := db.loadMedia(refs); err != nil {
		return nil, err
	}

	return messages, nil
}

func (db *PgChatRepository) loadMedia(messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	byId := make(map[int]*Message, len(messages))
	ids := make([]int, 0, len(messages))
	for _, msg := range messages {
		byId[msg.Id] = msg
		ids = append(ids, msg.Id)
	}

	rows, err := db.conn.Query(
		"SELECT message_id, ref_id, url FROM message_media WHERE message_id = ANY($1)",
		pq.Array(ids),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageId int
			media     Media
		)
		if err := rows.Scan(&messageId, &media.RefId, &media.Url); err != nil {
			return err
		}
		if msg, ok := byId[messageId]; ok {
			msg.Media = append(msg.Media, media)
		}
	}

	return rows.Err()
}
