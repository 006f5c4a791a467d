package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

func (db *PgChatRepository) CreateGroup(params CreateGroupParams) (Group, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO groups (external_id, name, description, icon, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, external_id, name, description, icon, owner_id, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Description,
		params.Icon,
		params.OwnerId,
		time.Now().UTC(),
	)

	var group Group
	err = res.Scan(
		&group.Id,
		&group.ExternalId,
		&group.Name,
		&group.Description,
		&group.Icon,
		&group.OwnerId,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		return Group{}, err
	}

	if _, err = tx.Exec(
		"INSERT INTO group_members (group_id, account_id, role, joined_at) VALUES ($1, $2, 'admin', $3)",
		group.Id,
		params.OwnerId,
		time.Now().UTC(),
	); err != nil {
		return Group{}, err
	}

	for _, memberId := range params.MemberIds {
		if memberId == params.OwnerId {
			continue
		}
		if _, err = tx.Exec(
			"INSERT INTO group_members (group_id, account_id, role, joined_at) VALUES ($1, $2, 'member', $3) "+
				"ON CONFLICT (group_id, account_id) DO NOTHING",
			group.Id,
			memberId,
			time.Now().UTC(),
		); err != nil {
			return Group{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Group{}, err
	}

	members, err := db.getGroupMembers(group.Id)
	if err != nil {
		return Group{}, err
	}
	group.Members = members

	return group, nil
}

func (db *PgChatRepository) GetGroupByExternalId(externalId string) (Group, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, description, icon, owner_id, created_at, updated_at "+
			"FROM groups WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var group Group
	err := row.Scan(
		&group.Id,
		&group.ExternalId,
		&group.Name,
		&group.Description,
		&group.Icon,
		&group.OwnerId,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		return Group{}, err
	}

	members, err := db.getGroupMembers(group.Id)
	if err != nil {
		return Group{}, err
	}
	group.Members = members

	return group, nil
}

func (db *PgChatRepository) getGroupMembers(groupId int) ([]GroupMember, error) {
	rows, err := db.conn.Query(
		"SELECT gm.group_id, gm.account_id, a.username, gm.role, gm.joined_at "+
			"FROM group_members gm JOIN accounts a ON a.id = gm.account_id "+
			"WHERE gm.group_id = $1 ORDER BY gm.joined_at, gm.account_id",
		groupId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.GroupId, &m.AccountId, &m.Username, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgChatRepository) AddGroupMembers(groupId, actorId int, userIds []int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockGroup(tx, groupId); err != nil {
		return err
	}

	if err = requireAdmin(tx, groupId, actorId); err != nil {
		return err
	}

	for _, userId := range userIds {
		// duplicate adds are a no-op
		if _, err = tx.Exec(
			"INSERT INTO group_members (group_id, account_id, role, joined_at) VALUES ($1, $2, 'member', $3) "+
				"ON CONFLICT (group_id, account_id) DO NOTHING",
			groupId,
			userId,
			time.Now().UTC(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *PgChatRepository) RemoveGroupMembers(groupId, actorId int, userIds []int) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockGroup(tx, groupId); err != nil {
		return 0, err
	}

	if err = requireAdmin(tx, groupId, actorId); err != nil {
		return 0, err
	}

	if _, err = tx.Exec(
		"DELETE FROM group_members WHERE group_id = $1 AND account_id = ANY($2)",
		groupId,
		pq.Array(userIds),
	); err != nil {
		return 0, err
	}

	promoted, err := ensureAdmin(tx, groupId)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	return promoted, nil
}

func (db *PgChatRepository) LeaveGroup(groupId, userId int) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockGroup(tx, groupId); err != nil {
		return 0, err
	}

	res, err := tx.Exec(
		"DELETE FROM group_members WHERE group_id = $1 AND account_id = $2",
		groupId,
		userId,
	)
	if err != nil {
		return 0, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotMember
		return 0, err
	}

	promoted, err := ensureAdmin(tx, groupId)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}

	return promoted, nil
}

func (db *PgChatRepository) PromoteMember(groupId, actorId, targetId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockGroup(tx, groupId); err != nil {
		return err
	}

	if err = requireAdmin(tx, groupId, actorId); err != nil {
		return err
	}

	if err = promote(tx, groupId, targetId); err != nil {
		return err
	}

	return tx.Commit()
}

// DemoteAdmin demotes target to a regular member. When target is the only
// admin a successor must be supplied and is promoted in the same
// transaction; otherwise the call fails with ErrLastAdmin.
func (db *PgChatRepository) DemoteAdmin(groupId, actorId, targetId, successorId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockGroup(tx, groupId); err != nil {
		return err
	}

	if err = requireAdmin(tx, groupId, actorId); err != nil {
		return err
	}

	members, err := txGroupMembers(tx, groupId)
	if err != nil {
		return err
	}

	if !hasMember(members, targetId) {
		err = ErrNotMember
		return err
	}

	if demotionNeedsSuccessor(members, targetId) {
		if successorId == 0 || successorId == targetId {
			err = ErrLastAdmin
			return err
		}
		if err = promote(tx, groupId, successorId); err != nil {
			return err
		}
	}

	if _, err = tx.Exec(
		"UPDATE group_members SET role = 'member' WHERE group_id = $1 AND account_id = $2",
		groupId,
		targetId,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgChatRepository) UpdateGroupMeta(groupId, actorId int, params UpdateGroupMetaParams) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = lockGroup(tx, groupId); err != nil {
		return err
	}

	if err = requireAdmin(tx, groupId, actorId); err != nil {
		return err
	}

	if params.Description != nil {
		if _, err = tx.Exec(
			"UPDATE groups SET description = $2, updated_at = $3 WHERE id = $1",
			groupId,
			*params.Description,
			time.Now().UTC(),
		); err != nil {
			return err
		}
	}

	if params.Icon != nil {
		if _, err = tx.Exec(
			"UPDATE groups SET icon = $2, updated_at = $3 WHERE id = $1",
			groupId,
			*params.Icon,
			time.Now().UTC(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// lockGroup serializes roster mutations per group so concurrent admin
// actions never lose an update.
func lockGroup(tx *sql.Tx, groupId int) error {
	var id int
	err := tx.QueryRow("SELECT id FROM groups WHERE id = $1 FOR UPDATE", groupId).Scan(&id)
	if err != nil {
		return fmt.Errorf("lock group %d: %w", groupId, err)
	}
	return nil
}

func requireAdmin(tx *sql.Tx, groupId, actorId int) error {
	var role string
	err := tx.QueryRow(
		"SELECT role FROM group_members WHERE group_id = $1 AND account_id = $2",
		groupId,
		actorId,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotAdmin
	}
	if err != nil {
		return err
	}

	if role != "admin" {
		return ErrNotAdmin
	}
	return nil
}

func promote(tx *sql.Tx, groupId, targetId int) error {
	res, err := tx.Exec(
		"UPDATE group_members SET role = 'admin' WHERE group_id = $1 AND account_id = $2",
		groupId,
		targetId,
	)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotMember
	}
	return nil
}

// ensureAdmin restores the "at least one admin while members remain"
// invariant after a removal or leave. Returns the promoted account id,
// or zero.
func ensureAdmin(tx *sql.Tx, groupId int) (int, error) {
	members, err := txGroupMembers(tx, groupId)
	if err != nil {
		return 0, err
	}

	successor, ok := pickSuccessor(members)
	if !ok {
		return 0, nil
	}

	if err := promote(tx, groupId, successor); err != nil {
		return 0, err
	}

	return successor, nil
}

// txGroupMembers reads the roster inside the mutation transaction, in
// join order with account id as the tiebreak.
func txGroupMembers(tx *sql.Tx, groupId int) ([]GroupMember, error) {
	rows, err := tx.Query(
		"SELECT group_id, account_id, role, joined_at FROM group_members "+
			"WHERE group_id = $1 ORDER BY joined_at, account_id",
		groupId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.GroupId, &m.AccountId, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// pickSuccessor returns the member to promote when a roster change left
// the group without an admin: the earliest-joined remaining member.
// Members must be in join order. The second return is false when the
// group still has an admin or emptied out entirely.
func pickSuccessor(members []GroupMember) (int, bool) {
	if len(members) == 0 {
		return 0, false
	}

	for _, m := range members {
		if m.Role == "admin" {
			return 0, false
		}
	}

	return members[0].AccountId, true
}

// demotionNeedsSuccessor reports whether demoting target would leave the
// group adminless, i.e. target is the only admin.
func demotionNeedsSuccessor(members []GroupMember, targetId int) bool {
	admins := 0
	targetIsAdmin := false
	for _, m := range members {
		if m.Role != "admin" {
			continue
		}
		admins++
		if m.AccountId == targetId {
			targetIsAdmin = true
		}
	}

	return targetIsAdmin && admins == 1
}

func hasMember(members []GroupMember, accountId int) bool {
	for _, m := range members {
		if m.AccountId == accountId {
			return true
		}
	}
	return false
}
