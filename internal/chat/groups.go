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

// GroupRoster owns group membership and role state. Every mutation runs as
// a single transaction per group so concurrent admin actions compose
// instead of overwriting each other.
type GroupRoster struct {
	db  database.ChatRepository
	log *log.Logger
	// swapped out in tests
	generateId func() (string, error)
}

func NewGroupRoster(db database.ChatRepository, logger *log.Logger) *GroupRoster {
	return &GroupRoster{
		db:         db,
		log:        logger,
		generateId: shortid.Generate,
	}
}

// Create makes a new group with the creator as its sole admin. Initial
// members join as regular members.
func (r *GroupRoster) Create(name string, creatorId int, memberIds []int, description, icon string) (types.Group, error) {
	if name == "" {
		return types.Group{}, NewValidationError("group name is required")
	}

	externalId, err := r.generateId()
	if err != nil {
		return types.Group{}, fmt.Errorf("generate group id: %w", err)
	}

	group, err := r.db.CreateGroup(database.CreateGroupParams{
		ExternalId:  externalId,
		Name:        name,
		Description: description,
		Icon:        icon,
		OwnerId:     creatorId,
		MemberIds:   memberIds,
	})
	if err != nil {
		return types.Group{}, fmt.Errorf("create group: %w", err)
	}

	return toGroup(group), nil
}

func (r *GroupRoster) Group(externalId string) (types.Group, error) {
	group, err := r.getGroup(externalId)
	if err != nil {
		return types.Group{}, err
	}
	return toGroup(group), nil
}

func (r *GroupRoster) AddMembers(groupExternalId string, actorId int, userIds []int) (types.Group, error) {
	group, err := r.getGroup(groupExternalId)
	if err != nil {
		return types.Group{}, err
	}

	if err := r.db.AddGroupMembers(group.Id, actorId, userIds); err != nil {
		return types.Group{}, rosterError("add members", err)
	}

	return r.Group(groupExternalId)
}

// RemoveMembers removes the given users. If the removal would leave the
// group with members but no admin, the earliest-joined remaining member is
// promoted in the same transaction.
func (r *GroupRoster) RemoveMembers(groupExternalId string, actorId int, userIds []int) (types.Group, error) {
	group, err := r.getGroup(groupExternalId)
	if err != nil {
		return types.Group{}, err
	}

	promoted, err := r.db.RemoveGroupMembers(group.Id, actorId, userIds)
	if err != nil {
		return types.Group{}, rosterError("remove members", err)
	}

	if promoted != 0 {
		r.log.Printf("group %q: promoted user %d to admin after removal", groupExternalId, promoted)
	}

	return r.Group(groupExternalId)
}

// Leave is self-removal and always permitted for a member. The same
// auto-promotion rule as RemoveMembers applies when the last admin walks
// out.
func (r *GroupRoster) Leave(groupExternalId string, userId int) error {
	group, err := r.getGroup(groupExternalId)
	if err != nil {
		return err
	}

	promoted, err := r.db.LeaveGroup(group.Id, userId)
	if err != nil {
		if errors.Is(err, database.ErrNotMember) {
			return NewNotFoundError("membership")
		}
		return fmt.Errorf("leave group: %w", err)
	}

	if promoted != 0 {
		r.log.Printf("group %q: promoted user %d to admin after leave", groupExternalId, promoted)
	}

	return nil
}

func (r *GroupRoster) Promote(groupExternalId string, actorId, targetId int) error {
	group, err := r.getGroup(groupExternalId)
	if err != nil {
		return err
	}

	if err := r.db.PromoteMember(group.Id, actorId, targetId); err != nil {
		return rosterError("promote", err)
	}

	return nil
}

// Demote strips admin from target. Demoting the only admin requires a
// successor, who is promoted atomically with the demotion.
func (r *GroupRoster) Demote(groupExternalId string, actorId, targetId, successorId int) error {
	group, err := r.getGroup(groupExternalId)
	if err != nil {
		return err
	}

	if err := r.db.DemoteAdmin(group.Id, actorId, targetId, successorId); err != nil {
		if errors.Is(err, database.ErrLastAdmin) {
			return NewValidationError("cannot demote the only admin without promoting a successor")
		}
		return rosterError("demote", err)
	}

	return nil
}

func (r *GroupRoster) ChangeDescription(groupExternalId string, actorId int, description string) error {
	group, err := r.getGroup(groupExternalId)
	if err != nil {
		return err
	}

	if err := r.db.UpdateGroupMeta(group.Id, actorId, database.UpdateGroupMetaParams{
		Description: &description,
	}); err != nil {
		return rosterError("change description", err)
	}

	return nil
}

func (r *GroupRoster) ChangeIcon(groupExternalId string, actorId int, icon string) error {
	group, err := r.getGroup(groupExternalId)
	if err != nil {
		return err
	}

	if err := r.db.UpdateGroupMeta(group.Id, actorId, database.UpdateGroupMetaParams{
		Icon: &icon,
	}); err != nil {
		return rosterError("change icon", err)
	}

	return nil
}

func (r *GroupRoster) getGroup(externalId string) (database.Group, error) {
	group, err := r.db.GetGroupByExternalId(externalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Group{}, NewNotFoundError("group")
		}
		return database.Group{}, fmt.Errorf("get group: %w", err)
	}
	return group, nil
}

func rosterError(op string, err error) error {
	switch {
	case errors.Is(err, database.ErrNotAdmin):
		return NewAuthorizationError("only a group admin can %s", op)
	case errors.Is(err, database.ErrNotMember):
		return NewNotFoundError("member")
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func toGroup(group database.Group) types.Group {
	out := types.Group{
		Id:          group.Id,
		ExternalId:  group.ExternalId,
		Name:        group.Name,
		Description: group.Description,
		Icon:        group.Icon,
		OwnerId:     group.OwnerId,
		CreatedAt:   group.CreatedAt,
		UpdatedAt:   group.UpdatedAt,
	}

	for _, m := range group.Members {
		out.Members = append(out.Members, types.GroupMember{
			UserId:   m.AccountId,
			Username: m.Username,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}

	return out
}
