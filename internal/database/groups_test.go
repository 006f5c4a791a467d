package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func member(accountId int, role string, joined time.Time) GroupMember {
	return GroupMember{GroupId: 1, AccountId: accountId, Role: role, JoinedAt: joined}
}

func TestPickSuccessor(t *testing.T) {
	t0 := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	t.Run("earliest joined member promoted when no admin remains", func(t *testing.T) {
		members := []GroupMember{
			member(3, "member", t0),
			member(2, "member", t0.Add(time.Hour)),
			member(4, "member", t0.Add(2*time.Hour)),
		}

		successor, ok := pickSuccessor(members)
		assert.True(t, ok)
		assert.Equal(t, 3, successor)
	})
	t.Run("no promotion while an admin remains", func(t *testing.T) {
		members := []GroupMember{
			member(3, "member", t0),
			member(2, "admin", t0.Add(time.Hour)),
		}

		_, ok := pickSuccessor(members)
		assert.False(t, ok)
	})
	t.Run("no promotion when the group emptied out", func(t *testing.T) {
		_, ok := pickSuccessor(nil)
		assert.False(t, ok)
	})
}

func TestDemotionNeedsSuccessor(t *testing.T) {
	t0 := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	t.Run("sole admin", func(t *testing.T) {
		members := []GroupMember{
			member(1, "admin", t0),
			member(2, "member", t0.Add(time.Hour)),
		}

		assert.True(t, demotionNeedsSuccessor(members, 1))
	})
	t.Run("one of two admins", func(t *testing.T) {
		members := []GroupMember{
			member(1, "admin", t0),
			member(2, "admin", t0.Add(time.Hour)),
		}

		assert.False(t, demotionNeedsSuccessor(members, 1))
	})
	t.Run("target is a regular member", func(t *testing.T) {
		members := []GroupMember{
			member(1, "admin", t0),
			member(2, "member", t0.Add(time.Hour)),
		}

		assert.False(t, demotionNeedsSuccessor(members, 2))
	})
}

func TestHasMember(t *testing.T) {
	t0 := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	members := []GroupMember{
		member(1, "admin", t0),
		member(2, "member", t0.Add(time.Hour)),
	}

	assert.True(t, hasMember(members, 2))
	assert.False(t, hasMember(members, 9))
}
