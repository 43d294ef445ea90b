package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	registered := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)

	u, err := New("acc-1", "Aibek", registered)
	require.NoError(t, err)

	assert.Equal(t, "acc-1", u.ID)
	assert.Equal(t, "Aibek", u.DisplayName)
	assert.Equal(t, XP(0), u.TotalXP)
	assert.Equal(t, Level(1), u.Level)
	assert.Equal(t, 0, u.SkillPointsAvailable)
	assert.Equal(t, registered, u.RegisteredAt)
	assert.NotNil(t, u.Attributes)
}

func TestNew_EmptyIDRejected(t *testing.T) {
	_, err := New("", "Aibek", time.Now())
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestApplyXP(t *testing.T) {
	u, err := New("acc-1", "Aibek", time.Now())
	require.NoError(t, err)

	// No level change: the total moves, points do not.
	gained := u.ApplyXP(50, 1, 0)
	assert.Equal(t, 0, gained)
	assert.Equal(t, XP(50), u.TotalXP)
	assert.Equal(t, Level(1), u.Level)
	assert.Equal(t, 0, u.SkillPointsAvailable)

	// Two levels at once credit the whole skill point batch.
	gained = u.ApplyXP(300, 3, 10)
	assert.Equal(t, 2, gained)
	assert.Equal(t, XP(300), u.TotalXP)
	assert.Equal(t, Level(3), u.Level)
	assert.Equal(t, 10, u.SkillPointsAvailable)
}

func TestAllocateSkillPoints(t *testing.T) {
	u, err := New("acc-1", "Aibek", time.Now())
	require.NoError(t, err)
	u.SkillPointsAvailable = 10

	err = u.AllocateSkillPoints(map[Attribute]int{
		AttributeMemory: 4,
		AttributeFocus:  3,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, u.Attributes[AttributeMemory])
	assert.Equal(t, 3, u.Attributes[AttributeFocus])
	assert.Equal(t, 3, u.SkillPointsAvailable)
	assert.Equal(t, 7, u.SkillPointsSpent)
}

func TestAllocateSkillPoints_AtomicOnError(t *testing.T) {
	u, err := New("acc-1", "Aibek", time.Now())
	require.NoError(t, err)
	u.SkillPointsAvailable = 5

	tests := []struct {
		name        string
		allocations map[Attribute]int
		wantErr     error
	}{
		{"over budget", map[Attribute]int{AttributeMemory: 6}, ErrInsufficientPoints},
		{"unknown attribute", map[Attribute]int{Attribute("charisma"): 1}, ErrUnknownAttribute},
		{"non-positive points", map[Attribute]int{AttributeMemory: 0}, ErrNegativeAllocation},
		{"partially invalid", map[Attribute]int{AttributeMemory: 2, Attribute("luck"): 1}, ErrUnknownAttribute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := u.AllocateSkillPoints(tt.allocations)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, u.Attributes)
			assert.Equal(t, 5, u.SkillPointsAvailable)
			assert.Equal(t, 0, u.SkillPointsSpent)
		})
	}
}

func TestClone_Independent(t *testing.T) {
	u, err := New("acc-1", "Aibek", time.Now())
	require.NoError(t, err)
	u.SkillPointsAvailable = 5
	require.NoError(t, u.AllocateSkillPoints(map[Attribute]int{AttributeFocus: 2}))

	clone := u.Clone()
	clone.Attributes[AttributeFocus] = 99
	clone.TotalXP = 1000

	assert.Equal(t, 2, u.Attributes[AttributeFocus])
	assert.Equal(t, XP(0), u.TotalXP)
}

func TestAttribute_IsValid(t *testing.T) {
	assert.True(t, AttributeMemory.IsValid())
	assert.True(t, AttributeMotivation.IsValid())
	assert.False(t, Attribute("charisma").IsValid())
	assert.False(t, Attribute("").IsValid())
}
