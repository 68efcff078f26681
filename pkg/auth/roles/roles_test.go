package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapper_MapGroups(t *testing.T) {
	t.Parallel()

	exact := map[string]Role{
		"c4a8b4f8-1234-5678-9abc-def012345678": RoleAdmin,
		"0f1e2d3c-aaaa-bbbb-cccc-ddddeeeeffff": RoleDataOwner,
	}

	tests := []struct {
		name        string
		groups      []string
		want        Set
		wantHighest Role
	}{
		{
			name:        "nil groups yields user floor",
			groups:      nil,
			want:        Set{RoleUser},
			wantHighest: RoleUser,
		},
		{
			name:        "empty groups yields user floor",
			groups:      []string{},
			want:        Set{RoleUser},
			wantHighest: RoleUser,
		},
		{
			name:        "exact group ID match",
			groups:      []string{"c4a8b4f8-1234-5678-9abc-def012345678"},
			want:        Set{RoleAdmin, RoleUser},
			wantHighest: RoleAdmin,
		},
		{
			name:        "keyword fallback admin",
			groups:      []string{"CorpAdmins"},
			want:        Set{RoleAdmin, RoleUser},
			wantHighest: RoleAdmin,
		},
		{
			name:        "keyword fallback data owner both spellings",
			groups:      []string{"finance-data_owner", "DataOwners"},
			want:        Set{RoleDataOwner, RoleUser},
			wantHighest: RoleDataOwner,
		},
		{
			name:        "keyword fallback process owner",
			groups:      []string{"sales-ProcessOwner"},
			want:        Set{RoleProcessOwner, RoleUser},
			wantHighest: RoleProcessOwner,
		},
		{
			name:        "readonly maps to viewer",
			groups:      []string{"eng-readonly"},
			want:        Set{RoleViewer, RoleUser},
			wantHighest: RoleViewer,
		},
		{
			name:        "unmatched groups contribute nothing",
			groups:      []string{"random-group", "another"},
			want:        Set{RoleUser},
			wantHighest: RoleUser,
		},
		{
			name:        "multiple memberships accumulate",
			groups:      []string{"GroupA", "GroupAdmin", "viewers"},
			want:        Set{RoleAdmin, RoleViewer, RoleUser},
			wantHighest: RoleAdmin,
		},
		{
			name:        "exact match wins over keywords",
			groups:      []string{"0f1e2d3c-aaaa-bbbb-cccc-ddddeeeeffff"},
			want:        Set{RoleDataOwner, RoleUser},
			wantHighest: RoleDataOwner,
		},
	}

	mapper := NewMapper(exact)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mapper.MapGroups(tt.groups)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Contains(RoleUser), "user floor must always be present")
			assert.Equal(t, tt.wantHighest, got.Highest())
		})
	}
}

func TestSet_Highest(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RoleAdmin, Set{RoleViewer, RoleAdmin}.Highest())
	assert.Equal(t, RoleDataOwner, Set{RoleUser, RoleDataOwner, RoleViewer}.Highest())
	assert.Equal(t, RoleUser, Set{}.Highest())
	assert.Equal(t, RoleUser, Set(nil).Highest())
}

func TestSetFromStrings(t *testing.T) {
	t.Parallel()

	set := SetFromStrings([]string{"admin", "bogus", "viewer", "admin"})
	assert.Equal(t, Set{RoleAdmin, RoleViewer, RoleUser}, set)

	assert.Equal(t, Set{RoleUser}, SetFromStrings(nil))
}

func TestParse(t *testing.T) {
	t.Parallel()

	r, ok := Parse("process_owner")
	assert.True(t, ok)
	assert.Equal(t, RoleProcessOwner, r)

	_, ok = Parse("superuser")
	assert.False(t, ok)
}
