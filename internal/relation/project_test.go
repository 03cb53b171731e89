package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_KeyOnly(t *testing.T) {
	h, err := KeyOnly(session).Heading()
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "session_id"}, h.Names())
}

func TestProject_RetainsKey(t *testing.T) {
	h, err := Project{Rel: session, Attrs: []string{"setup"}}.Heading()
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "session_id", "setup"}, h.Names())
}

func TestProject_Star(t *testing.T) {
	h, err := Projection{}.Apply(trace).Heading()
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "session_id", "signal"}, h.Names())
	assert.Equal(t, []string{"signal"}, h.Blobs())
}

func TestProject_Renames(t *testing.T) {
	p := Project{
		Rel:     session,
		Renames: []Rename{{As: "subject", From: "subject_id"}, {As: "rig", From: "setup"}},
	}

	cols, err := p.Columns()
	require.NoError(t, err)
	require.Len(t, cols, 3)

	assert.Equal(t, "subject", cols[0].Name)
	assert.Equal(t, "subject_id", cols[0].Source)
	assert.True(t, cols[0].InKey, "renamed key attribute stays in key")
	assert.Equal(t, "session_id", cols[1].Name)
	assert.Equal(t, "rig", cols[2].Name)
	assert.Equal(t, "setup", cols[2].Source)
	assert.False(t, cols[2].InKey)
}

func TestProject_AttrAndRenameOfSameSource(t *testing.T) {
	h, err := Project{Rel: session, Attrs: []string{"setup"}, Renames: []Rename{{As: "rig", From: "setup"}}}.Heading()
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "session_id", "setup", "rig"}, h.Names())
}

func TestProject_StarWithRenames(t *testing.T) {
	tests := []struct {
		name    string
		renames []Rename
		want    []string
	}{
		{"attribute", []Rename{{As: "rig", From: "setup"}}, []string{"subject_id", "session_id", "rig"}},
		{"key", []Rename{{As: "subject", From: "subject_id"}}, []string{"subject", "session_id", "setup"}},
		{"swap", []Rename{{As: "setup", From: "session_id"}, {As: "session_id", From: "setup"}}, []string{"subject_id", "setup", "session_id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Project{Rel: session, Attrs: []string{"*"}, Renames: tt.renames}.Heading()
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Names())
		})
	}
}

func TestProject_Errors(t *testing.T) {
	tests := []struct {
		name string
		proj Project
	}{
		{"unknown attr", Project{Rel: session, Attrs: []string{"nope"}}},
		{"unknown rename source", Project{Rel: session, Renames: []Rename{{As: "x", From: "nope"}}}},
		{"renamed twice", Project{Rel: session, Renames: []Rename{{As: "x", From: "setup"}, {As: "y", From: "setup"}}}},
		{"rename collides", Project{Rel: session, Renames: []Rename{{As: "session_id", From: "setup"}}}},
		{"star rename collides", Project{Rel: session, Attrs: []string{"*"}, Renames: []Rename{{As: "session_id", From: "setup"}}}},
		{"empty rename", Project{Rel: session, Renames: []Rename{{As: "", From: "setup"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.proj.Heading()
			require.Error(t, err)
			assert.True(t, IsProjectionError(err), "got %v", err)
		})
	}
}

func TestParseRename(t *testing.T) {
	r, err := ParseRename("rig = setup")
	require.NoError(t, err)
	assert.Equal(t, Rename{As: "rig", From: "setup"}, r)

	for _, bad := range []string{"rig", "=setup", "rig="} {
		_, err := ParseRename(bad)
		assert.True(t, IsProjectionError(err), bad)
	}
}
