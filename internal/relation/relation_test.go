package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relpop/internal/ir"
)

var (
	subject = MustTable("Subject",
		Key("subject_id", TypeInt),
		Attr("species", TypeString),
	)
	session = MustTable("Session",
		Key("subject_id", TypeInt),
		Key("session_id", TypeInt),
		Attr("setup", TypeInt),
	)
	trace = MustTable("Trace",
		Key("subject_id", TypeInt),
		Key("session_id", TypeInt),
		Attr("signal", TypeBlob),
	)
)

func TestRelationSealed(t *testing.T) {
	var _ Relation = Table{}
	var _ Relation = Join{}
	var _ Relation = Difference{}
	var _ Relation = Restrict{}
	var _ Relation = Project{}

	var _ Predicate = Equals{}
	var _ Predicate = And{}
	var _ Predicate = Not{}
	var _ Predicate = Matching{}
}

func TestNewTable_Validation(t *testing.T) {
	tests := []struct {
		name  string
		table string
		attrs []Attribute
	}{
		{"empty name", "", []Attribute{Key("a", TypeInt)}},
		{"no key", "T", []Attribute{Attr("a", TypeInt)}},
		{"duplicate", "T", []Attribute{Key("a", TypeInt), Attr("a", TypeInt)}},
		{"bad type", "T", []Attribute{Key("a", AttrType("money"))}},
		{"blob key", "T", []Attribute{Key("a", TypeBlob)}},
		{"float key", "T", []Attribute{Key("a", TypeFloat)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.table, tt.attrs...)
			require.Error(t, err)
			assert.True(t, IsHeadingError(err))
		})
	}
}

func TestHeading_Accessors(t *testing.T) {
	h, err := trace.Heading()
	require.NoError(t, err)

	assert.Equal(t, []string{"subject_id", "session_id", "signal"}, h.Names())
	assert.Equal(t, []string{"subject_id", "session_id"}, h.KeyNames())
	assert.Equal(t, []string{"signal"}, h.Blobs())
	assert.Equal(t, 2, h.Index("signal"))
	assert.Equal(t, -1, h.Index("missing"))

	sh, _ := subject.Heading()
	assert.Equal(t, []string{"subject_id"}, h.Common(sh))
}

func TestJoin_Heading(t *testing.T) {
	h, err := Join{Left: subject, Right: session}.Heading()
	require.NoError(t, err)

	assert.Equal(t, []string{"subject_id", "species", "session_id", "setup"}, h.Names())
	assert.Equal(t, []string{"subject_id", "session_id"}, h.KeyNames())
}

func TestJoin_TypeMismatch(t *testing.T) {
	other := MustTable("Other", Key("subject_id", TypeString))
	_, err := Join{Left: subject, Right: other}.Heading()
	require.Error(t, err)
	assert.True(t, IsHeadingError(err))
}

func TestJoinAll(t *testing.T) {
	assert.Nil(t, JoinAll())
	assert.Equal(t, subject, JoinAll(subject))

	rel := JoinAll(subject, session, trace)
	h, err := rel.Heading()
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "species", "session_id", "setup", "signal"}, h.Names())
}

func TestDifference_Heading(t *testing.T) {
	h, err := Difference{Left: session, Right: trace}.Heading()
	require.NoError(t, err)
	sh, _ := session.Heading()
	assert.Equal(t, sh, h)

	_, err = Difference{Left: session, Right: nil}.Heading()
	assert.Error(t, err)
}

func TestRestrict_ValidatesPredicate(t *testing.T) {
	_, err := Restrict{Rel: session, Where: Equals{Attr: "setup", Value: ir.IRInt(1)}}.Heading()
	assert.NoError(t, err)

	_, err = Restrict{Rel: session, Where: Equals{Attr: "nope", Value: ir.IRInt(1)}}.Heading()
	assert.Error(t, err)

	_, err = Restrict{Rel: session, Where: And{Predicates: []Predicate{Not{Predicate: Matching{Rel: subject}}}}}.Heading()
	assert.NoError(t, err)

	err = CheckPredicate(session, Not{})
	assert.Error(t, err)
}

func TestKeyEquals(t *testing.T) {
	k := ir.MustKey(ir.F("subject_id", ir.IRInt(1)), ir.F("session_id", ir.IRInt(2)))
	pred := KeyEquals(k)

	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Attr: "subject_id", Value: ir.IRInt(1)},
		Equals{Attr: "session_id", Value: ir.IRInt(2)},
	}}, pred)
}
