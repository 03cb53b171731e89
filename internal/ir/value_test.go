package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSQL(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected IRValue
	}{
		{"int64", int64(5), IRInt(5)},
		{"int", 5, IRInt(5)},
		{"string", "s", IRString("s")},
		{"bytes", []byte("raw"), IRString("raw")},
		{"bool", true, IRBool(true)},
		{"already ir", IRInt(9), IRInt(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromSQL(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFromSQL_Rejects(t *testing.T) {
	for _, v := range []any{nil, 1.25, struct{}{}} {
		_, err := FromSQL(v)
		assert.Error(t, err, "%T should be rejected", v)
	}
}

func TestToParam(t *testing.T) {
	p, err := ToParam(IRInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), p)

	p, err = ToParam(IRString("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", p)

	_, err = ToParam(IRObject{})
	assert.Error(t, err)
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}
