package ordering

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	name  string
	score int
	seq   int
}

var rowFields = Fields[row]{
	"name":  func(a, b row) int { return cmp.Compare(a.name, b.name) },
	"score": func(a, b row) int { return cmp.Compare(a.score, b.score) },
}

func TestSortMultiField(t *testing.T) {
	rows := []row{
		{"b", 1, 0},
		{"a", 2, 1},
		{"a", 1, 2},
		{"b", 1, 3},
	}
	require.NoError(t, rowFields.Sort(rows, []Ordering{Asc("name"), Desc("score")}))

	got := make([]int, len(rows))
	for i, r := range rows {
		got[i] = r.seq
	}
	// equal keys keep input order
	assert.Equal(t, []int{1, 2, 0, 3}, got)
}

func TestSortUnknownField(t *testing.T) {
	err := rowFields.Sort([]row{{}}, []Ordering{Asc("missing")})
	assert.Error(t, err)
}

func TestMustComparator(t *testing.T) {
	c := rowFields.MustComparator([]Ordering{Desc("score"), Asc("name")})
	assert.Negative(t, c(row{name: "b", score: 2}, row{name: "a", score: 1}))
	assert.Negative(t, c(row{name: "a", score: 1}, row{name: "b", score: 1}))
	assert.Zero(t, c(row{name: "a", score: 1}, row{name: "a", score: 1}))

	assert.Panics(t, func() { rowFields.MustComparator([]Ordering{Asc("missing")}) })
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    []Ordering
		wantErr bool
	}{
		{"name", []Ordering{Asc("name")}, false},
		{"name desc, score", []Ordering{Desc("name"), Asc("score")}, false},
		{"name ASC", []Ordering{Asc("name")}, false},
		{"", nil, false},
		{"name sideways", nil, true},
		{"a b c", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrderingString(t *testing.T) {
	assert.Equal(t, "time ASC", Asc("time").String())
	assert.Equal(t, "time DESC", Desc("time").String())
}
