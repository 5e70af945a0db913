package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildKeyDeterministic(t *testing.T) {
	count := 10
	a := BuildKey("CATEGORY_LIST", 3, "getAll", "SELECT * FROM CATEGORY_LIST c;", []any{true}, &count)
	b := BuildKey("CATEGORY_LIST", 3, "getAll", "SELECT * FROM CATEGORY_LIST c;", []any{true}, &count)
	require.Equal(t, a, b)
	require.Equal(t, `hackportal::CATEGORY_LIST::v3::getAll::"SELECT * FROM CATEGORY_LIST c;"::slice[1]:{true}::10`, a)
}

func TestBuildKeyDistinguishesQueries(t *testing.T) {
	keys := []string{
		BuildKey("T", 0, "get", "1"),
		BuildKey("T", 0, "get", 1),
		BuildKey("T", 1, "get", "1"),
		BuildKey("U", 0, "get", "1"),
		BuildKey("T", 0, "getAll", "1"),
		BuildKey("T", 0, "get", "a::b"),
		BuildKey("T", 0, "get", "a", "b"),
		BuildKey("T", 0, "get", nil),
	}
	seen := map[string]struct{}{}
	for _, k := range keys {
		_, dup := seen[k]
		require.False(t, dup, "duplicate key %s", k)
		seen[k] = struct{}{}
	}
}

func TestSerializeValueShapes(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	type opts struct {
		Count  *int
		hidden string
		Fields []string
	}
	n := 5

	cases := []struct {
		name string
		in   any
		want string
	}{
		{"map sorted", map[string]int{"b": 2, "a": 1}, `map[2]:{"a"=1,"b"=2}`},
		{"nil slice", []string(nil), "slice:nil"},
		{"array", [2]int{1, 2}, "array[2]:{1,2}"},
		{"time utc", at, "time:2024-01-02T02:04:05Z"},
		{"struct", opts{Count: &n, hidden: "x", Fields: []string{"uid"}}, `struct:{Count:5,Fields:slice[1]:{"uid"}}`},
		{"float", 1.5, "1.5"},
		{"uint", uint8(7), "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, KeyPrefix+KeySeparator+"T"+KeySeparator+"v0"+KeySeparator+"op"+KeySeparator+tc.want,
				BuildKey("T", 0, "op", tc.in))
		})
	}
}
