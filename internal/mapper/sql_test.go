package mapper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const activeScope = "hackathon = (SELECT uid FROM HACKATHON WHERE (active = ?) LIMIT 1)"

func TestSelectOne(t *testing.T) {
	st := selectOne("CATEGORY_LIST", "uid", "test uid", "")
	require.Equal(t, "SELECT * FROM CATEGORY_LIST WHERE (uid= ?);", st.SQL)
	require.Equal(t, []any{"test uid"}, st.Args)

	st = selectOne("CATEGORY_LIST", "uid", "test uid", "hackathon")
	require.Equal(t, "SELECT * FROM CATEGORY_LIST WHERE (uid= ?) AND ("+activeScope+");", st.SQL)
	require.Equal(t, []any{"test uid", true}, st.Args)
}

func TestSelectAll(t *testing.T) {
	hundred := 100
	ten := 10

	cases := []struct {
		name    string
		fields  []string
		scope   string
		startAt *int
		count   *int
		sql     string
		args    []any
	}{
		{name: "all", sql: "SELECT * FROM CATEGORY_LIST c;"},
		{name: "projection", fields: []string{"x"}, sql: "SELECT `x` FROM CATEGORY_LIST c;"},
		{name: "ordered projection", fields: []string{"name", "uid"}, sql: "SELECT `name`, `uid` FROM CATEGORY_LIST c;"},
		{name: "offset", startAt: &hundred, sql: "SELECT * FROM CATEGORY_LIST c OFFSET 100;"},
		{name: "limit", count: &hundred, sql: "SELECT * FROM CATEGORY_LIST c LIMIT 100;"},
		{name: "offset then limit", startAt: &hundred, count: &ten, sql: "SELECT * FROM CATEGORY_LIST c OFFSET 100 LIMIT 10;"},
		{
			name:    "scoped",
			scope:   "hackathon",
			startAt: &ten,
			count:   &hundred,
			sql:     "SELECT * FROM CATEGORY_LIST c WHERE (" + activeScope + ") OFFSET 10 LIMIT 100;",
			args:    []any{true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := selectAll("CATEGORY_LIST", "c", tc.fields, tc.scope, tc.startAt, tc.count)
			require.Equal(t, tc.sql, st.SQL)
			require.Equal(t, tc.args, st.Args)
		})
	}
}

func TestSelectCount(t *testing.T) {
	st := selectCount("CATEGORY_LIST", "uid", "")
	require.Equal(t, `SELECT COUNT(uid) AS "count" FROM CATEGORY_LIST;`, st.SQL)
	require.Empty(t, st.Args)

	st = selectCount("REGISTRATION", "uid", "hackathon")
	require.Equal(t, `SELECT COUNT(uid) AS "count" FROM REGISTRATION WHERE (`+activeScope+`);`, st.SQL)
	require.Equal(t, []any{true}, st.Args)
}

func TestWriteStatements(t *testing.T) {
	st := insertInto("CATEGORY_LIST", []string{"uid", "name", "is_sponsor"}, []any{"c1", "Best Hack", false})
	require.Equal(t, "INSERT INTO CATEGORY_LIST (uid, name, is_sponsor) VALUES (?, ?, ?);", st.SQL)
	require.Equal(t, []any{"c1", "Best Hack", false}, st.Args)

	values := []any{"Best Hack", true}
	st = updateSet("CATEGORY_LIST", "uid", []string{"name", "is_sponsor"}, values, "c1")
	require.Equal(t, "UPDATE CATEGORY_LIST SET name = ?, is_sponsor = ? WHERE (uid= ?);", st.SQL)
	require.Equal(t, []any{"Best Hack", true, "c1"}, st.Args)
	require.Len(t, values, 2, "caller slice must not be extended")

	st = deleteFrom("CATEGORY_LIST", "uid", "c1")
	require.Equal(t, "DELETE FROM CATEGORY_LIST WHERE (uid= ?);", st.SQL)
	require.Equal(t, []any{"c1"}, st.Args)
}

type sample struct {
	UID      string  `db:"uid"`
	Name     string  `db:"name"`
	Pin      int64   `db:"pin,readonly"`
	Note     *string `db:"note"`
	internal string
	Skipped  string `db:"-"`
}

func TestBuildSchema(t *testing.T) {
	s, err := buildSchema(Table[sample]{Name: "SAMPLE", PrimaryKey: "uid"})
	require.NoError(t, err)
	require.Equal(t, []string{"uid", "name", "pin", "note"}, s.Columns())
	require.True(t, s.columns[s.byName["pin"]].readonly)
	require.Equal(t, "uid", s.primaryKey().name)

	_, err = buildSchema(Table[sample]{Name: "SAMPLE", PrimaryKey: "id"})
	require.Error(t, err)
	_, err = buildSchema(Table[sample]{Name: "SAMPLE", PrimaryKey: "uid", HackathonColumn: "hackathon"})
	require.Error(t, err)
}

func TestDecodeCoercesValues(t *testing.T) {
	s, err := buildSchema(Table[sample]{Name: "SAMPLE", PrimaryKey: "uid"})
	require.NoError(t, err)

	got, err := decode[sample](s, map[string]any{"uid": "a", "name": "n", "pin": int32(7), "note": "hi", "extra": 1})
	require.NoError(t, err)
	require.Equal(t, "a", got.UID)
	require.EqualValues(t, 7, got.Pin)
	require.NotNil(t, got.Note)
	require.Equal(t, "hi", *got.Note)

	got, err = decode[sample](s, map[string]any{"uid": "b", "note": nil, "pin": "12"})
	require.NoError(t, err)
	require.Nil(t, got.Note)
	require.EqualValues(t, 12, got.Pin)

	_, err = decode[sample](s, map[string]any{"pin": "twelve"})
	require.Error(t, err)
}
