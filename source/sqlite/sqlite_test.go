package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/source"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE people (
			id   INTEGER PRIMARY KEY,
			name TEXT,
			zip  TEXT
		);
		INSERT INTO people (id, name, zip) VALUES
			(1, 'alice', '10001'),
			(2, 'alice', '10001'),
			(3, 'bob',   '20002'),
			(4, 'carol', NULL);
	`)
	require.NoError(t, err)
	return db
}

func TestNewTable(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	tbl, err := NewTable(ctx, db, "people", "id")
	require.NoError(t, err)
	require.Equal(t, "people", tbl.Name())
	require.Equal(t, []string{"name", "zip"}, tbl.Columns())

	n, err := tbl.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(4), n)
}

func TestNewTableErrors(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	_, err := NewTable(ctx, db, "missing", "id")
	require.Error(t, err)

	_, err = NewTable(ctx, db, "people", "uuid")
	require.Error(t, err)
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tbl, err := NewTable(ctx, db, "people", "id")
	require.NoError(t, err)

	byKey := map[uint64]core.Record{}
	for r, err := range tbl.Scan(ctx) {
		require.NoError(t, err)
		require.Equal(t, "people", r.ID.Dataset)
		byKey[r.ID.Key] = r
	}
	require.Len(t, byKey, 4)

	name, ok := byKey[1].Field("name")
	require.True(t, ok)
	require.Equal(t, "alice", name)

	// SQL NULL becomes an absent field.
	_, ok = byKey[4].Field("zip")
	require.False(t, ok)
}

func TestScanProjection(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tbl, err := NewTable(ctx, db, "people", "id")
	require.NoError(t, err)

	for r, err := range tbl.Scan(ctx, "zip") {
		require.NoError(t, err)
		_, hasName := r.Fields["name"]
		require.False(t, hasName)
	}
}

func TestScanRestartable(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tbl, err := NewTable(ctx, db, "people", "id")
	require.NoError(t, err)

	seq := tbl.Scan(ctx)
	for pass := 0; pass < 2; pass++ {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		require.Equal(t, 4, n)
	}
}

func TestGroupCountPushdown(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tbl, err := NewTable(ctx, db, "people", "id")
	require.NoError(t, err)

	got := map[string]uint64{}
	for kc, err := range tbl.GroupCount(ctx, "zip") {
		require.NoError(t, err)
		got[kc.Values[0].(string)] = kc.Count
	}
	// The NULL zip row is excluded.
	require.Equal(t, map[string]uint64{"10001": 2, "20002": 1}, got)
}

func TestEquiJoinSelf(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tbl, err := NewTable(ctx, db, "people", "id")
	require.NoError(t, err)

	var pairs []core.Pair
	for cp, err := range tbl.EquiJoin(ctx, tbl, "zip") {
		require.NoError(t, err)
		require.NotEqual(t, cp.Left.ID, cp.Right.ID)
		pairs = append(pairs, cp.Pair())
	}
	// Only ids 1 and 2 share a non-null zip.
	require.Len(t, pairs, 1)
	require.Equal(t, uint64(1), pairs[0].Left.Key)
	require.Equal(t, uint64(2), pairs[0].Right.Key)
}

func TestEquiJoinCrossTables(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	_, err := db.Exec(`
		CREATE TABLE contacts (
			id  INTEGER PRIMARY KEY,
			zip TEXT
		);
		INSERT INTO contacts (id, zip) VALUES (1, '10001'), (2, '33333');
	`)
	require.NoError(t, err)

	left, err := NewTable(ctx, db, "people", "id")
	require.NoError(t, err)
	right, err := NewTable(ctx, db, "contacts", "id")
	require.NoError(t, err)

	n := 0
	for cp, err := range left.EquiJoin(ctx, right, "zip") {
		require.NoError(t, err)
		require.Equal(t, "people", cp.Left.ID.Dataset)
		require.Equal(t, "contacts", cp.Right.ID.Dataset)
		n++
	}
	// People 1 and 2 each join contact 1.
	require.Equal(t, 2, n)
}

func TestEquiJoinFallsBackAcrossBackends(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	tbl, err := NewTable(ctx, db, "people", "id")
	require.NoError(t, err)

	mem := source.NewMemoryTable("mem", []core.Record{
		{ID: core.ID(1), Fields: map[string]any{"zip": "10001"}},
	})

	n := 0
	for cp, err := range tbl.EquiJoin(ctx, mem, "zip") {
		require.NoError(t, err)
		require.Equal(t, "mem", cp.Right.ID.Dataset)
		n++
	}
	require.Equal(t, 2, n)
}
