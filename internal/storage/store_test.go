package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/solbridge/internal/db"
)

type record struct {
	Name string `json:"name"`
	On   bool   `json:"on"`
}

func openStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "state.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database.DB)
}

func TestStore_SetGetVersion(t *testing.T) {
	s := openStore(t)

	payload, version, err := s.Get("accessory", "missing")
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Zero(t, version)

	require.NoError(t, s.Set("accessory", "a", []byte(`{"n":1}`)))
	require.NoError(t, s.Set("accessory", "a", []byte(`{"n":2}`)))

	payload, version, err = s.Get("accessory", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(payload))
	assert.Equal(t, int64(2), version)
}

func TestStore_DeleteAndClear(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Set("accessory", "a", []byte(`1`)))
	require.NoError(t, s.Set("accessory", "b", []byte(`2`)))
	require.NoError(t, s.Set("other", "c", []byte(`3`)))

	require.NoError(t, s.Delete("accessory", "a"))
	all, _, err := s.GetAll("accessory")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Clear("accessory"))
	all, _, err = s.GetAll("accessory")
	require.NoError(t, err)
	assert.Empty(t, all)

	other, _, err := s.GetAll("other")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	require.NoError(t, s.Clear(""))
	other, _, err = s.GetAll("other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestTypedStore(t *testing.T) {
	ts := NewTypedStore[record](openStore(t), "accessory")
	assert.Equal(t, "accessory", ts.Kind())

	require.NoError(t, ts.Set("a", record{Name: "Lamp", On: true}))
	require.NoError(t, ts.Set("b", record{Name: "Plug"}))

	got, version, err := ts.Get("a")
	require.NoError(t, err)
	assert.Equal(t, record{Name: "Lamp", On: true}, got)
	assert.Equal(t, int64(1), version)

	all, versions, err := ts.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]record{"a": {Name: "Lamp", On: true}, "b": {Name: "Plug"}}, all)
	assert.Equal(t, map[string]int64{"a": 1, "b": 1}, versions)

	require.NoError(t, ts.Delete("a"))
	got, version, err = ts.Get("a")
	require.NoError(t, err)
	assert.Equal(t, record{}, got)
	assert.Zero(t, version)
}
