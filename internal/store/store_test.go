package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db := openTest(t)
	require.NoError(t, db.Ping())
}

func TestCreateUser(t *testing.T) {
	db := openTest(t)

	id, err := db.CreateUser("alice", "hash1")
	require.NoError(t, err)
	require.Positive(t, id)

	u, err := db.UserByLogin("alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "alice", u.Login)
	require.Equal(t, "hash1", u.KeyHash)

	_, err = db.CreateUser("alice", "hash2")
	require.Error(t, err, "duplicate login must fail")

	u, err = db.UserByLogin("nobody")
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestSaveAndLookupFunc(t *testing.T) {
	db := openTest(t)
	uid, err := db.CreateUser("alice", "h")
	require.NoError(t, err)

	hash := []byte{0xde, 0xad, 0xbe, 0xef}
	changed, err := db.SaveFunc(uid, "memcpy", 64, hash, []byte("md-v1"))
	require.NoError(t, err)
	require.True(t, changed)

	f, err := db.FuncByHash(hash)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.Equal(t, "memcpy", f.Name)
	require.Equal(t, uint32(64), f.Len)
	require.Equal(t, []byte("md-v1"), f.Metadata)
	require.Equal(t, hash, f.Hash)
	require.Equal(t, uint32(1), f.Popularity)

	// Identical push only bumps popularity.
	changed, err = db.SaveFunc(uid, "memcpy", 64, hash, []byte("md-v1"))
	require.NoError(t, err)
	require.False(t, changed)

	// New metadata replaces and bumps popularity.
	changed, err = db.SaveFunc(uid, "memcpy_fast", 64, hash, []byte("md-v2"))
	require.NoError(t, err)
	require.True(t, changed)

	f, err = db.FuncByHash(hash)
	require.NoError(t, err)
	require.Equal(t, "memcpy_fast", f.Name)
	require.Equal(t, []byte("md-v2"), f.Metadata)
	require.Equal(t, uint32(3), f.Popularity)

	n, err := db.FuncCount()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestFuncByHashMiss(t *testing.T) {
	db := openTest(t)
	f, err := db.FuncByHash([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestGenerateKey(t *testing.T) {
	k1, k2 := GenerateKey(), GenerateKey()
	require.Len(t, k1, 48)
	require.NotEqual(t, k1, k2)
}
