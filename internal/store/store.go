package store

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sqlite (metadata + accounts).
type DB struct {
	*sql.DB
}

// Open opens db at path, runs migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			login TEXT NOT NULL UNIQUE,
			key_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS funcs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hash TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			len INTEGER NOT NULL,
			metadata BLOB NOT NULL,
			popularity INTEGER NOT NULL DEFAULT 1,
			user_id INTEGER NOT NULL REFERENCES users(id),
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_funcs_hash ON funcs(hash);
	`)
	return err
}

// User: account that may push/pull metadata.
type User struct {
	ID        int64
	Login     string
	KeyHash   string
	CreatedAt time.Time
}

// CreateUser inserts user; err if login exists.
func (db *DB) CreateUser(login, keyHash string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := db.Exec("INSERT INTO users (login, key_hash, created_at) VALUES (?, ?, ?)", login, keyHash, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UserByLogin returns user by login or nil.
func (db *DB) UserByLogin(login string) (*User, error) {
	var u User
	var t string
	err := db.QueryRow("SELECT id, login, key_hash, created_at FROM users WHERE login = ?", login).Scan(&u.ID, &u.Login, &u.KeyHash, &t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, t)
	return &u, nil
}

// Func: one function's shared metadata, keyed by its signature hash.
type Func struct {
	ID         int64
	Hash       []byte
	Name       string
	Len        uint32
	Metadata   []byte
	Popularity uint32
	UserID     int64
	UpdatedAt  time.Time
}

// FuncByHash returns the stored function for hash or nil.
func (db *DB) FuncByHash(hash []byte) (*Func, error) {
	var f Func
	var h, t string
	err := db.QueryRow("SELECT id, hash, name, len, metadata, popularity, user_id, updated_at FROM funcs WHERE hash = ?",
		hex.EncodeToString(hash)).Scan(&f.ID, &h, &f.Name, &f.Len, &f.Metadata, &f.Popularity, &f.UserID, &t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Hash, _ = hex.DecodeString(h)
	f.UpdatedAt, _ = time.Parse(time.RFC3339, t)
	return &f, nil
}

// SaveFunc upserts a function by hash. New hash: insert, changed.
// Known hash with different metadata: replace, bump popularity,
// changed. Known hash with identical metadata: bump popularity only.
func (db *DB) SaveFunc(userID int64, name string, length uint32, hash, metadata []byte) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	h := hex.EncodeToString(hash)

	existing, err := db.FuncByHash(hash)
	if err != nil {
		return false, err
	}
	if existing == nil {
		_, err = db.Exec("INSERT INTO funcs (hash, name, len, metadata, popularity, user_id, updated_at) VALUES (?, ?, ?, ?, 1, ?, ?)",
			h, name, length, metadata, userID, now)
		if err != nil {
			return false, fmt.Errorf("insert func: %w", err)
		}
		return true, nil
	}
	if string(existing.Metadata) == string(metadata) && existing.Name == name {
		_, err = db.Exec("UPDATE funcs SET popularity = popularity + 1, updated_at = ? WHERE hash = ?", now, h)
		return false, err
	}
	_, err = db.Exec("UPDATE funcs SET name = ?, len = ?, metadata = ?, popularity = popularity + 1, user_id = ?, updated_at = ? WHERE hash = ?",
		name, length, metadata, userID, now, h)
	if err != nil {
		return false, fmt.Errorf("update func: %w", err)
	}
	return true, nil
}

// FuncCount returns the number of stored functions.
func (db *DB) FuncCount() (int64, error) {
	var n int64
	err := db.QueryRow("SELECT COUNT(*) FROM funcs").Scan(&n)
	return n, err
}
