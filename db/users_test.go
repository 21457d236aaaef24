package db

import (
	"encoding/json"
	"os"
	"testing"

	"kecantiere/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadUsers_MissingFileSeedsDefaults(t *testing.T) {
	store, cfg := setupTestStore(t)

	users := store.LoadUsers()
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)

	// The seeds are written back so the next read finds a real file.
	raw, err := os.ReadFile(cfg.UsersFilePath)
	require.NoError(t, err)
	var onDisk []models.Account
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, users, onDisk)
}

func TestStore_LoadUsers_CorruptFileSeedsDefaults(t *testing.T) {
	store, cfg := setupTestStore(t)
	require.NoError(t, os.WriteFile(cfg.UsersFilePath, []byte(`{"not": "a list"`), 0644))

	users := store.LoadUsers()
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
}

func TestStore_LoadUsers_EmptyListFallsBackWithoutRewrite(t *testing.T) {
	store, cfg := setupTestStore(t)
	require.NoError(t, os.WriteFile(cfg.UsersFilePath, []byte(`[]`), 0644))

	users := store.LoadUsers()
	require.Len(t, users, 2)

	raw, err := os.ReadFile(cfg.UsersFilePath)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw), "an empty-but-valid file is left alone")
}

func TestStore_SaveUsers_RoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)

	saved := []models.Account{
		{Username: "geometra", Password: "digest-c", Role: "admin"},
	}
	require.NoError(t, store.SaveUsers(saved))
	assert.Equal(t, saved, store.LoadUsers())
}

func TestStore_SaveUsers_RejectsEmptyList(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.SaveUsers(nil)
	assert.ErrorIs(t, err, ErrValidation)
	err = store.SaveUsers([]models.Account{})
	assert.ErrorIs(t, err, ErrValidation)
}
