package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/notemarket/notemarket/app/models"
	"github.com/notemarket/notemarket/internal/pkg/database"
)

func TestUserRepository_GetByAPIKeyHash(t *testing.T) {
	db, err := database.OpenSQLite(t.Name())
	require.NoError(t, err)
	repo := NewFactory(db).GetUserRepository()

	user := &models.User{Name: "buyer", Status: models.STATUS_ACTIVE, APIKeyHash: models.HashAPIKey("nm_live_key")}
	require.NoError(t, repo.Create(user))

	found, err := repo.GetByAPIKeyHash(models.HashAPIKey("nm_live_key"))
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.GetByAPIKeyHash(models.HashAPIKey("other"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.GetByAPIKeyHash("  ")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	byID, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "buyer", byID.Name)
}
