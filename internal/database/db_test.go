package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psds-microservice/workshop-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func TestIsDuplicate(t *testing.T) {
	assert.False(t, IsDuplicate(nil))
	assert.True(t, IsDuplicate(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicate(errors.New("UNIQUE constraint failed: buggies.number")))
	assert.True(t, IsDuplicate(errors.New(`ERROR: duplicate key value violates unique constraint "idx_dealer_visits_active"`)))
	assert.False(t, IsDuplicate(errors.New("connection refused")))
}

func TestOpenSQLite_ActiveVisitIndex(t *testing.T) {
	db, err := OpenSQLite("")
	require.NoError(t, err)
	ctx := context.Background()

	b := model.Buggy{Number: "B-1"}
	require.NoError(t, db.WithContext(ctx).Create(&b).Error)

	v1 := model.DealerVisit{BuggyID: b.ID, Issue: "brakes", Status: model.DealerVisitAtDealer, GivenAt: time.Now(), CreatedBy: "m"}
	require.NoError(t, db.Create(&v1).Error)

	v2 := model.DealerVisit{BuggyID: b.ID, Issue: "again", Status: model.DealerVisitAtDealer, GivenAt: time.Now(), CreatedBy: "m"}
	err = db.Create(&v2).Error
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))

	// после возврата можно отдать снова
	now := time.Now()
	require.NoError(t, db.Model(&v1).Updates(map[string]interface{}{"returned_at": now, "status": model.DealerVisitClosed}).Error)
	v3 := model.DealerVisit{BuggyID: b.ID, Issue: "again", Status: model.DealerVisitAtDealer, GivenAt: time.Now(), CreatedBy: "m"}
	assert.NoError(t, db.Create(&v3).Error)
}

func TestSeed(t *testing.T) {
	db, err := OpenSQLite("")
	require.NoError(t, err)
	ctx := context.Background()

	accs := []SeedAccount{
		{Role: model.RoleAdmin, Slug: "admin", Name: "Admin", Password: "pw"},
		{Role: model.RoleMechanic, Slug: "ivan", Name: "Ivan", Password: "1111"},
	}
	n, err := Seed(ctx, db, accs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Seed(ctx, db, accs)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "seed is idempotent")

	var a model.Account
	require.NoError(t, db.Where("role = ? AND slug = ?", model.RoleMechanic, "ivan").First(&a).Error)
	assert.NotEmpty(t, a.ID)
	assert.True(t, a.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("1111")))
}

func TestDefaultAccounts(t *testing.T) {
	accs := DefaultAccounts("")
	require.NotEmpty(t, accs)
	assert.Equal(t, model.RoleAdmin, accs[0].Role)
	assert.Equal(t, "Admin123!", accs[0].Password)
	assert.Equal(t, "secret", DefaultAccounts("secret")[0].Password)
}
