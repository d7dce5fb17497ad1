package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/psds-microservice/workshop-service/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedAccount: учётка по умолчанию; пароль в открытом виде, хэшируется при вставке.
type SeedAccount struct {
	Role     model.Role
	Slug     string
	Name     string
	Password string
}

// DefaultAccounts — демо-набор: админ, два механика, два гида.
func DefaultAccounts(adminPassword string) []SeedAccount {
	if adminPassword == "" {
		adminPassword = "Admin123!"
	}
	return []SeedAccount{
		{Role: model.RoleAdmin, Slug: "admin", Name: "Admin", Password: adminPassword},
		{Role: model.RoleMechanic, Slug: "ivan", Name: "Ivan", Password: "1111"},
		{Role: model.RoleMechanic, Slug: "sergey", Name: "Sergey", Password: "2222"},
		{Role: model.RoleGuide, Slug: "olga", Name: "Olga", Password: "3333"},
		{Role: model.RoleGuide, Slug: "anna", Name: "Anna", Password: "4444"},
	}
}

// Seed создаёт отсутствующие учётки, существующие (role+slug) пропускает.
// Возвращает число созданных.
func Seed(ctx context.Context, db *gorm.DB, accounts []SeedAccount) (int, error) {
	created := 0
	for _, a := range accounts {
		var count int64
		if err := db.WithContext(ctx).Model(&model.Account{}).
			Where("role = ? AND slug = ?", a.Role, a.Slug).
			Count(&count).Error; err != nil {
			return created, fmt.Errorf("check %s/%s: %w", a.Role, a.Slug, err)
		}
		if count > 0 {
			// уже есть, пропускаем
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
		if err != nil {
			return created, fmt.Errorf("hash %s/%s: %w", a.Role, a.Slug, err)
		}
		acc := model.Account{
			Role:         a.Role,
			Slug:         a.Slug,
			Name:         a.Name,
			PasswordHash: string(hash),
			Active:       true,
		}
		if err := db.WithContext(ctx).Create(&acc).Error; err != nil {
			return created, fmt.Errorf("create %s/%s: %w", a.Role, a.Slug, err)
		}
		slog.Info("seed: account created", "role", a.Role, "slug", a.Slug)
		created++
	}
	return created, nil
}
