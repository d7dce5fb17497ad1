package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/workshop-service/internal/auth"
	"github.com/psds-microservice/workshop-service/internal/clock"
	"github.com/psds-microservice/workshop-service/internal/database"
	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/model"
	"gorm.io/gorm"
)

// Profile — то, что клиент кэширует после входа.
type Profile struct {
	ID    string     `json:"id"`
	Role  model.Role `json:"role"`
	Name  string     `json:"name"`
	Slug  string     `json:"slug"`
	Email string     `json:"email"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Profile   Profile   `json:"profile"`
}

type RosterEntry struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// LoginInput: либо role+slug, либо синтетический email.
type LoginInput struct {
	Role     model.Role
	Slug     string
	Email    string
	Password string
}

type CreateAccountInput struct {
	Role     model.Role
	Slug     string
	Name     string
	Password string
}

type AccountService struct {
	db     *gorm.DB
	issuer *auth.Issuer
	clock  clock.Clock
}

func NewAccountService(db *gorm.DB, issuer *auth.Issuer, clk clock.Clock) *AccountService {
	if clk == nil {
		clk = clock.Real()
	}
	return &AccountService{db: db, issuer: issuer, clock: clk}
}

func (s *AccountService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	role, slug := in.Role, auth.NormalizeSlug(in.Slug)
	if in.Email != "" {
		r, sl, ok := auth.ParseEmail(in.Email)
		if !ok {
			return nil, errs.ErrInvalidCredentials
		}
		role, slug = r, sl
	}
	var v errs.Validation
	v.Check(role.Valid(), "role", "must be admin, mechanic or guide")
	v.Check(slug != "", "slug", "is required")
	v.Check(in.Password != "", "password", "is required")
	if err := v.Err(); err != nil {
		return nil, err
	}

	var acc model.Account
	err := s.db.WithContext(ctx).
		Where("role = ? AND slug = ? AND active = ?", role, slug, true).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(acc.PasswordHash, in.Password) {
		return nil, errs.ErrInvalidCredentials
	}
	token, exp, err := s.issuer.Generate(&acc)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, Profile: profileOf(&acc)}, nil
}

// Roster: активные учётки роли для выбора на экране входа.
func (s *AccountService) Roster(ctx context.Context, role model.Role) ([]RosterEntry, error) {
	if !role.Valid() {
		var v errs.Validation
		v.Add("role", "must be admin, mechanic or guide")
		return nil, v.Err()
	}
	var accs []model.Account
	if err := s.db.WithContext(ctx).
		Where("role = ? AND active = ?", role, true).
		Order("name").
		Find(&accs).Error; err != nil {
		return nil, err
	}
	out := make([]RosterEntry, 0, len(accs))
	for _, a := range accs {
		out = append(out, RosterEntry{Name: a.Name, Slug: a.Slug})
	}
	return out, nil
}

func (s *AccountService) Profile(ctx context.Context, id string) (*Profile, error) {
	var acc model.Account
	if err := s.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrAccountNotFound
		}
		return nil, err
	}
	p := profileOf(&acc)
	return &p, nil
}

func (s *AccountService) Create(ctx context.Context, in CreateAccountInput) (*Profile, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = auth.NormalizeSlug(in.Slug)
	if in.Slug == "" {
		in.Slug = auth.NormalizeSlug(in.Name)
	}
	var v errs.Validation
	v.Check(in.Role.Valid(), "role", "must be admin, mechanic or guide")
	v.Check(in.Name != "", "name", "is required")
	v.Check(in.Slug != "", "slug", "is required")
	v.Check(!strings.Contains(in.Slug, "@"), "slug", "must not contain @")
	v.Check(len(in.Password) >= 4, "password", "must be at least 4 characters")
	if err := v.Err(); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	acc := &model.Account{
		Role:         in.Role,
		Slug:         in.Slug,
		Name:         in.Name,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(acc).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, errs.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	p := profileOf(acc)
	return &p, nil
}

func profileOf(a *model.Account) Profile {
	return Profile{
		ID:    a.ID,
		Role:  a.Role,
		Name:  a.Name,
		Slug:  a.Slug,
		Email: auth.Email(a.Role, a.Slug),
	}
}
