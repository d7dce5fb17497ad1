package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusDone       TicketStatus = "done"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusDone:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// TestDrive: пометка тест-драйва гидом, хранится в ticket_extras.
type TestDrive string

const (
	TestDriveNone      TestDrive = "none"
	TestDriveRequested TestDrive = "requested"
	TestDriveDone      TestDrive = "done"
	TestDriveRework    TestDrive = "rework"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleMechanic Role = "mechanic"
	RoleGuide    Role = "guide"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMechanic, RoleGuide:
		return true
	}
	return false
}

type Ticket struct {
	ID          uint64       `gorm:"primaryKey" json:"id"`
	BuggyID     *uint64      `gorm:"index" json:"buggy_id,omitempty"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Status      TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	Priority    Priority     `gorm:"type:varchar(16);index;not null" json:"priority"`
	Assignee    string       `gorm:"type:varchar(36);index" json:"assignee,omitempty"`
	CreatedBy   string       `gorm:"type:varchar(36);index;not null" json:"created_by"`
	HoursIn     *int         `json:"hours_in,omitempty"`
	HoursOut    *int         `json:"hours_out,omitempty"`
	Km          *int         `json:"km,omitempty"`

	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TicketExtra — расширение тикета (одна строка на тикет, upsert по ticket_id).
type TicketExtra struct {
	TicketID  uint64    `gorm:"primaryKey" json:"ticket_id"`
	TestDrive TestDrive `gorm:"type:varchar(16);not null" json:"test_drive"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Buggy struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Number    string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"number"`
	Model     string    `gorm:"type:varchar(128)" json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Buggy) TableName() string { return "buggies" }

type DealerVisitStatus string

const (
	DealerVisitAtDealer DealerVisitStatus = "at_dealer"
	DealerVisitClosed   DealerVisitStatus = "closed"
)

// DealerVisit: не больше одного активного (returned_at IS NULL) визита на багги.
type DealerVisit struct {
	ID         uint64            `gorm:"primaryKey" json:"id"`
	BuggyID    uint64            `gorm:"not null;index:idx_dealer_visits_active,unique,where:returned_at IS NULL" json:"buggy_id"`
	Issue      string            `gorm:"type:text;not null" json:"issue"`
	Status     DealerVisitStatus `gorm:"type:varchar(16);not null" json:"status"`
	GivenAt    time.Time         `gorm:"index;not null" json:"given_at"`
	ReturnedAt *time.Time        `json:"returned_at,omitempty"`
	CreatedBy  string            `gorm:"type:varchar(36);not null" json:"created_by"`
}

type Worklog struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	TicketID  uint64    `gorm:"index;not null" json:"ticket_id"`
	UserID    string    `gorm:"type:varchar(36);not null" json:"user_id"`
	Note      string    `gorm:"type:text;not null" json:"note"`
	Minutes   int       `gorm:"not null" json:"minutes"`
	CreatedAt time.Time `json:"created_at"`
}

type BuggyHoursLog struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	BuggyID   uint64    `gorm:"index;not null" json:"buggy_id"`
	Hours     float64   `gorm:"not null" json:"hours"`
	ReadingAt time.Time `gorm:"index;not null" json:"reading_at"`
	Note      string    `gorm:"type:text" json:"note,omitempty"`
	CreatedBy string    `gorm:"type:varchar(36);index;not null" json:"created_by"`
	GuideName string    `gorm:"type:varchar(128)" json:"guide_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type JobCard struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	BuggyID    uint64    `gorm:"index;not null" json:"buggy_id"`
	ReportedAt time.Time `gorm:"index;not null" json:"reported_at"`
	Hours      int       `gorm:"not null" json:"hours"`
	Km         int       `gorm:"not null" json:"km"`
	Location   string    `gorm:"type:varchar(255);not null" json:"location"`
	Issue      string    `gorm:"type:varchar(200)" json:"issue,omitempty"`
	CreatedBy  string    `gorm:"type:varchar(36);not null" json:"created_by"`
	GuideName  string    `gorm:"type:varchar(128)" json:"guide_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Account: механик, гид или админ. Вход по slug + PIN/паролю.
type Account struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Role         Role      `gorm:"type:varchar(16);not null;uniqueIndex:idx_accounts_role_slug" json:"role"`
	Slug         string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_accounts_role_slug" json:"slug"`
	Name         string    `gorm:"type:varchar(128);not null" json:"name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Active       bool      `gorm:"not null" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// All перечисляет модели для AutoMigrate (тесты, sqlite).
func All() []interface{} {
	return []interface{}{
		&Ticket{}, &TicketExtra{}, &Buggy{}, &DealerVisit{},
		&Worklog{}, &BuggyHoursLog{}, &JobCard{}, &Account{},
	}
}
