package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/workshop-service/internal/clock"
	"github.com/psds-microservice/workshop-service/internal/database"
	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/model"
	"gorm.io/gorm"
)

// BuggyStatus вычисляется, в таблице не хранится.
type BuggyStatus string

const (
	BuggyReady     BuggyStatus = "ready"
	BuggyInService BuggyStatus = "in_service"
	BuggyAtDealer  BuggyStatus = "at_dealer"
)

type BuggyView struct {
	model.Buggy
	Status         BuggyStatus `json:"status"`
	ActiveTickets  int         `json:"active_tickets"`
	InServiceSince *time.Time  `json:"in_service_since,omitempty"`
	LastTicketAt   *time.Time  `json:"last_ticket_at,omitempty"`
	DealerVisitID  *uint64     `json:"dealer_visit_id,omitempty"`
}

type BuggySummary struct {
	Total     int `json:"total"`
	Ready     int `json:"ready"`
	InService int `json:"in_service"`
	AtDealer  int `json:"at_dealer"`
}

type BuggyService struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewBuggyService(db *gorm.DB, clk clock.Clock) *BuggyService {
	if clk == nil {
		clk = clock.Real()
	}
	return &BuggyService{db: db, clock: clk}
}

func (s *BuggyService) Create(ctx context.Context, number, modelName string) (*model.Buggy, error) {
	number = strings.TrimSpace(number)
	var v errs.Validation
	v.Check(number != "", "number", "is required")
	v.Check(len(number) <= 32, "number", "must be at most 32 characters")
	if err := v.Err(); err != nil {
		return nil, err
	}
	b := &model.Buggy{Number: number, Model: strings.TrimSpace(modelName), CreatedAt: s.clock.Now()}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, fmt.Errorf("buggy %s: %w", number, errs.ErrDuplicateBuggy)
		}
		return nil, fmt.Errorf("create buggy: %w", err)
	}
	return b, nil
}

// Get — багги с тем же вычисленным статусом, что и в List.
func (s *BuggyService) Get(ctx context.Context, id uint64) (*BuggyView, error) {
	var b model.Buggy
	if err := s.db.WithContext(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrBuggyNotFound
		}
		return nil, err
	}
	views, _, err := s.derive(ctx, []model.Buggy{b}, id)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List — все багги с вычисленным статусом: at_dealer > in_service > ready.
func (s *BuggyService) List(ctx context.Context) ([]BuggyView, BuggySummary, error) {
	var buggies []model.Buggy
	if err := s.db.WithContext(ctx).Order("number").Find(&buggies).Error; err != nil {
		return nil, BuggySummary{}, err
	}
	return s.derive(ctx, buggies, 0)
}

// derive считает статус по тикетам и активным визитам; only != 0 сужает выборку до одной багги.
func (s *BuggyService) derive(ctx context.Context, buggies []model.Buggy, only uint64) ([]BuggyView, BuggySummary, error) {
	type ticketRow struct {
		BuggyID   uint64
		Status    model.TicketStatus
		CreatedAt time.Time
	}
	var tickets []ticketRow
	tq := s.db.WithContext(ctx).Model(&model.Ticket{}).
		Select("buggy_id, status, created_at").
		Where("buggy_id IS NOT NULL")
	vq := s.db.WithContext(ctx).Where("returned_at IS NULL")
	if only != 0 {
		tq = tq.Where("buggy_id = ?", only)
		vq = vq.Where("buggy_id = ?", only)
	}
	if err := tq.Scan(&tickets).Error; err != nil {
		return nil, BuggySummary{}, err
	}

	var visits []model.DealerVisit
	if err := vq.Find(&visits).Error; err != nil {
		return nil, BuggySummary{}, err
	}
	atDealer := make(map[uint64]uint64, len(visits))
	for _, v := range visits {
		atDealer[v.BuggyID] = v.ID
	}

	views := make([]BuggyView, len(buggies))
	index := make(map[uint64]int, len(buggies))
	for i, b := range buggies {
		views[i] = BuggyView{Buggy: b}
		index[b.ID] = i
	}
	for _, t := range tickets {
		i, ok := index[t.BuggyID]
		if !ok {
			continue
		}
		v := &views[i]
		created := t.CreatedAt
		if v.LastTicketAt == nil || created.After(*v.LastTicketAt) {
			v.LastTicketAt = &created
		}
		if t.Status == model.TicketStatusOpen || t.Status == model.TicketStatusInProgress {
			v.ActiveTickets++
			if v.InServiceSince == nil || created.Before(*v.InServiceSince) {
				since := created
				v.InServiceSince = &since
			}
		}
	}

	sum := BuggySummary{Total: len(views)}
	for i := range views {
		v := &views[i]
		if visitID, ok := atDealer[v.ID]; ok {
			id := visitID
			v.Status = BuggyAtDealer
			v.DealerVisitID = &id
			sum.AtDealer++
			continue
		}
		if v.ActiveTickets > 0 {
			v.Status = BuggyInService
			sum.InService++
			continue
		}
		v.Status = BuggyReady
		v.InServiceSince = nil
		sum.Ready++
	}
	return views, sum, nil
}
