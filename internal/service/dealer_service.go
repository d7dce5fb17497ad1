package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/psds-microservice/workshop-service/internal/clock"
	"github.com/psds-microservice/workshop-service/internal/database"
	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/model"
	"gorm.io/gorm"
)

type DealerFilter struct {
	BuggyID    uint64
	ActiveOnly bool
}

// DealerVisitView — визит с номером багги.
type DealerVisitView struct {
	model.DealerVisit
	BuggyNumber string `json:"buggy_number,omitempty"`
}

type DealerService struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewDealerService(db *gorm.DB, clk clock.Clock) *DealerService {
	if clk == nil {
		clk = clock.Real()
	}
	return &DealerService{db: db, clock: clk}
}

// Lock сообщает, есть ли у багги невозвращённый визит. Проверка рекомендательная:
// окончательно решает уникальный индекс idx_dealer_visits_active.
func (s *DealerService) Lock(ctx context.Context, buggyID uint64) (*model.DealerVisit, error) {
	var v model.DealerVisit
	err := s.db.WithContext(ctx).
		Where("buggy_id = ? AND returned_at IS NULL", buggyID).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *DealerService) Give(ctx context.Context, actor lifecycle.Actor, buggyID uint64, issue string) (*model.DealerVisit, error) {
	issue = strings.TrimSpace(issue)
	var v errs.Validation
	v.Check(buggyID != 0, "buggy_id", "is required")
	v.Check(issue != "", "issue", "is required")
	if err := v.Err(); err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Buggy{}).Where("id = ?", buggyID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errs.ErrBuggyNotFound
	}
	active, err := s.Lock(ctx, buggyID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, errs.ErrBuggyAtDealer
	}

	visit := &model.DealerVisit{
		BuggyID:   buggyID,
		Issue:     issue,
		Status:    model.DealerVisitAtDealer,
		GivenAt:   s.clock.Now(),
		CreatedBy: actor.ID,
	}
	if err := s.db.WithContext(ctx).Create(visit).Error; err != nil {
		// гонка между проверкой и вставкой, тот же конфликт
		if database.IsDuplicate(err) {
			return nil, errs.ErrBuggyAtDealer
		}
		return nil, fmt.Errorf("give to dealer: %w", err)
	}
	return visit, nil
}

func (s *DealerService) Return(ctx context.Context, visitID uint64) (*model.DealerVisit, error) {
	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&model.DealerVisit{}).
		Where("id = ? AND returned_at IS NULL", visitID).
		Updates(map[string]interface{}{"returned_at": now, "status": model.DealerVisitClosed})
	if res.Error != nil {
		return nil, fmt.Errorf("return from dealer: %w", res.Error)
	}
	var v model.DealerVisit
	if err := s.db.WithContext(ctx).First(&v, visitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrVisitNotFound
		}
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrVisitReturned
	}
	return &v, nil
}

// ReturnActive возвращает активный визит багги (кнопка «вернули» на карточке багги).
func (s *DealerService) ReturnActive(ctx context.Context, buggyID uint64) (*model.DealerVisit, error) {
	active, err := s.Lock(ctx, buggyID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, errs.ErrVisitNotFound
	}
	return s.Return(ctx, active.ID)
}

func (s *DealerService) List(ctx context.Context, st listing.State[DealerFilter]) ([]DealerVisitView, int64, error) {
	var items []model.DealerVisit
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.DealerVisit{})
	if st.Filter.BuggyID != 0 {
		tx = tx.Where("buggy_id = ?", st.Filter.BuggyID)
	}
	if st.Filter.ActiveOnly {
		tx = tx.Where("returned_at IS NULL")
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := tx.Order("given_at DESC").Order("id DESC").
		Limit(st.Limit()).Offset(st.Offset()).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	numbers, err := buggyNumbers(ctx, s.db, visitBuggyIDs(items))
	if err != nil {
		return nil, 0, err
	}
	out := make([]DealerVisitView, len(items))
	for i, v := range items {
		out[i] = DealerVisitView{DealerVisit: v, BuggyNumber: numbers[v.BuggyID]}
	}
	return out, total, nil
}

func visitBuggyIDs(items []model.DealerVisit) []uint64 {
	ids := make([]uint64, 0, len(items))
	for _, v := range items {
		ids = append(ids, v.BuggyID)
	}
	return ids
}

func buggyNumbers(ctx context.Context, db *gorm.DB, ids []uint64) (map[uint64]string, error) {
	out := make(map[uint64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var buggies []model.Buggy
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&buggies).Error; err != nil {
		return nil, err
	}
	for _, b := range buggies {
		out[b.ID] = b.Number
	}
	return out, nil
}
