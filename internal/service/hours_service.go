package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/workshop-service/internal/clock"
	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/model"
	"gorm.io/gorm"
)

const myHoursLimit = 20

// HoursFilter — фильтр журнала моточасов: багги и период по reading_at [From, To).
type HoursFilter struct {
	BuggyID uint64
	From    time.Time
	To      time.Time
}

type LogHoursInput struct {
	BuggyID   uint64
	Hours     float64
	ReadingAt *time.Time
	Note      string
}

type HoursLogView struct {
	model.BuggyHoursLog
	BuggyNumber string `json:"buggy_number,omitempty"`
}

type HoursService struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewHoursService(db *gorm.DB, clk clock.Clock) *HoursService {
	if clk == nil {
		clk = clock.Real()
	}
	return &HoursService{db: db, clock: clk}
}

// Log пишет показание моточасов, не связанное с тикетом.
func (s *HoursService) Log(ctx context.Context, actor lifecycle.Actor, in LogHoursInput) (*model.BuggyHoursLog, error) {
	var v errs.Validation
	v.Check(in.BuggyID != 0, "buggy_id", "is required")
	v.Check(reading(in.Hours), "hours", readingMsg)
	if err := v.Err(); err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Buggy{}).Where("id = ?", in.BuggyID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errs.ErrBuggyNotFound
	}
	now := s.clock.Now()
	readingAt := now
	if in.ReadingAt != nil && !in.ReadingAt.IsZero() {
		readingAt = in.ReadingAt.UTC()
	}
	row := &model.BuggyHoursLog{
		BuggyID:   in.BuggyID,
		Hours:     in.Hours,
		ReadingAt: readingAt,
		Note:      strings.TrimSpace(in.Note),
		CreatedBy: actor.ID,
		GuideName: actor.Name,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("log hours: %w", err)
	}
	return row, nil
}

// Mine: последние показания автора.
func (s *HoursService) Mine(ctx context.Context, actor lifecycle.Actor) ([]HoursLogView, error) {
	var items []model.BuggyHoursLog
	if err := s.db.WithContext(ctx).
		Where("created_by = ?", actor.ID).
		Order("reading_at DESC").Order("id DESC").
		Limit(myHoursLimit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return s.decorate(ctx, items)
}

func (s *HoursService) List(ctx context.Context, st listing.State[HoursFilter]) ([]HoursLogView, int64, error) {
	f := st.Filter
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		var v errs.Validation
		v.Add("date_to", "must be after date_from")
		return nil, 0, v.Err()
	}
	var items []model.BuggyHoursLog
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.BuggyHoursLog{})
	if f.BuggyID != 0 {
		tx = tx.Where("buggy_id = ?", f.BuggyID)
	}
	if !f.From.IsZero() {
		tx = tx.Where("reading_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		tx = tx.Where("reading_at < ?", f.To)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := tx.Order("reading_at DESC").Order("id DESC").
		Limit(st.Limit()).Offset(st.Offset()).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	out, err := s.decorate(ctx, items)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *HoursService) decorate(ctx context.Context, items []model.BuggyHoursLog) ([]HoursLogView, error) {
	ids := make([]uint64, 0, len(items))
	for _, h := range items {
		ids = append(ids, h.BuggyID)
	}
	numbers, err := buggyNumbers(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]HoursLogView, len(items))
	for i, h := range items {
		out[i] = HoursLogView{BuggyHoursLog: h, BuggyNumber: numbers[h.BuggyID]}
	}
	return out, nil
}
