package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/psds-microservice/workshop-service/internal/clock"
	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/model"
	"gorm.io/gorm"
)

const maxIssue = 200

const readingMsg = "must be a number between 0 and 10000000"

// JobCardFilter: багги и период по reported_at [From, To).
type JobCardFilter struct {
	BuggyID uint64
	From    time.Time
	To      time.Time
}

type CreateJobCardInput struct {
	BuggyID    uint64
	ReportedAt *time.Time
	Hours      float64
	Km         float64
	Location   string
	Issue      string
}

type JobCardView struct {
	model.JobCard
	BuggyNumber string `json:"buggy_number,omitempty"`
}

type JobCardService struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewJobCardService(db *gorm.DB, clk clock.Clock) *JobCardService {
	if clk == nil {
		clk = clock.Real()
	}
	return &JobCardService{db: db, clock: clk}
}

// Create: полевой отчёт гида; hours и km округляются вниз до целых.
func (s *JobCardService) Create(ctx context.Context, actor lifecycle.Actor, in CreateJobCardInput) (*model.JobCard, error) {
	in.Location = strings.TrimSpace(in.Location)
	in.Issue = strings.TrimSpace(in.Issue)
	var v errs.Validation
	v.Check(in.BuggyID != 0, "buggy_id", "is required")
	v.Check(reading(in.Hours), "hours", readingMsg)
	v.Check(reading(in.Km), "km", readingMsg)
	v.Check(in.Location != "", "location", "is required")
	v.Check(len([]rune(in.Issue)) <= maxIssue, "issue", fmt.Sprintf("must be at most %d characters", maxIssue))
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
	reported := now
	if in.ReportedAt != nil && !in.ReportedAt.IsZero() {
		reported = in.ReportedAt.UTC()
	}
	card := &model.JobCard{
		BuggyID:    in.BuggyID,
		ReportedAt: reported,
		Hours:      int(math.Floor(in.Hours)),
		Km:         int(math.Floor(in.Km)),
		Location:   in.Location,
		Issue:      in.Issue,
		CreatedBy:  actor.ID,
		GuideName:  actor.Name,
		CreatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(card).Error; err != nil {
		return nil, fmt.Errorf("create job card: %w", err)
	}
	return card, nil
}

func (s *JobCardService) List(ctx context.Context, st listing.State[JobCardFilter]) ([]JobCardView, int64, error) {
	f := st.Filter
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		var v errs.Validation
		v.Add("date_to", "must be after date_from")
		return nil, 0, v.Err()
	}
	var items []model.JobCard
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.JobCard{})
	if f.BuggyID != 0 {
		tx = tx.Where("buggy_id = ?", f.BuggyID)
	}
	if !f.From.IsZero() {
		tx = tx.Where("reported_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		tx = tx.Where("reported_at < ?", f.To)
	}
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := tx.Order("reported_at DESC").Order("id DESC").
		Limit(st.Limit()).Offset(st.Offset()).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	ids := make([]uint64, 0, len(items))
	for _, c := range items {
		ids = append(ids, c.BuggyID)
	}
	numbers, err := buggyNumbers(ctx, s.db, ids)
	if err != nil {
		return nil, 0, err
	}
	out := make([]JobCardView, len(items))
	for i, c := range items {
		out[i] = JobCardView{JobCard: c, BuggyNumber: numbers[c.BuggyID]}
	}
	return out, total, nil
}

// maxReading — верхняя граница моточасов и км: больше не влезает в int без переполнения.
const maxReading = 10_000_000

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// reading: конечное число в [0, maxReading].
func reading(f float64) bool {
	return finite(f) && f >= 0 && f <= maxReading
}

func readingPtr(n *int) bool {
	return n == nil || (*n >= 0 && *n <= maxReading)
}
