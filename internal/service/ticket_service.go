package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/workshop-service/internal/clock"
	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/model"
	"github.com/psds-microservice/workshop-service/internal/observability"
	"gorm.io/gorm"
)

const maxDescription = 2000

// TicketView — тикет вместе с пометкой тест-драйва и номером багги.
type TicketView struct {
	model.Ticket
	TestDrive   model.TestDrive `json:"test_drive"`
	BuggyNumber string          `json:"buggy_number,omitempty"`
}

// TicketFilter: фильтры списка тикетов, всё опционально, условия через AND.
// Период по created_at: From включительно, To исключительно.
type TicketFilter struct {
	Status      model.TicketStatus
	Priority    model.Priority
	BuggyID     uint64
	BuggyNumber string
	Assignee    string
	CreatedBy   string
	ActiveOnly  bool
	From        time.Time
	To          time.Time
}

func (f TicketFilter) Validate() error {
	var v errs.Validation
	v.Check(f.Status == "" || f.Status.Valid(), "status", "must be open, in_progress or done")
	v.Check(f.Priority == "" || f.Priority.Valid(), "priority", "must be low, medium or high")
	v.Check(f.From.IsZero() || f.To.IsZero() || f.From.Before(f.To), "date_to", "must be after date_from")
	return v.Err()
}

type CreateTicketInput struct {
	BuggyID     *uint64
	Description string
	Priority    model.Priority
	HoursIn     *int
	Km          *int
}

type ReadingsInput struct {
	HoursIn  *int
	HoursOut *int
	Km       *int
}

type TransitionOptions struct {
	// HoursOut, показания моточасов при закрытии (только done).
	HoursOut *int
}

// TicketServicer — интерфейс для хендлеров (Dependency Inversion).
type TicketServicer interface {
	Create(ctx context.Context, actor lifecycle.Actor, in CreateTicketInput) (*TicketView, error)
	Get(ctx context.Context, id uint64) (*TicketView, error)
	List(ctx context.Context, st listing.State[TicketFilter]) ([]TicketView, int64, error)
	Transition(ctx context.Context, id uint64, action lifecycle.Action, actor lifecycle.Actor, opts TransitionOptions) (*TicketView, error)
	SaveReadings(ctx context.Context, id uint64, actor lifecycle.Actor, in ReadingsInput) (*TicketView, error)
	AddWorklog(ctx context.Context, ticketID uint64, actor lifecycle.Actor, note string, minutes int) (*model.Worklog, error)
	ListWorklogs(ctx context.Context, ticketID uint64) ([]model.Worklog, error)
}

type TicketService struct {
	db       *gorm.DB
	clock    clock.Clock
	events   EventPublisher
	notifier InsertNotifier
}

func NewTicketService(db *gorm.DB, clk clock.Clock, events EventPublisher, notifier InsertNotifier) *TicketService {
	if clk == nil {
		clk = clock.Real()
	}
	if events == nil {
		events = nopPublisher{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &TicketService{db: db, clock: clk, events: events, notifier: notifier}
}

func (s *TicketService) Create(ctx context.Context, actor lifecycle.Actor, in CreateTicketInput) (*TicketView, error) {
	in.Description = strings.TrimSpace(in.Description)
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	var v errs.Validation
	v.Check(in.Description != "", "description", "is required")
	v.Check(len([]rune(in.Description)) <= maxDescription, "description", fmt.Sprintf("must be at most %d characters", maxDescription))
	v.Check(in.Priority.Valid(), "priority", "must be low, medium or high")
	// тикет гида всегда привязан к багги
	v.Check(actor.Role != model.RoleGuide || in.BuggyID != nil, "buggy_id", "is required")
	v.Check(readingPtr(in.HoursIn), "hours_in", readingMsg)
	v.Check(readingPtr(in.Km), "km", readingMsg)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if in.BuggyID != nil {
		if err := s.buggyExists(ctx, *in.BuggyID); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	t := &model.Ticket{
		BuggyID:     in.BuggyID,
		Description: in.Description,
		Status:      model.TicketStatusOpen,
		Priority:    in.Priority,
		CreatedBy:   actor.ID,
		HoursIn:     in.HoursIn,
		Km:          in.Km,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		return tx.Create(&model.TicketExtra{TicketID: t.ID, TestDrive: model.TestDriveNone, UpdatedAt: now}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	view, err := s.Get(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.TicketCreated(view)
	s.events.Publish(ticketEvent("ticket.created", view, actor, now))
	return view, nil
}

func (s *TicketService) Get(ctx context.Context, id uint64) (*TicketView, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	views, err := s.decorate(ctx, []model.Ticket{t})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List: один запрос на страницу: COUNT + ORDER BY created_at DESC LIMIT/OFFSET.
func (s *TicketService) List(ctx context.Context, st listing.State[TicketFilter]) ([]TicketView, int64, error) {
	if err := st.Filter.Validate(); err != nil {
		return nil, 0, err
	}
	var items []model.Ticket
	var total int64
	tx := applyTicketFilter(s.db.WithContext(ctx).Model(&model.Ticket{}), st.Filter)
	// Count total before pagination
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := tx.Order("created_at DESC").Order("id DESC").
		Limit(st.Limit()).Offset(st.Offset()).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	views, err := s.decorate(ctx, items)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

func applyTicketFilter(tx *gorm.DB, f TicketFilter) *gorm.DB {
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.ActiveOnly {
		tx = tx.Where("status IN ?", []model.TicketStatus{model.TicketStatusOpen, model.TicketStatusInProgress})
	}
	if f.Priority != "" {
		tx = tx.Where("priority = ?", f.Priority)
	}
	if f.BuggyID != 0 {
		tx = tx.Where("buggy_id = ?", f.BuggyID)
	}
	if f.BuggyNumber != "" {
		tx = tx.Where("buggy_id IN (?)", tx.Session(&gorm.Session{NewDB: true}).
			Model(&model.Buggy{}).Select("id").Where("number = ?", f.BuggyNumber))
	}
	if f.Assignee != "" {
		tx = tx.Where("assignee = ?", f.Assignee)
	}
	if f.CreatedBy != "" {
		tx = tx.Where("created_by = ?", f.CreatedBy)
	}
	if !f.From.IsZero() {
		tx = tx.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		tx = tx.Where("created_at < ?", f.To)
	}
	return tx
}

// Transition проверяет действие автоматом и сохраняет патч условным UPDATE:
// если тикет успели изменить, вернётся ErrConcurrentUpdate.
func (s *TicketService) Transition(ctx context.Context, id uint64, action lifecycle.Action, actor lifecycle.Actor, opts TransitionOptions) (*TicketView, error) {
	if !action.Valid() {
		return nil, errs.ErrInvalidTransition
	}
	var v errs.Validation
	if opts.HoursOut != nil {
		v.Check(action == lifecycle.ActionDone, "hours_out", "only allowed when completing")
		v.Check(readingPtr(opts.HoursOut), "hours_out", readingMsg)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := snapshotOf(cur)
	now := s.clock.Now()

	patch, err := lifecycle.Transition(snap, action, actor, now)
	if err != nil {
		observability.ObserveTransition(string(action), "rejected")
		return nil, err
	}
	if patch.Empty() {
		observability.ObserveTransition(string(action), "noop")
		return cur, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if patch.TouchesTicket() {
			updates := patchColumns(patch, now)
			if opts.HoursOut != nil {
				updates["hours_out"] = *opts.HoursOut
			}
			res := tx.Model(&model.Ticket{}).
				Where("id = ? AND status = ? AND assignee = ?", id, snap.Status, snap.Assignee).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errs.ErrConcurrentUpdate
			}
		}
		if patch.TestDrive != nil {
			return setTestDrive(tx, id, snap.TestDrive, *patch.TestDrive, now)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrConcurrentUpdate) {
			observability.ObserveTransition(string(action), "conflict")
			return nil, err
		}
		observability.ObserveTransition(string(action), "error")
		return nil, fmt.Errorf("%s ticket %d: %w", action, id, err)
	}
	observability.ObserveTransition(string(action), "ok")

	fresh, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ticketEvent(action.Event(), fresh, actor, now))
	return fresh, nil
}

// setTestDrive — условный апдейт ticket_extras; строки может не быть у старых тикетов.
func setTestDrive(tx *gorm.DB, ticketID uint64, from, to model.TestDrive, now time.Time) error {
	res := tx.Model(&model.TicketExtra{}).
		Where("ticket_id = ? AND test_drive = ?", ticketID, from).
		Updates(map[string]interface{}{"test_drive": to, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := tx.Model(&model.TicketExtra{}).Where("ticket_id = ?", ticketID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 || from != model.TestDriveNone {
		return errs.ErrConcurrentUpdate
	}
	return tx.Create(&model.TicketExtra{TicketID: ticketID, TestDrive: to, UpdatedAt: now}).Error
}

func patchColumns(p lifecycle.Patch, now time.Time) map[string]interface{} {
	m := map[string]interface{}{"updated_at": now}
	if p.Status != nil {
		m["status"] = *p.Status
	}
	if p.Assignee != nil {
		m["assignee"] = *p.Assignee
	}
	if p.StartedAt != nil {
		m["started_at"] = *p.StartedAt
	}
	if p.ClearCompletedAt {
		m["completed_at"] = gorm.Expr("NULL")
	}
	if p.CompletedAt != nil {
		m["completed_at"] = *p.CompletedAt
	}
	return m
}

func snapshotOf(t *TicketView) lifecycle.Snapshot {
	return lifecycle.Snapshot{
		Status:      t.Status,
		Assignee:    t.Assignee,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		TestDrive:   t.TestDrive,
	}
}

// SaveReadings: моточасы/км механиком; закрытый тикет не меняем.
func (s *TicketService) SaveReadings(ctx context.Context, id uint64, actor lifecycle.Actor, in ReadingsInput) (*TicketView, error) {
	var v errs.Validation
	v.Check(in.HoursIn != nil || in.HoursOut != nil || in.Km != nil, "readings", "at least one of hours_in, hours_out, km is required")
	v.Check(readingPtr(in.HoursIn), "hours_in", readingMsg)
	v.Check(readingPtr(in.HoursOut), "hours_out", readingMsg)
	v.Check(readingPtr(in.Km), "km", readingMsg)
	if err := v.Err(); err != nil {
		return nil, err
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == model.TicketStatusDone {
		return nil, errs.ErrAlreadyDone
	}
	updates := map[string]interface{}{"updated_at": s.clock.Now()}
	if in.HoursIn != nil {
		updates["hours_in"] = *in.HoursIn
	}
	if in.HoursOut != nil {
		updates["hours_out"] = *in.HoursOut
	}
	if in.Km != nil {
		updates["km"] = *in.Km
	}
	res := s.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("id = ? AND status = ?", id, cur.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("save readings %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrConcurrentUpdate
	}
	return s.Get(ctx, id)
}

func (s *TicketService) AddWorklog(ctx context.Context, ticketID uint64, actor lifecycle.Actor, note string, minutes int) (*model.Worklog, error) {
	note = strings.TrimSpace(note)
	var v errs.Validation
	v.Check(note != "", "note", "is required")
	v.Check(minutes >= 0, "minutes", "must be >= 0")
	if err := v.Err(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	w := &model.Worklog{
		TicketID:  ticketID,
		UserID:    actor.ID,
		Note:      note,
		Minutes:   minutes,
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, fmt.Errorf("add worklog: %w", err)
	}
	return w, nil
}

func (s *TicketService) ListWorklogs(ctx context.Context, ticketID uint64) ([]model.Worklog, error) {
	if _, err := s.Get(ctx, ticketID); err != nil {
		return nil, err
	}
	var items []model.Worklog
	if err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at DESC").Order("id DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// All — все тикеты для republish-events, пачками.
func (s *TicketService) All(ctx context.Context, batch int, fn func([]TicketView) error) error {
	var rows []model.Ticket
	return s.db.WithContext(ctx).Model(&model.Ticket{}).Order("id").
		FindInBatches(&rows, batch, func(tx *gorm.DB, _ int) error {
			views, err := s.decorate(ctx, rows)
			if err != nil {
				return err
			}
			return fn(views)
		}).Error
}

func (s *TicketService) buggyExists(ctx context.Context, id uint64) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Buggy{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errs.ErrBuggyNotFound
	}
	return nil
}

// decorate подтягивает test_drive и номер багги одним запросом на таблицу.
func (s *TicketService) decorate(ctx context.Context, items []model.Ticket) ([]TicketView, error) {
	views := make([]TicketView, len(items))
	if len(items) == 0 {
		return views, nil
	}
	ids := make([]uint64, 0, len(items))
	buggyIDs := make([]uint64, 0, len(items))
	for _, t := range items {
		ids = append(ids, t.ID)
		if t.BuggyID != nil {
			buggyIDs = append(buggyIDs, *t.BuggyID)
		}
	}

	var extras []model.TicketExtra
	if err := s.db.WithContext(ctx).Where("ticket_id IN ?", ids).Find(&extras).Error; err != nil {
		return nil, err
	}
	marker := make(map[uint64]model.TestDrive, len(extras))
	for _, e := range extras {
		marker[e.TicketID] = e.TestDrive
	}

	numbers, err := buggyNumbers(ctx, s.db, buggyIDs)
	if err != nil {
		return nil, err
	}

	for i, t := range items {
		views[i] = TicketView{Ticket: t, TestDrive: model.TestDriveNone}
		if m, ok := marker[t.ID]; ok {
			views[i].TestDrive = m
		}
		if t.BuggyID != nil {
			views[i].BuggyNumber = numbers[*t.BuggyID]
		}
	}
	return views, nil
}
