package service

import (
	"context"
	"testing"
	"time"

	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
	"github.com/psds-microservice/workshop-service/internal/listing"
	"github.com/psds-microservice/workshop-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.buggies.Create(ctx, "B-12", "Polaris")
	require.NoError(t, err)

	v, err := f.tickets.Create(ctx, guide, CreateTicketInput{BuggyID: &b.ID, Description: "  brakes squeak "})
	require.NoError(t, err)
	assert.NotZero(t, v.ID)
	assert.Equal(t, "brakes squeak", v.Description)
	assert.Equal(t, model.TicketStatusOpen, v.Status)
	assert.Equal(t, model.PriorityMedium, v.Priority)
	assert.Equal(t, model.TestDriveNone, v.TestDrive)
	assert.Equal(t, "B-12", v.BuggyNumber)
	assert.Equal(t, "guide-1", v.CreatedBy)
	assert.Empty(t, v.Assignee)
	assert.Nil(t, v.StartedAt)
	assert.Nil(t, v.CompletedAt)
	assert.True(t, v.CreatedAt.Equal(t0))

	assert.Equal(t, []string{"ticket.created"}, f.rec.names())
	assert.Len(t, f.rec.created, 1)
}

func TestTicketService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tickets.Create(ctx, guide, CreateTicketInput{Description: "", Priority: "urgent"})
	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "description")
	assert.Contains(t, ve.Fields, "priority")
	assert.Contains(t, ve.Fields, "buggy_id", "guide tickets need a buggy")

	_, err = f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "x", HoursIn: intPtr(maxReading + 1), Km: intPtr(-1)})
	ve, ok = errs.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, readingMsg, ve.Fields["hours_in"])
	assert.Equal(t, readingMsg, ve.Fields["km"])

	// механик может создать тикет без багги
	v, err := f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "shop compressor", Priority: model.PriorityLow})
	require.NoError(t, err)
	assert.Nil(t, v.BuggyID)

	_, err = f.tickets.Create(ctx, mechanic, CreateTicketInput{BuggyID: u64(999), Description: "x"})
	assert.ErrorIs(t, err, errs.ErrBuggyNotFound)
	assert.Empty(t, f.rec.names()[1:], "failed creates publish nothing")
}

func TestTicketService_Get(t *testing.T) {
	f := newFixture(t)
	_, err := f.tickets.Get(context.Background(), 42)
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

func TestTicketService_StartThenDone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "oil"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	v, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionStart, mechanic, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusInProgress, v.Status)
	assert.Equal(t, "mech-1", v.Assignee)
	require.NotNil(t, v.StartedAt)
	started := *v.StartedAt
	assert.True(t, started.Equal(t0.Add(time.Hour)))

	// повторный start ничего не меняет
	f.clock.Advance(time.Hour)
	v, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionStart, mechanic, TransitionOptions{})
	require.NoError(t, err)
	assert.True(t, v.StartedAt.Equal(started))

	f.clock.Advance(time.Hour)
	v, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionDone, mechanic, TransitionOptions{HoursOut: intPtr(120)})
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusDone, v.Status)
	require.NotNil(t, v.CompletedAt)
	assert.True(t, v.CompletedAt.Equal(t0.Add(3*time.Hour)))
	assert.True(t, v.StartedAt.Equal(started), "done keeps started_at")
	require.NotNil(t, v.HoursOut)
	assert.Equal(t, 120, *v.HoursOut)

	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionDone, mechanic, TransitionOptions{})
	assert.ErrorIs(t, err, errs.ErrAlreadyDone)

	assert.Equal(t, []string{"ticket.created", "ticket.started", "ticket.completed"}, f.rec.names())
}

func TestTicketService_DoneFromOpenBackfills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.tickets.Create(ctx, admin, CreateTicketInput{Description: "tyre"})
	require.NoError(t, err)

	v, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionDone, mech2, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mech-2", v.Assignee)
	assert.NotNil(t, v.StartedAt)
	assert.NotNil(t, v.CompletedAt)
}

func TestTicketService_AssignIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.tickets.Create(ctx, admin, CreateTicketInput{Description: "lights"})
	require.NoError(t, err)

	v, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionAssign, mechanic, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mech-1", v.Assignee)
	assert.Equal(t, model.TicketStatusOpen, v.Status)

	v, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionAssign, mech2, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mech-1", v.Assignee, "second assign is a no-op")
	assert.Equal(t, []string{"ticket.created", "ticket.assigned"}, f.rec.names())
}

func TestTicketService_TestDriveRework(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.buggies.Create(ctx, "B-3", "")
	require.NoError(t, err)
	v, err := f.tickets.Create(ctx, guide, CreateTicketInput{BuggyID: &b.ID, Description: "steering"})
	require.NoError(t, err)

	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionRequestTestDrive, guide, TransitionOptions{})
	assert.ErrorIs(t, err, errs.ErrInvalidTransition, "open ticket cannot be test-driven")

	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionDone, mechanic, TransitionOptions{})
	require.NoError(t, err)

	v, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionRequestTestDrive, guide, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.TestDriveRequested, v.TestDrive)
	assert.Equal(t, model.TicketStatusDone, v.Status)

	v, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionSendBack, guide, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusOpen, v.Status)
	assert.Equal(t, model.TestDriveRework, v.TestDrive)
	assert.Nil(t, v.CompletedAt)
	assert.Equal(t, "mech-1", v.Assignee)
	assert.NotNil(t, v.StartedAt)

	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionTestPassed, guide, TransitionOptions{})
	assert.ErrorIs(t, err, errs.ErrTestDriveNotPending)

	evs := f.rec.names()
	assert.Equal(t, "ticket.returned", evs[len(evs)-1])
	last := f.rec.events[len(f.rec.events)-1]
	assert.Equal(t, "B-3", last.BuggyNumber)
	assert.Equal(t, "guide", last.ActorRole)
	assert.Equal(t, "Olga", last.ActorName)
}

func TestTicketService_TestPassed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "clutch"})
	require.NoError(t, err)
	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionStart, mechanic, TransitionOptions{})
	require.NoError(t, err)
	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionRequestTestDrive, mechanic, TransitionOptions{})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	v, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionTestPassed, guide, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusDone, v.Status)
	assert.Equal(t, model.TestDriveDone, v.TestDrive)
	assert.True(t, v.CompletedAt.Equal(t0.Add(30*time.Minute)))
}

func TestTicketService_TransitionRoleGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "x"})
	require.NoError(t, err)

	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionStart, guide, TransitionOptions{})
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionSendBack, mechanic, TransitionOptions{})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionStart, mechanic, TransitionOptions{HoursOut: intPtr(1)})
	_, ok := errs.IsValidation(err)
	assert.True(t, ok, "hours_out only with done")

	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionDone, mechanic, TransitionOptions{HoursOut: intPtr(maxReading + 1)})
	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, readingMsg, ve.Fields["hours_out"])

	_, err = f.tickets.Transition(ctx, 404, lifecycle.ActionStart, mechanic, TransitionOptions{})
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

// Условный UPDATE: если статус в БД уже не тот, что видел guard, конфликт.
func TestTicketService_ConcurrentUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "race"})
	require.NoError(t, err)

	// guard первого механика видит тикет открытым и без исполнителя
	snap := snapshotOf(v)
	patch, err := lifecycle.Transition(snap, lifecycle.ActionStart, mechanic, t0)
	require.NoError(t, err)

	// конкурент уже взял тикет
	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionStart, mech2, TransitionOptions{})
	require.NoError(t, err)

	res := f.db.Model(&model.Ticket{}).
		Where("id = ? AND status = ? AND assignee = ?", v.ID, snap.Status, snap.Assignee).
		Updates(patchColumns(patch, t0))
	require.NoError(t, res.Error)
	assert.Zero(t, res.RowsAffected)

	got, err := f.tickets.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "mech-2", got.Assignee, "first writer wins")
}

func TestTicketService_SaveReadings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "service"})
	require.NoError(t, err)

	_, err = f.tickets.SaveReadings(ctx, v.ID, mechanic, ReadingsInput{})
	_, ok := errs.IsValidation(err)
	assert.True(t, ok)

	_, err = f.tickets.SaveReadings(ctx, v.ID, mechanic, ReadingsInput{Km: intPtr(-1)})
	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "km")

	_, err = f.tickets.SaveReadings(ctx, v.ID, mechanic, ReadingsInput{HoursOut: intPtr(maxReading + 1)})
	ve, ok = errs.IsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "hours_out")

	v, err = f.tickets.SaveReadings(ctx, v.ID, mechanic, ReadingsInput{HoursIn: intPtr(310), Km: intPtr(4200)})
	require.NoError(t, err)
	assert.Equal(t, 310, *v.HoursIn)
	assert.Equal(t, 4200, *v.Km)
	assert.Nil(t, v.HoursOut)

	_, err = f.tickets.Transition(ctx, v.ID, lifecycle.ActionDone, mechanic, TransitionOptions{})
	require.NoError(t, err)
	_, err = f.tickets.SaveReadings(ctx, v.ID, mechanic, ReadingsInput{HoursOut: intPtr(311)})
	assert.ErrorIs(t, err, errs.ErrAlreadyDone)
}

func TestTicketService_Worklogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "belt"})
	require.NoError(t, err)

	_, err = f.tickets.AddWorklog(ctx, v.ID, mechanic, " ", -5)
	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	assert.Len(t, ve.Fields, 2)

	_, err = f.tickets.AddWorklog(ctx, v.ID, mechanic, "removed cover", 15)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.tickets.AddWorklog(ctx, v.ID, mechanic, "replaced belt", 40)
	require.NoError(t, err)

	logs, err := f.tickets.ListWorklogs(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "replaced belt", logs[0].Note)
	assert.Equal(t, "mech-1", logs[0].UserID)

	_, err = f.tickets.AddWorklog(ctx, 999, mechanic, "x", 1)
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

func TestTicketService_ListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b1, err := f.buggies.Create(ctx, "B-1", "")
	require.NoError(t, err)
	b2, err := f.buggies.Create(ctx, "B-2", "")
	require.NoError(t, err)

	mk := func(b *model.Buggy, p model.Priority) *TicketView {
		f.clock.Advance(time.Minute)
		v, err := f.tickets.Create(ctx, guide, CreateTicketInput{BuggyID: &b.ID, Description: "t", Priority: p})
		require.NoError(t, err)
		return v
	}
	a := mk(b1, model.PriorityHigh)
	mk(b1, model.PriorityLow)
	c := mk(b2, model.PriorityHigh)
	d := mk(b2, model.PriorityHigh)
	_, err = f.tickets.Transition(ctx, d.ID, lifecycle.ActionStart, mechanic, TransitionOptions{})
	require.NoError(t, err)

	st := listing.New[TicketFilter](listing.TicketPageSize).
		WithFilter(TicketFilter{Status: model.TicketStatusOpen, Priority: model.PriorityHigh})
	items, total, err := f.tickets.List(ctx, st)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, c.ID, items[0].ID, "newest first")
	assert.Equal(t, a.ID, items[1].ID)

	items, total, err = f.tickets.List(ctx, st.WithFilter(TicketFilter{BuggyNumber: "B-2"}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, it := range items {
		assert.Equal(t, "B-2", it.BuggyNumber)
	}

	items, _, err = f.tickets.List(ctx, st.WithFilter(TicketFilter{Assignee: "mech-1"}))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, d.ID, items[0].ID)

	items, _, err = f.tickets.List(ctx, st.WithFilter(TicketFilter{
		From: t0.Add(2 * time.Minute),
		To:   t0.Add(4 * time.Minute),
	}))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, _, err = f.tickets.List(ctx, st.WithFilter(TicketFilter{Status: "closed"}))
	_, ok := errs.IsValidation(err)
	assert.True(t, ok)
}

func TestTicketService_ListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f.clock.Advance(time.Second)
		_, err := f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "t"})
		require.NoError(t, err)
	}
	st := listing.New[TicketFilter](listing.TicketPageSize)
	items, total, err := f.tickets.List(ctx, st)
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)
	assert.Len(t, items, 20)
	assert.True(t, st.HasNext(total))

	st = st.Next()
	items, _, err = f.tickets.List(ctx, st)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.False(t, st.HasNext(total))
}

func TestTicketService_All(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.tickets.Create(ctx, mechanic, CreateTicketInput{Description: "t"})
		require.NoError(t, err)
	}
	seen := 0
	batches := 0
	err := f.tickets.All(ctx, 2, func(vs []TicketView) error {
		batches++
		seen += len(vs)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, seen)
	assert.Equal(t, 3, batches)
}

func TestSnapshotEvent(t *testing.T) {
	v := &TicketView{Ticket: model.Ticket{ID: 7, BuggyID: u64(3), Status: model.TicketStatusDone}, BuggyNumber: "B-3"}
	ev := SnapshotEvent(v, t0)
	assert.Equal(t, EventTicketSnapshot, ev.Event)
	assert.Equal(t, uint64(7), ev.TicketID)
	assert.Equal(t, "B-3", ev.BuggyNumber)
	assert.Equal(t, "done", ev.Status)
	assert.Equal(t, "system", ev.ActorRole)
	assert.True(t, ev.At.Equal(t0))
}
