package service

import (
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/workshop-service/internal/clock"
	"github.com/psds-microservice/workshop-service/internal/database"
	"github.com/psds-microservice/workshop-service/internal/kafka"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
	"github.com/psds-microservice/workshop-service/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	t0       = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	mechanic = lifecycle.Actor{ID: "mech-1", Role: model.RoleMechanic, Name: "Ivan"}
	mech2    = lifecycle.Actor{ID: "mech-2", Role: model.RoleMechanic, Name: "Sergey"}
	guide    = lifecycle.Actor{ID: "guide-1", Role: model.RoleGuide, Name: "Olga"}
	admin    = lifecycle.Actor{ID: "admin-1", Role: model.RoleAdmin, Name: "Admin"}
)

type recorder struct {
	mu      sync.Mutex
	events  []kafka.TicketEvent
	created []interface{}
}

func (r *recorder) Publish(ev kafka.TicketEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) TicketCreated(t interface{}) {
	r.mu.Lock()
	r.created = append(r.created, t)
	r.mu.Unlock()
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Event)
	}
	return out
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	return db
}

type fixture struct {
	db      *gorm.DB
	clock   *clock.Fake
	rec     *recorder
	tickets *TicketService
	buggies *BuggyService
	dealer  *DealerService
	hours   *HoursService
	cards   *JobCardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newDB(t)
	clk := clock.NewFake(t0)
	rec := &recorder{}
	return &fixture{
		db:      db,
		clock:   clk,
		rec:     rec,
		tickets: NewTicketService(db, clk, rec, rec),
		buggies: NewBuggyService(db, clk),
		dealer:  NewDealerService(db, clk),
		hours:   NewHoursService(db, clk),
		cards:   NewJobCardService(db, clk),
	}
}

func intPtr(i int) *int { return &i }

func u64(i uint64) *uint64 { return &i }
