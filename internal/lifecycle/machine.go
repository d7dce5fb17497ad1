// Package lifecycle holds the repair ticket state machine shared by the
// mechanic, guide and admin drivers.
//
// States are open (initial), in_progress and done. done is terminal except
// for the guide's "send back for rework", which resets the ticket to open
// while keeping its history (assignee, started_at).
//
// Transition is pure: it checks the guard against a Snapshot and returns the
// Patch to persist. An empty Patch with a nil error is a no-op.
package lifecycle

import (
	"time"

	"github.com/psds-microservice/workshop-service/internal/errs"
	"github.com/psds-microservice/workshop-service/internal/model"
)

type Action string

const (
	ActionStart            Action = "start"
	ActionDone             Action = "done"
	ActionAssign           Action = "assign"
	ActionRequestTestDrive Action = "request_test_drive"
	ActionTestPassed       Action = "test_passed"
	ActionSendBack         Action = "send_back"
)

// Роли, которым разрешено действие.
var allowed = map[Action][]model.Role{
	ActionStart:            {model.RoleMechanic},
	ActionDone:             {model.RoleMechanic},
	ActionAssign:           {model.RoleMechanic},
	ActionRequestTestDrive: {model.RoleMechanic, model.RoleGuide},
	ActionTestPassed:       {model.RoleGuide},
	ActionSendBack:         {model.RoleGuide},
}

// Имена событий для шины (kafka).
var events = map[Action]string{
	ActionStart:            "ticket.started",
	ActionDone:             "ticket.completed",
	ActionAssign:           "ticket.assigned",
	ActionRequestTestDrive: "testdrive.requested",
	ActionTestPassed:       "test.passed",
	ActionSendBack:         "ticket.returned",
}

func (a Action) Valid() bool {
	_, ok := allowed[a]
	return ok
}

// Event returns the bus event name emitted after the action is persisted.
func (a Action) Event() string { return events[a] }

// Snapshot is the part of a ticket the guards look at.
type Snapshot struct {
	Status      model.TicketStatus
	Assignee    string
	StartedAt   *time.Time
	CompletedAt *time.Time
	TestDrive   model.TestDrive
}

type Actor struct {
	ID   string
	Role model.Role
	Name string
}

// Patch lists the fields to write. nil means "leave as is".
type Patch struct {
	Status           *model.TicketStatus
	Assignee         *string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ClearCompletedAt bool
	TestDrive        *model.TestDrive
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Assignee == nil && p.StartedAt == nil &&
		p.CompletedAt == nil && !p.ClearCompletedAt && p.TestDrive == nil
}

// TouchesTicket reports whether the tickets row changes (TestDrive lives in ticket_extras).
func (p Patch) TouchesTicket() bool {
	return p.Status != nil || p.Assignee != nil || p.StartedAt != nil ||
		p.CompletedAt != nil || p.ClearCompletedAt
}

// Apply returns s with the patch applied.
func (p Patch) Apply(s Snapshot) Snapshot {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Assignee != nil {
		s.Assignee = *p.Assignee
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		s.StartedAt = &t
	}
	if p.ClearCompletedAt {
		s.CompletedAt = nil
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		s.CompletedAt = &t
	}
	if p.TestDrive != nil {
		s.TestDrive = *p.TestDrive
	}
	return s
}

// Transition validates action a on s for actor and returns the patch.
func Transition(s Snapshot, a Action, actor Actor, now time.Time) (Patch, error) {
	roles, ok := allowed[a]
	if !ok {
		return Patch{}, errs.ErrInvalidTransition
	}
	if !hasRole(roles, actor.Role) {
		return Patch{}, errs.ErrForbidden
	}
	if s.TestDrive == "" {
		s.TestDrive = model.TestDriveNone
	}

	switch a {
	case ActionStart:
		return start(s, actor, now)
	case ActionDone:
		return done(s, actor, now)
	case ActionAssign:
		return assign(s, actor)
	case ActionRequestTestDrive:
		return requestTestDrive(s)
	case ActionTestPassed:
		return testPassed(s, now)
	case ActionSendBack:
		return sendBack(s)
	}
	return Patch{}, errs.ErrInvalidTransition
}

func start(s Snapshot, actor Actor, now time.Time) (Patch, error) {
	if s.Status == model.TicketStatusDone {
		return Patch{}, errs.ErrAlreadyDone
	}
	var p Patch
	if s.Status != model.TicketStatusInProgress {
		p.Status = statusPtr(model.TicketStatusInProgress)
	}
	// started_at ставится один раз
	if s.StartedAt == nil {
		p.StartedAt = timePtr(now)
	}
	if s.Assignee == "" {
		p.Assignee = strPtr(actor.ID)
	}
	return p, nil
}

func done(s Snapshot, actor Actor, now time.Time) (Patch, error) {
	if s.Status == model.TicketStatusDone {
		return Patch{}, errs.ErrAlreadyDone
	}
	p := Patch{
		Status:      statusPtr(model.TicketStatusDone),
		CompletedAt: timePtr(now),
	}
	// быстрое закрытие прямо из open
	if s.Status == model.TicketStatusOpen {
		if s.Assignee == "" {
			p.Assignee = strPtr(actor.ID)
		}
		if s.StartedAt == nil {
			p.StartedAt = timePtr(now)
		}
	}
	return p, nil
}

func assign(s Snapshot, actor Actor) (Patch, error) {
	if s.Assignee != "" {
		return Patch{}, nil
	}
	if s.Status != model.TicketStatusOpen {
		return Patch{}, errs.ErrInvalidTransition
	}
	return Patch{Assignee: strPtr(actor.ID)}, nil
}

func requestTestDrive(s Snapshot) (Patch, error) {
	if s.Status == model.TicketStatusOpen {
		return Patch{}, errs.ErrInvalidTransition
	}
	if s.TestDrive == model.TestDriveRequested {
		return Patch{}, nil
	}
	return Patch{TestDrive: testDrivePtr(model.TestDriveRequested)}, nil
}

func testPassed(s Snapshot, now time.Time) (Patch, error) {
	if s.TestDrive != model.TestDriveRequested {
		return Patch{}, errs.ErrTestDriveNotPending
	}
	return Patch{
		Status:      statusPtr(model.TicketStatusDone),
		CompletedAt: timePtr(now),
		TestDrive:   testDrivePtr(model.TestDriveDone),
	}, nil
}

func sendBack(s Snapshot) (Patch, error) {
	if s.TestDrive != model.TestDriveRequested {
		return Patch{}, errs.ErrTestDriveNotPending
	}
	p := Patch{TestDrive: testDrivePtr(model.TestDriveRework)}
	if s.Status != model.TicketStatusOpen {
		p.Status = statusPtr(model.TicketStatusOpen)
	}
	// completed_at есть только у done
	if s.CompletedAt != nil {
		p.ClearCompletedAt = true
	}
	return p, nil
}

// Consistent checks the snapshot-level invariants.
func Consistent(s Snapshot) bool {
	if (s.Status == model.TicketStatusDone) != (s.CompletedAt != nil) {
		return false
	}
	if s.Status == model.TicketStatusInProgress && s.StartedAt == nil {
		return false
	}
	return true
}

func hasRole(roles []model.Role, r model.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

func statusPtr(s model.TicketStatus) *model.TicketStatus { return &s }
func testDrivePtr(t model.TestDrive) *model.TestDrive    { return &t }
func strPtr(s string) *string                            { return &s }
func timePtr(t time.Time) *time.Time                     { return &t }
