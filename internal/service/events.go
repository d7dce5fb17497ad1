package service

import (
	"time"

	"github.com/psds-microservice/workshop-service/internal/kafka"
	"github.com/psds-microservice/workshop-service/internal/lifecycle"
)

// EventPublisher: best-effort публикация событий тикета (kafka.Producer).
type EventPublisher interface {
	Publish(ev kafka.TicketEvent)
}

// InsertNotifier — push о новых тикетах подписчикам (realtime.Hub).
type InsertNotifier interface {
	TicketCreated(ticket interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(kafka.TicketEvent) {}

type nopNotifier struct{}

func (nopNotifier) TicketCreated(interface{}) {}

func ticketEvent(event string, t *TicketView, actor lifecycle.Actor, at time.Time) kafka.TicketEvent {
	return kafka.TicketEvent{
		Event:       event,
		TicketID:    t.ID,
		BuggyID:     t.BuggyID,
		BuggyNumber: t.BuggyNumber,
		Status:      string(t.Status),
		ActorRole:   string(actor.Role),
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		At:          at,
	}
}

// EventTicketSnapshot: полное состояние тикета для republish-events.
const EventTicketSnapshot = "ticket.snapshot"

func SnapshotEvent(t *TicketView, at time.Time) kafka.TicketEvent {
	return ticketEvent(EventTicketSnapshot, t, lifecycle.Actor{Role: "system"}, at)
}
