package main

import (
	"database/sql"
	"sync"
	"time"
)

// Event types written to the events table
const (
	EventJoin   = "join"
	EventLeave  = "leave"
	EventDeath  = "death"
	EventReject = "reject"
)

const (
	eventQueueSize  = 1024
	eventBatchSize  = 50
	eventFlushEvery = 5 * time.Second
)

// Event is a single logged room event
type Event struct {
	Type      string
	AccountID int64
	Room      string
	Data      string
	Timestamp time.Time
}

// EventLog writes room events to the database in batches from a background
// goroutine. A nil *EventLog accepts and discards events.
type EventLog struct {
	db       *DB
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEventLog creates and starts the background writer
func NewEventLog(db *DB) *EventLog {
	l := &EventLog{
		db:     db,
		events: make(chan Event, eventQueueSize),
		stop:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.writer()
	return l
}

// Track enqueues an event without blocking; a full queue drops it
func (l *EventLog) Track(eventType string, accountID int64, room, data string) {
	if l == nil {
		return
	}
	select {
	case l.events <- Event{
		Type:      eventType,
		AccountID: accountID,
		Room:      room,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
	}
}

// Stop drains queued events and waits for the writer to exit
func (l *EventLog) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *EventLog) writer() {
	defer l.wg.Done()

	batch := make([]Event, 0, eventBatchSize)
	ticker := time.NewTicker(eventFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-l.events:
			batch = append(batch, evt)
			if len(batch) >= eventBatchSize {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-l.stop:
			for {
				select {
				case evt := <-l.events:
					batch = append(batch, evt)
				default:
					l.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch in one transaction
func (l *EventLog) flush(events []Event) {
	if l.db == nil || len(events) == 0 {
		return
	}
	tx, err := l.db.conn.Begin()
	if err != nil {
		Log.Errorw("events: begin tx", "err", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO events (event_type, account_id, room, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		Log.Errorw("events: prepare", "err", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		acct := sql.NullInt64{Int64: evt.AccountID, Valid: evt.AccountID > 0}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, acct, evt.Room, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			Log.Errorw("events: insert", "type", evt.Type, "err", err)
		}
	}
	if err := tx.Commit(); err != nil {
		Log.Errorw("events: commit", "err", err)
	}
}
