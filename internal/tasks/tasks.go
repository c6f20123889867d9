package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Key is the storage key the task blob lives under.
const Key = "siaTasks"

var ErrNotFound = errors.New("key not found")

// Messages reported to the user when a save fails.
const (
	SaveFailedText   = "Error saving tasks: Storage full or disabled."
	SaveFailedSpeech = "Error saving tasks."
)

type Reminder struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"time"`
}

type Todo struct {
	Text string `json:"text"`
}

type Alarm struct {
	Label     string    `json:"label"`
	FireAt    time.Time `json:"time"`
	Triggered bool      `json:"triggered"`
}

// Tasks is the persisted shape of the store.
type Tasks struct {
	Reminders []Reminder `json:"reminders"`
	Todos     []Todo     `json:"todos"`
	Alarms    []Alarm    `json:"alarms"`
}

// Backend persists a single blob per key. Load returns ErrNotFound when
// nothing has been stored yet.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
}

// Store holds reminders, todos and alarms. Every mutation rewrites the
// whole blob. It is not safe for concurrent use.
type Store struct {
	backend Backend
	data    Tasks
}

// Open loads the store once. Missing or corrupt data gives an empty store;
// a backend read failure is returned alongside a usable in-memory store.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	s := &Store{backend: backend, data: empty()}

	blob, err := backend.Load(ctx, Key)
	if errors.Is(err, ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("load tasks: %w", err)
	}

	var t Tasks
	if err := json.Unmarshal(blob, &t); err != nil {
		return s, nil
	}
	s.data = normalize(t)
	return s, nil
}

func (s *Store) AddReminder(ctx context.Context, text string, at time.Time) error {
	s.data.Reminders = append(s.data.Reminders, Reminder{Text: text, CreatedAt: stamp(at)})
	return s.save(ctx)
}

func (s *Store) AddTodo(ctx context.Context, text string) error {
	s.data.Todos = append(s.data.Todos, Todo{Text: text})
	return s.save(ctx)
}

func (s *Store) AddAlarm(ctx context.Context, label string, fireAt time.Time) error {
	s.data.Alarms = append(s.data.Alarms, Alarm{Label: label, FireAt: stamp(fireAt)})
	return s.save(ctx)
}

// FireDue marks every untriggered alarm whose time has passed as triggered
// and returns them in store order. The store is persisted after each one.
func (s *Store) FireDue(ctx context.Context, now time.Time) ([]Alarm, error) {
	var (
		fired []Alarm
		errs  []error
	)
	for i := range s.data.Alarms {
		a := &s.data.Alarms[i]
		if a.Triggered || now.Before(a.FireAt) {
			continue
		}
		a.Triggered = true
		fired = append(fired, *a)
		if err := s.save(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return fired, errors.Join(errs...)
}

// Snapshot returns a deep copy of the current contents.
func (s *Store) Snapshot() Tasks {
	return Tasks{
		Reminders: append([]Reminder{}, s.data.Reminders...),
		Todos:     append([]Todo{}, s.data.Todos...),
		Alarms:    append([]Alarm{}, s.data.Alarms...),
	}
}

// Encode serializes the current contents exactly as they are persisted.
func (s *Store) Encode() ([]byte, error) {
	return json.Marshal(s.data)
}

func (s *Store) save(ctx context.Context) error {
	blob, err := s.Encode()
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	if err := s.backend.Save(ctx, Key, blob); err != nil {
		return fmt.Errorf("save tasks: %w", err)
	}
	return nil
}

func empty() Tasks {
	return Tasks{Reminders: []Reminder{}, Todos: []Todo{}, Alarms: []Alarm{}}
}

func normalize(t Tasks) Tasks {
	if t.Reminders == nil {
		t.Reminders = []Reminder{}
	}
	if t.Todos == nil {
		t.Todos = []Todo{}
	}
	if t.Alarms == nil {
		t.Alarms = []Alarm{}
	}
	return t
}

// stamp keeps millisecond precision in UTC so stored times survive a
// load/save round trip unchanged.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
