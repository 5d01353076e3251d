package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskboard/internal/store"
	"taskboard/pkg/mq"
)

// TimeLayout is the format of server-assigned createdAt values. It is fixed
// width so that string ordering matches time ordering.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	EventCreated = "task.created"
	EventUpdated = "task.updated"
	EventDeleted = "task.deleted"
)

var (
	ErrNotFound     = errors.New("task not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Store interface {
	List(ctx context.Context) ([]store.Task, error)
	Get(ctx context.Context, id string) (store.Task, bool, error)
	Insert(ctx context.Context, t store.Task) error
	SetDone(ctx context.Context, id string, done bool) (store.Task, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

// NewTask is the caller-supplied part of a task. Empty ID and CreatedAt are
// filled in by the manager.
type NewTask struct {
	ID        string
	Title     string
	Done      bool
	CreatedAt string
}

// Event is published after every successful mutation.
type Event struct {
	Type   string      `json:"type"`
	TaskID string      `json:"taskId"`
	Task   *store.Task `json:"task,omitempty"`
	At     string      `json:"at"`
}

type Manager struct {
	st     Store
	pub    mq.Publisher
	topic  string
	logger *log.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

type Option func(*Manager)

func WithPublisher(pub mq.Publisher, topic string) Option {
	return func(m *Manager) {
		m.pub = pub
		m.topic = topic
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer(tracerName) }
}

const tracerName = "taskboard/internal/task"

func NewManager(st Store, opts ...Option) *Manager {
	m := &Manager{
		st:     st,
		pub:    mq.Noop{},
		topic:  "task-events",
		logger: log.StandardLogger(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) List(ctx context.Context) (tasks []store.Task, err error) {
	ctx, end := m.span(ctx, "list", "")
	defer func() { end(err) }()

	tasks, err = m.st.List(ctx)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

func (m *Manager) Get(ctx context.Context, id string) (t store.Task, err error) {
	ctx, end := m.span(ctx, "get", id)
	defer func() { end(err) }()

	t, ok, err := m.st.Get(ctx, id)
	if err != nil {
		return store.Task{}, err
	}
	if !ok {
		return store.Task{}, ErrNotFound
	}
	return t, nil
}

func (m *Manager) Create(ctx context.Context, in NewTask) (t store.Task, err error) {
	ctx, end := m.span(ctx, "create", in.ID)
	defer func() { end(err) }()

	// ids and timestamps are opaque: blank ones are replaced, others kept as sent
	t = store.Task{
		ID:        in.ID,
		Title:     strings.TrimSpace(in.Title),
		Done:      in.Done,
		CreatedAt: in.CreatedAt,
	}
	if t.Title == "" {
		return store.Task{}, fmt.Errorf("title is required: %w", store.ErrConstraintViolation)
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = m.newID()
	}
	if strings.TrimSpace(t.CreatedAt) == "" {
		t.CreatedAt = m.now().UTC().Format(TimeLayout)
	} else if _, perr := time.Parse(time.RFC3339, t.CreatedAt); perr != nil {
		return store.Task{}, fmt.Errorf("createdAt %q is not RFC 3339: %w", t.CreatedAt, ErrInvalidInput)
	}

	if err := m.st.Insert(ctx, t); err != nil {
		return store.Task{}, err
	}
	m.publish(ctx, EventCreated, t.ID, &t)
	return t, nil
}

func (m *Manager) SetDone(ctx context.Context, id string, done bool) (t store.Task, err error) {
	ctx, end := m.span(ctx, "set_done", id)
	defer func() { end(err) }()

	t, ok, err := m.st.SetDone(ctx, id, done)
	if err != nil {
		return store.Task{}, err
	}
	if !ok {
		return store.Task{}, ErrNotFound
	}
	m.publish(ctx, EventUpdated, t.ID, &t)
	return t, nil
}

func (m *Manager) Delete(ctx context.Context, id string) (err error) {
	ctx, end := m.span(ctx, "delete", id)
	defer func() { end(err) }()

	removed, err := m.st.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	m.publish(ctx, EventDeleted, id, nil)
	return nil
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.st.Ping(ctx)
}

func (m *Manager) StoreVersion(ctx context.Context) (string, error) {
	return m.st.Version(ctx)
}

func (m *Manager) publish(ctx context.Context, typ, id string, t *store.Task) {
	ev := Event{Type: typ, TaskID: id, Task: t, At: m.now().UTC().Format(TimeLayout)}
	payload, err := sonic.Marshal(ev)
	if err != nil {
		m.logger.WithError(err).WithField("task_id", id).Error("marshal task event")
		return
	}
	if err := m.pub.Publish(ctx, m.topic, payload); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{"task_id": id, "event": typ, "topic": m.topic}).
			Error("publish task event")
	}
}

// span starts a span for op. Absence is an expected outcome and does not
// mark the span as failed.
func (m *Manager) span(ctx context.Context, op, id string) (context.Context, func(error)) {
	ctx, span := m.tracer.Start(ctx, "task."+op)
	if id != "" {
		span.SetAttributes(attribute.String("task.id", id))
	}
	return ctx, func(err error) {
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			span.SetAttributes(attribute.Bool("task.found", false))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
