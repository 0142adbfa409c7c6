package web

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/store"
)

// recordingSink keeps every record it accepts
type recordingSink struct {
	mu      sync.Mutex
	records []*core.Record
}

func (s *recordingSink) Name() string             { return "recording" }
func (s *recordingSink) MinimumLevel() core.Level { return core.LevelDebug }
func (s *recordingSink) Close() error             { return nil }

func (s *recordingSink) Accept(record *core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// matching returns the records of logger at level with message
func (s *recordingSink) matching(logger string, level core.Level, message string) []*core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []*core.Record
	for _, r := range s.records {
		if r.LoggerName() == logger && r.Level() == level && r.Message() == message {
			found = append(found, r)
		}
	}
	return found
}

// testLoggers builds loggers attached to a fixed set of sinks
type testLoggers struct {
	sinks   []core.Sink
	mu      sync.Mutex
	loggers map[string]*core.Logger
}

func (l *testLoggers) Logger(name string) *core.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if logger, ok := l.loggers[name]; ok {
		return logger
	}
	logger, err := core.NewLogger(name, l.sinks)
	if err != nil {
		panic(err)
	}
	if l.loggers == nil {
		l.loggers = make(map[string]*core.Logger)
	}
	l.loggers[name] = logger
	return logger
}

// fakeRepository is an in-memory SessionRepository
type fakeRepository struct {
	mu       sync.Mutex
	sessions map[uint]store.Session
	nextID   uint
	nextIdea uint
}

func newFakeRepository(sessions ...store.Session) *fakeRepository {
	r := &fakeRepository{sessions: make(map[uint]store.Session)}
	for _, s := range sessions {
		r.sessions[s.ID] = s
		if s.ID > r.nextID {
			r.nextID = s.ID
		}
	}
	return r
}

func (r *fakeRepository) List(ctx context.Context) ([]store.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]store.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].DateCreated.After(list[j].DateCreated) })
	return list, nil
}

func (r *fakeRepository) GetByID(ctx context.Context, id uint) (*store.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	s.Ideas = append([]store.Idea(nil), s.Ideas...)
	return &s, nil
}

func (r *fakeRepository) Add(ctx context.Context, session *store.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	session.ID = r.nextID
	r.sessions[session.ID] = *session
	return nil
}

func (r *fakeRepository) Update(ctx context.Context, session *store.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return store.ErrSessionNotFound
	}
	for i := range session.Ideas {
		if session.Ideas[i].ID == 0 {
			r.nextIdea++
			session.Ideas[i].ID = r.nextIdea
		}
	}
	r.sessions[session.ID] = *session
	return nil
}

func testSessions() []store.Session {
	return []store.Session{
		{ID: 1, Name: "Test One", DateCreated: time.Date(2016, 7, 2, 0, 0, 0, 0, time.UTC)},
		{ID: 2, Name: "Test Two", DateCreated: time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC)},
	}
}

// newTestRouter returns a router over the test sessions whose loggers
// write to the returned sink plus any extra sinks
func newTestRouter(t *testing.T, opts Options, extra ...core.Sink) (*gin.Engine, *recordingSink, *fakeRepository) {
	t.Helper()
	sink := &recordingSink{}
	repo := newFakeRepository(testSessions()...)

	opts.Mode = gin.TestMode
	opts.Loggers = &testLoggers{sinks: append([]core.Sink{sink}, extra...)}
	if opts.Repository == nil {
		opts.Repository = repo
	}

	router, err := NewRouter(opts)
	require.NoError(t, err)
	return router, sink, repo
}
