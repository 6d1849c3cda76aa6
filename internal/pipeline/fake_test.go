package pipeline

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cuongbtq/beanstalk-bridge/internal/config"
	"github.com/cuongbtq/beanstalk-bridge/internal/history"
	"github.com/cuongbtq/beanstalk-bridge/internal/queue"
	"github.com/cuongbtq/beanstalk-bridge/shared/beanstalkd"
)

type memJob struct {
	tube     string
	body     string
	owner    *memSession
	released time.Duration
}

// memServer is an in-memory beanstalkd with several tubes
type memServer struct {
	mu       sync.Mutex
	nextID   uint64
	jobs     map[uint64]*memJob
	ready    map[string][]uint64
	sessions int
	closed   int
	down     bool
}

func newMemServer() *memServer {
	return &memServer{
		jobs:  make(map[uint64]*memJob),
		ready: make(map[string][]uint64),
	}
}

func (s *memServer) add(tube string, bodies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bodies {
		s.putLocked(tube, b)
	}
}

func (s *memServer) putLocked(tube, body string) uint64 {
	s.nextID++
	s.jobs[s.nextID] = &memJob{tube: tube, body: body}
	s.ready[tube] = append(s.ready[tube], s.nextID)
	return s.nextID
}

// bodies returns the payloads of every job left in the tube
func (s *memServer) bodies(tube string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uint64
	for id, j := range s.jobs {
		if j.tube == tube {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.jobs[id].body)
	}
	return out
}

func (s *memServer) dialer() queue.Dialer {
	return func(ctx context.Context, cfg queue.Config) (queue.Session, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.down {
			return nil, queue.ErrConnection
		}
		s.sessions++
		return &memSession{server: s}, nil
	}
}

type memSession struct {
	server  *memServer
	used    string
	watched string
}

func (m *memSession) Use(tube string) error {
	m.used = tube
	return nil
}

func (m *memSession) Watch(tube string) error {
	m.watched = tube
	return nil
}

func (m *memSession) Reserve(timeout time.Duration) (*beanstalkd.Job, error) {
	s := m.server
	s.mu.Lock()
	defer s.mu.Unlock()

	ready := s.ready[m.watched]
	if len(ready) == 0 {
		return nil, nil
	}
	id := ready[0]
	s.ready[m.watched] = ready[1:]
	s.jobs[id].owner = m
	return &beanstalkd.Job{ID: id, Body: []byte(s.jobs[id].body)}, nil
}

func (m *memSession) Peek(id uint64) (*beanstalkd.Job, error) {
	s := m.server
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, queue.ErrJobGone
	}
	return &beanstalkd.Job{ID: id, Body: []byte(j.body)}, nil
}

func (m *memSession) Delete(id uint64) error {
	s := m.server
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || (j.owner != nil && j.owner != m) {
		return queue.ErrJobGone
	}
	delete(s.jobs, id)
	s.ready[j.tube] = slices.DeleteFunc(s.ready[j.tube], func(r uint64) bool { return r == id })
	return nil
}

func (m *memSession) Release(id uint64, delay time.Duration) error {
	s := m.server
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.owner != m {
		return queue.ErrJobGone
	}
	j.owner = nil
	j.released = delay
	s.ready[j.tube] = append(s.ready[j.tube], id)
	return nil
}

func (m *memSession) Put(body []byte) (uint64, error) {
	s := m.server
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(m.used, string(body)), nil
}

func (m *memSession) Close() error {
	s := m.server
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed++
	for id, j := range s.jobs {
		if j.owner == m {
			j.owner = nil
			s.ready[j.tube] = append(s.ready[j.tube], id)
		}
	}
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (p *fakePublisher) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, string(body))
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	created []history.Run
	started []history.Run
	ended   []history.Run
	err     error
}

func (r *fakeRecorder) CreateRun(ctx context.Context, run *history.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.created = append(r.created, *run)
	return nil
}

func (r *fakeRecorder) StartRun(ctx context.Context, run *history.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, *run)
	return nil
}

func (r *fakeRecorder) FinishRun(ctx context.Context, run *history.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, *run)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func plugin(tube string) config.BeanstalkdPlugin {
	return config.BeanstalkdPlugin{
		Enabled:   true,
		Host:      "localhost",
		Port:      11300,
		Tube:      tube,
		ChunkSize: 30,
		Timeout:   1,
		Delay:     3600,
	}
}
