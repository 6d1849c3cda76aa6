package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cuongbtq/beanstalk-bridge/shared/beanstalkd"
)

// fakeTube is an in-memory tube shared by every session dialed from it. It
// follows beanstalkd semantics closely enough for the batch and acknowledgment
// logic: reservations belong to a session and return to ready when that
// session closes.
type fakeTube struct {
	nextID   uint64
	bodies   map[uint64][]byte
	ready    []uint64
	reserved map[uint64]*fakeSession
	delays   map[uint64]time.Duration
	put      [][]byte

	sessions  []*fakeSession
	dialErr   error
	putErr    error
	deleteErr map[uint64]error
}

func newFakeTube(bodies ...string) *fakeTube {
	t := &fakeTube{
		bodies:    make(map[uint64][]byte),
		reserved:  make(map[uint64]*fakeSession),
		delays:    make(map[uint64]time.Duration),
		deleteErr: make(map[uint64]error),
	}
	for _, b := range bodies {
		t.add(b)
	}
	return t
}

func (t *fakeTube) add(body string) uint64 {
	t.nextID++
	t.bodies[t.nextID] = []byte(body)
	t.ready = append(t.ready, t.nextID)
	return t.nextID
}

func (t *fakeTube) exists(id uint64) bool {
	_, ok := t.bodies[id]
	return ok
}

func (t *fakeTube) dialer() Dialer {
	return func(ctx context.Context, cfg Config) (Session, error) {
		if t.dialErr != nil {
			return nil, t.dialErr
		}
		s := &fakeSession{tube: t}
		t.sessions = append(t.sessions, s)
		return s, nil
	}
}

type fakeSession struct {
	tube     *fakeTube
	used     string
	watched  []string
	closes   int
	reserves int
	timeouts int
	calls    []string
}

func (s *fakeSession) Use(tube string) error {
	s.used = tube
	return nil
}

func (s *fakeSession) Watch(tube string) error {
	s.watched = append(s.watched, tube)
	return nil
}

func (s *fakeSession) Reserve(timeout time.Duration) (*beanstalkd.Job, error) {
	s.reserves++
	if len(s.tube.ready) == 0 {
		s.timeouts++
		return nil, nil
	}
	id := s.tube.ready[0]
	s.tube.ready = s.tube.ready[1:]
	s.tube.reserved[id] = s
	return &beanstalkd.Job{ID: id, Body: s.tube.bodies[id]}, nil
}

func (s *fakeSession) Peek(id uint64) (*beanstalkd.Job, error) {
	s.calls = append(s.calls, fmt.Sprintf("peek %d", id))
	body, ok := s.tube.bodies[id]
	if !ok {
		return nil, ErrJobGone
	}
	return &beanstalkd.Job{ID: id, Body: body}, nil
}

func (s *fakeSession) Delete(id uint64) error {
	s.calls = append(s.calls, fmt.Sprintf("delete %d", id))
	if err := s.tube.deleteErr[id]; err != nil {
		return err
	}
	if !s.tube.exists(id) {
		return ErrJobGone
	}
	if owner, ok := s.tube.reserved[id]; ok && owner != s {
		return ErrJobGone
	}
	delete(s.tube.bodies, id)
	delete(s.tube.reserved, id)
	for i, r := range s.tube.ready {
		if r == id {
			s.tube.ready = append(s.tube.ready[:i], s.tube.ready[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeSession) Release(id uint64, delay time.Duration) error {
	s.calls = append(s.calls, fmt.Sprintf("release %d %s", id, delay))
	if owner, ok := s.tube.reserved[id]; !ok || owner != s {
		return ErrJobGone
	}
	delete(s.tube.reserved, id)
	s.tube.delays[id] = delay
	s.tube.ready = append(s.tube.ready, id)
	return nil
}

func (s *fakeSession) Put(body []byte) (uint64, error) {
	s.calls = append(s.calls, "put")
	if s.tube.putErr != nil {
		return 0, s.tube.putErr
	}
	s.tube.put = append(s.tube.put, body)
	return s.tube.add(string(body)), nil
}

func (s *fakeSession) Close() error {
	s.closes++
	for id, owner := range s.tube.reserved {
		if owner == s {
			delete(s.tube.reserved, id)
			s.tube.ready = append(s.tube.ready, id)
		}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bufferLogger writes JSON records of every level into buf
func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testConfig(chunkSize int) Config {
	return Config{
		Host:      "localhost",
		Port:      11300,
		Tube:      "jobs",
		ChunkSize: chunkSize,
		Timeout:   time.Second,
		Delay:     3600 * time.Second,
	}
}
