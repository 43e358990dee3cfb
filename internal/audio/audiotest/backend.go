// Package audiotest provides an in-memory audio backend whose streams play
// until the test finishes them.
package audiotest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noahxzhu/broadcast-scheduler/internal/audio"
)

var ErrUnplayable = errors.New("unplayable file")

type Backend struct {
	mu      sync.Mutex
	streams []*Stream
	fail    map[string]bool
	auto    time.Duration
}

func NewBackend() *Backend {
	return &Backend{fail: make(map[string]bool)}
}

// Fail makes every Play of path return ErrUnplayable.
func (b *Backend) Fail(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[path] = true
}

// AutoFinish makes new streams end on their own after d.
func (b *Backend) AutoFinish(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.auto = d
}

func (b *Backend) Play(path string) (audio.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail[path] {
		return nil, fmt.Errorf("%w: %s", ErrUnplayable, path)
	}
	s := &Stream{Path: path, playing: true}
	b.streams = append(b.streams, s)
	if b.auto > 0 {
		time.AfterFunc(b.auto, s.Finish)
	}
	return s, nil
}

// Played lists every path handed to Play, in order.
func (b *Backend) Played() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.streams))
	for _, s := range b.streams {
		out = append(out, s.Path)
	}
	return out
}

// Last returns the most recent stream, or nil.
func (b *Backend) Last() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

// FinishCurrent ends the most recent stream and returns its path.
func (b *Backend) FinishCurrent() string {
	s := b.Last()
	if s == nil {
		return ""
	}
	s.Finish()
	return s.Path
}

type Stream struct {
	Path string

	mu      sync.Mutex
	playing bool
	stopped bool
	pos     time.Duration
}

func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

// Seek moves the reported playhead.
func (s *Stream) Seek(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = d
}

func (s *Stream) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *Stream) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.stopped = true
	return nil
}

func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Prober returns fixed durations per path.
type Prober map[string]time.Duration

func (p Prober) Duration(path string) (time.Duration, error) {
	d, ok := p[path]
	if !ok {
		return 0, fmt.Errorf("no duration for %s", path)
	}
	return d, nil
}
