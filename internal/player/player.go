// Package player owns the single playback resource: a FIFO of file paths
// drained by one worker goroutine that plays them back to back.
package player

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/noahxzhu/broadcast-scheduler/internal/audio"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultIdleTimeout  = time.Second
)

type Option func(*Player)

// WithProber sets the source of per-file durations used for progress.
func WithProber(p audio.Prober) Option {
	return func(pl *Player) { pl.prober = p }
}

// WithPollInterval sets how often a playing item is checked for completion
// or interruption. It bounds Stop latency.
func WithPollInterval(d time.Duration) Option {
	return func(pl *Player) {
		if d > 0 {
			pl.poll = d
		}
	}
}

// WithIdleTimeout sets how long the worker waits on an empty queue before
// exiting. The next Enqueue starts a fresh worker.
func WithIdleTimeout(d time.Duration) Option {
	return func(pl *Player) {
		if d > 0 {
			pl.idle = d
		}
	}
}

type Player struct {
	backend audio.Backend
	prober  audio.Prober
	fs      afero.Fs
	log     zerolog.Logger
	poll    time.Duration
	idle    time.Duration

	mu       sync.Mutex
	queue    []string
	running  bool
	closed   bool
	playing  bool
	current  string
	duration time.Duration
	stream   audio.Stream
	// gen is bumped by Stop; an item started under an older generation has
	// been interrupted.
	gen uint64

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	hooksMu sync.RWMutex
	onStart []func(path string)
	onEnd   []func()
}

func New(backend audio.Backend, fs afero.Fs, logger zerolog.Logger, opts ...Option) *Player {
	p := &Player{
		backend: backend,
		fs:      fs,
		log:     logger.With().Str("component", "player").Logger(),
		poll:    DefaultPollInterval,
		idle:    DefaultIdleTimeout,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnStart registers fn to be called, on the worker goroutine, when an item
// begins playing.
func (p *Player) OnStart(fn func(path string)) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.onStart = append(p.onStart, fn)
}

// OnEnd registers fn to be called, on the worker goroutine, when an item
// finishes, fails or is stopped. Playback state is already cleared when fn
// runs, so IsPlaying and QueueSize describe what is left.
func (p *Player) OnEnd(fn func()) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.onEnd = append(p.onEnd, fn)
}

// Enqueue appends the existing paths to the queue and returns how many were
// accepted. Missing paths are skipped.
func (p *Player) Enqueue(paths []string) int {
	accepted := make([]string, 0, len(paths))
	for _, path := range paths {
		if !audio.FileExists(p.fs, path) {
			p.log.Warn().Str("file", path).Msg("file does not exist, skipping")
			continue
		}
		accepted = append(accepted, path)
	}
	if len(accepted) == 0 {
		return 0
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	p.queue = append(p.queue, accepted...)
	depth := len(p.queue)
	if !p.running {
		p.running = true
		p.wg.Add(1)
		go p.worker()
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	p.log.Debug().Int("added", len(accepted)).Int("queue", depth).Msg("files enqueued")
	return len(accepted)
}

// PlayImmediately is Enqueue for ad-hoc playback. It does not touch any
// pending trigger bookkeeping kept by callers.
func (p *Player) PlayImmediately(paths []string) int {
	return p.Enqueue(paths)
}

// Stop interrupts the current item and drops everything queued. The worker
// notices within one poll interval; a following Enqueue works normally.
func (p *Player) Stop() {
	p.mu.Lock()
	dropped := len(p.queue)
	p.queue = nil
	p.gen++
	s := p.stream
	p.stream = nil
	p.playing = false
	p.current = ""
	p.duration = 0
	p.mu.Unlock()

	if s != nil {
		if err := s.Stop(); err != nil {
			p.log.Warn().Err(err).Msg("failed to stop stream")
		}
	}
	p.log.Info().Int("dropped", dropped).Msg("playback stopped")
}

// Close stops playback and waits for the worker to exit. The player cannot
// be used afterwards.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.Stop()
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Player) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) CurrentFile() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Status is a one-line description for status displays.
func (p *Player) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.playing:
		return "playing: " + filepath.Base(p.current)
	case len(p.queue) > 0:
		return fmt.Sprintf("queued: %d files", len(p.queue))
	default:
		return "idle"
	}
}

// Position is the elapsed time of the current item. ok is false when idle.
func (p *Player) Position() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.stream == nil {
		return 0, false
	}
	return p.stream.Position(), true
}

// Progress is the completed fraction of the current item. ok is false when
// idle or when the item's duration is unknown.
func (p *Player) Progress() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.stream == nil || p.duration <= 0 {
		return 0, false
	}
	f := float64(p.stream.Position()) / float64(p.duration)
	if f > 1 {
		f = 1
	}
	return f, true
}

// Duration is the known length of the current item.
func (p *Player) Duration() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing || p.duration <= 0 {
		return 0, false
	}
	return p.duration, true
}
