package audio

import (
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ProcessBackend plays each file with an external command line player such
// as ffplay, one process per file.
type ProcessBackend struct {
	Command string
	Args    []string
	Logger  zerolog.Logger
}

func NewProcessBackend(command string, args []string, logger zerolog.Logger) *ProcessBackend {
	return &ProcessBackend{
		Command: command,
		Args:    args,
		Logger:  logger.With().Str("component", "audio").Logger(),
	}
}

func (b *ProcessBackend) Play(path string) (Stream, error) {
	args := append(append([]string(nil), b.Args...), path)
	cmd := exec.Command(b.Command, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", b.Command, err)
	}

	s := &processStream{cmd: cmd, started: time.Now()}
	go func() {
		err := cmd.Wait()
		s.finish(err)
		if err != nil && !s.stopped.Load() {
			b.Logger.Warn().Err(err).Str("file", path).Msg("player process exited with error")
		}
	}()
	return s, nil
}

type processStream struct {
	cmd     *exec.Cmd
	started time.Time
	done    atomic.Bool
	stopped atomic.Bool

	mu    sync.Mutex
	ended time.Time
}

func (s *processStream) finish(error) {
	s.mu.Lock()
	s.ended = time.Now()
	s.mu.Unlock()
	s.done.Store(true)
}

func (s *processStream) Playing() bool {
	return !s.done.Load()
}

// Position is wall time since the process started; external players do not
// expose their playhead.
func (s *processStream) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended.IsZero() {
		return s.ended.Sub(s.started)
	}
	return time.Since(s.started)
}

func (s *processStream) Stop() error {
	if s.done.Load() {
		return nil
	}
	s.stopped.Store(true)
	if err := s.cmd.Process.Kill(); err != nil && !s.done.Load() {
		return fmt.Errorf("kill player: %w", err)
	}
	return nil
}
