package player

import (
	"fmt"
	"time"

	"github.com/noahxzhu/broadcast-scheduler/internal/audio"
)

func (p *Player) worker() {
	defer p.wg.Done()
	p.log.Debug().Msg("playback worker started")

	timer := time.NewTimer(p.idle)
	defer timer.Stop()

	for {
		if path, gen, ok := p.next(); ok {
			p.playItem(path, gen)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.idle)

		select {
		case <-p.done:
			p.exit()
			return
		case <-p.wake:
		case <-timer.C:
			p.mu.Lock()
			if len(p.queue) == 0 {
				p.running = false
				p.mu.Unlock()
				p.log.Debug().Msg("playback worker idle, exiting")
				return
			}
			p.mu.Unlock()
		}
	}
}

func (p *Player) exit() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.log.Debug().Msg("playback worker stopped")
}

// next pops the head of the queue and marks it as the current item.
func (p *Player) next() (string, uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 || p.closed {
		return "", 0, false
	}
	path := p.queue[0]
	p.queue[0] = ""
	p.queue = p.queue[1:]
	p.playing = true
	p.current = path
	p.duration = 0
	p.stream = nil
	return path, p.gen, true
}

func (p *Player) stale(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen != gen || p.closed
}

// playItem plays one file to completion or interruption. Whatever happens,
// the end hooks run exactly once and the worker moves on.
func (p *Player) playItem(path string, gen uint64) {
	log := p.log.With().Str("file", path).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("playback panicked")
		}
		p.finishItem(gen)
	}()

	if p.stale(gen) {
		log.Debug().Msg("item interrupted before start")
		return
	}

	p.emitStart(path)

	if p.prober != nil {
		if d, err := p.prober.Duration(path); err != nil {
			log.Debug().Err(err).Msg("duration unknown")
		} else {
			p.mu.Lock()
			if p.gen == gen {
				p.duration = d
			}
			p.mu.Unlock()
		}
	}

	stream, err := p.backend.Play(path)
	if err != nil {
		log.Error().Err(err).Msg("playback failed")
		return
	}

	p.mu.Lock()
	if p.gen != gen || p.closed {
		p.mu.Unlock()
		_ = stream.Stop()
		log.Info().Msg("playback interrupted")
		return
	}
	p.stream = stream
	p.mu.Unlock()

	log.Info().Msg("playback started")
	if err := p.wait(stream, gen); err != nil {
		log.Info().Err(err).Msg("playback interrupted")
		return
	}
	log.Info().Msg("playback finished")
}

// wait polls stream until it ends on its own or the item is interrupted.
func (p *Player) wait(stream audio.Stream, gen uint64) error {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for stream.Playing() {
		select {
		case <-p.done:
			_ = stream.Stop()
			return fmt.Errorf("player closed: %w", audio.ErrStopped)
		case <-ticker.C:
		}
		if p.stale(gen) {
			_ = stream.Stop()
			return audio.ErrStopped
		}
	}
	if p.stale(gen) {
		return audio.ErrStopped
	}
	return nil
}

func (p *Player) finishItem(gen uint64) {
	p.mu.Lock()
	if p.gen == gen {
		p.playing = false
		p.current = ""
		p.duration = 0
		p.stream = nil
	}
	p.mu.Unlock()
	p.emitEnd()
}

func (p *Player) emitStart(path string) {
	p.hooksMu.RLock()
	hooks := append([]func(string){}, p.onStart...)
	p.hooksMu.RUnlock()
	for _, fn := range hooks {
		p.safeCall("start", func() { fn(path) })
	}
}

func (p *Player) emitEnd() {
	p.hooksMu.RLock()
	hooks := append([]func(){}, p.onEnd...)
	p.hooksMu.RUnlock()
	for _, fn := range hooks {
		p.safeCall("end", fn)
	}
}

// safeCall keeps a misbehaving hook from taking the worker down.
func (p *Player) safeCall(hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("hook", hook).Msg("playback hook panicked")
		}
	}()
	fn()
}
