// Package audio abstracts the device that actually renders sound. The
// playback engine only needs to start a file, ask whether it is still
// playing, read the playhead and interrupt it.
package audio

import (
	"errors"
	"time"

	"github.com/spf13/afero"
)

var ErrStopped = errors.New("stream stopped")

// Backend starts playback of a single file.
type Backend interface {
	Play(path string) (Stream, error)
}

// Stream is one file being played.
type Stream interface {
	// Playing reports whether audio is still being rendered.
	Playing() bool
	// Position is the elapsed playhead.
	Position() time.Duration
	// Stop interrupts playback. Calling it on a finished stream is a no-op.
	Stop() error
}

// Prober returns the playable length of a file.
type Prober interface {
	Duration(path string) (time.Duration, error)
}

// FileExists reports whether path names an existing regular file.
func FileExists(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && !info.IsDir()
}
