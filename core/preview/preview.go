package preview

import (
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"sync"

	"github.com/pkg/errors"

	"github.com/heluDuyne/lingolab/core"
	"github.com/heluDuyne/lingolab/core/transcode"
)

var ErrNothingToPlay = errors.New("no artifact to preview")

// Preview holds at most one playable temp file. Replacing the artifact or
// releasing the preview removes the previous file.
type Preview struct {
	player string
	dir    string
	logger core.Logger

	mu   sync.Mutex
	path string
	cmd  *exec.Cmd
}

// New returns a preview that plays files with the ffplay binary at player.
// Temp files are created in dir, or the system temp dir when empty.
func New(player, dir string, logger core.Logger) *Preview {
	return &Preview{player: player, dir: dir, logger: logger}
}

// Path returns the current preview file, if any.
func (p *Preview) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// Replace writes art to a new temp file and releases the previous one.
func (p *Preview) Replace(art transcode.Artifact) (string, error) {
	if len(art.Data) == 0 {
		return "", ErrNothingToPlay
	}
	f, err := ioutil.TempFile(p.dir, "lingolab-preview-*.mp3")
	if err != nil {
		return "", errors.Wrap(err, "creating preview file")
	}
	if _, err = f.Write(art.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "writing preview file")
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "writing preview file")
	}

	p.mu.Lock()
	prev := p.path
	p.path = f.Name()
	p.stopLocked()
	p.mu.Unlock()

	p.remove(prev)
	return f.Name(), nil
}

// Release stops playback and deletes the preview file. It is safe to call more than once.
func (p *Preview) Release() {
	p.mu.Lock()
	prev := p.path
	p.path = ""
	p.stopLocked()
	p.mu.Unlock()

	p.remove(prev)
}

// Play plays the current file and blocks until playback ends or ctx is done.
func (p *Preview) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.path == "" {
		p.mu.Unlock()
		return ErrNothingToPlay
	}
	p.stopLocked()
	cmd := exec.CommandContext(ctx, p.player, "-nodisp", "-autoexit", "-loglevel", "error", p.path)
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return errors.Wrapf(err, "starting %s", p.player)
	}
	p.cmd = cmd
	p.mu.Unlock()

	err := cmd.Wait()

	p.mu.Lock()
	stopped := p.cmd != cmd
	if !stopped {
		p.cmd = nil
	}
	p.mu.Unlock()

	if stopped || ctx.Err() != nil {
		return nil
	}
	return errors.Wrap(err, "playing preview")
}

// Stop interrupts playback, keeping the file.
func (p *Preview) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Preview) stopLocked() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
}

func (p *Preview) remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("could not remove preview file", err, map[string]interface{}{"path": path})
	}
}
