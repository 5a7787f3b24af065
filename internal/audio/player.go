package audio

import (
	"log/slog"
	"sync"
)

// Player tracks looped-playback state for the firing alarm. Actual sound
// output is a platform concern; this implementation logs transitions and
// guarantees PlayLoop/Stop are idempotent, which Dismiss and teardown rely
// on.
type Player struct {
	mu      sync.Mutex
	playing bool
	source  string
	logger  *slog.Logger
}

func NewPlayer(logger *slog.Logger) *Player {
	return &Player{logger: logger}
}

func (p *Player) PlayLoop(source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing && p.source == source {
		return
	}
	p.playing = true
	p.source = source
	if p.logger != nil {
		p.logger.Info("audio loop started", "source", source)
	}
}

func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.playing = false
	if p.logger != nil {
		p.logger.Info("audio stopped", "source", p.source)
	}
	p.source = ""
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
