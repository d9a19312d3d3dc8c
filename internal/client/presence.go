package client

import (
	"log"
	"sync"
	"time"
)

// DefaultTypingTimeout is how long a "typing" signal lasts before an automatic false is sent.
const DefaultTypingTimeout = 3 * time.Second

// PresenceTracker debounces the local typing signal and holds the peer's typing flag.
type PresenceTracker struct {
	send    func(isTyping bool) error
	timeout time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	stopped    bool
	peerTyping bool
}

// NewPresenceTracker 创建输入状态跟踪器，send 负责把 typing 帧发给对端
func NewPresenceTracker(send func(isTyping bool) error, timeout time.Duration) *PresenceTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &PresenceTracker{send: send, timeout: timeout}
}

// UpdateTypingStatus sends isTyping to the peer. A true (re)arms the expiry timer so the
// automatic false fires one timeout after the last true; a false cancels it. A failed send
// leaves any armed timer alone, so a true the peer already saw is still cleared.
func (p *PresenceTracker) UpdateTypingStatus(isTyping bool) error {
	if p.isStopped() {
		return ErrClosed
	}

	if err := p.send(isTyping); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.generation++
	p.stopTimerLocked()
	if isTyping {
		gen := p.generation
		p.timer = time.AfterFunc(p.timeout, func() { p.expire(gen) })
	}
	return nil
}

func (p *PresenceTracker) expire(gen uint64) {
	p.mu.Lock()
	if p.stopped || gen != p.generation {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.mu.Unlock()

	if err := p.send(false); err != nil {
		log.Printf("[client] typing auto-clear failed: %v", err)
	}
}

// SetPeerTyping records the peer's typing flag as reported by the server.
func (p *PresenceTracker) SetPeerTyping(isTyping bool) {
	p.mu.Lock()
	p.peerTyping = isTyping
	p.mu.Unlock()
}

// PeerTyping reports whether the peer is typing.
func (p *PresenceTracker) PeerTyping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peerTyping
}

// Stop cancels the expiry timer. Later updates fail with ErrClosed.
func (p *PresenceTracker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.generation++
	p.stopTimerLocked()
}

func (p *PresenceTracker) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *PresenceTracker) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
