package gateway

import "sync"

// sessionState is the one resource shared between the connect/disconnect
// lifecycle and concurrently completing quote handlers. The generation
// counter keeps a response computed for an ended session from leaking into
// a later one.
type sessionState struct {
	mu         sync.Mutex
	connecting bool
	connected  bool
	gen        uint64
	stop       chan struct{}
}

func (s *sessionState) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connecting || s.connected {
		return ErrAlreadyConnected
	}
	s.connecting = true
	return nil
}

func (s *sessionState) fail() {
	s.mu.Lock()
	s.connecting = false
	s.mu.Unlock()
}

func (s *sessionState) established() (gen uint64, stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connecting, s.connected = false, true
	s.gen++
	s.stop = make(chan struct{})
	return s.gen, s.stop
}

func (s *sessionState) disconnect() (stop chan struct{}, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, false
	}
	s.connected = false
	stop, s.stop = s.stop, nil
	return stop, true
}

func (s *sessionState) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *sessionState) sendable(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && s.gen == gen
}
