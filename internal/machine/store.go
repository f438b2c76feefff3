package machine

import (
	"sync"

	"go.uber.org/zap"
)

const transitionBufferSize = 16

// Snapshot is a consistent (state, settings) pair.
type Snapshot struct {
	State    MachineState `json:"state"`
	Settings Settings     `json:"settings"`
}

// Store holds the latest controller state and settings.
// Both are replaced wholesale; readers always see complete values.
type Store struct {
	logger *zap.Logger

	mu       sync.RWMutex
	state    MachineState
	settings Settings

	listenersMu sync.RWMutex
	listeners   []chan Transition
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{
		logger:   logger,
		settings: Settings{},
	}
}

// UpdateState replaces the machine state and reports a transition when the active state changed.
func (s *Store) UpdateState(next MachineState) {
	next = next.Clone()

	s.mu.Lock()
	previous := s.state.ActiveState
	s.state = next
	s.mu.Unlock()

	if previous != next.ActiveState {
		s.logger.Info("Machine state changed",
			zap.String("from", previous.String()),
			zap.String("to", next.ActiveState.String()))

		s.broadcast(Transition{From: previous, To: next.ActiveState})
	}
}

// UpdateSettings replaces the settings map.
func (s *Store) UpdateSettings(next Settings) {
	copied := make(Settings, len(next))
	for k, v := range next {
		copied[k] = v
	}

	s.mu.Lock()
	s.settings = copied
	s.mu.Unlock()

	s.logger.Debug("Controller settings updated", zap.Int("count", len(copied)))
}

// Snapshot returns the current state and settings as one consistent pair.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		State:    s.state.Clone(),
		Settings: s.settings,
	}
}

// Subscribe returns a channel receiving state transitions.
// Slow subscribers miss transitions instead of blocking updates.
func (s *Store) Subscribe() <-chan Transition {
	ch := make(chan Transition, transitionBufferSize)

	s.listenersMu.Lock()
	s.listeners = append(s.listeners, ch)
	s.listenersMu.Unlock()

	return ch
}

// Unsubscribe removes and closes a subscription.
func (s *Store) Unsubscribe(ch <-chan Transition) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for i, listener := range s.listeners {
		if listener == ch {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			close(listener)
			break
		}
	}
}

func (s *Store) broadcast(t Transition) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()

	for _, listener := range s.listeners {
		select {
		case listener <- t:
		default:
			// Channel full, skip
		}
	}
}
