package startup

import "sync"

// AvailabilityLevel describes how much of the application is usable.
// Higher values are more restrictive.
type AvailabilityLevel int

const (
	// LevelFull - all components are up
	LevelFull AvailabilityLevel = iota
	// LevelDegraded - optional components are down, core features work
	LevelDegraded
	// LevelMinimal - only the bare request path works
	LevelMinimal
	// LevelUnavailable - a required component is down
	LevelUnavailable
)

func (l AvailabilityLevel) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelDegraded:
		return "degraded"
	case LevelMinimal:
		return "minimal"
	case LevelUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// AppState tracks per-component availability. The overall level is the
// most restrictive of all component levels.
type AppState struct {
	mutex      sync.RWMutex
	components map[string]AvailabilityLevel
}

// NewAppState creates an empty application state
func NewAppState() *AppState {
	return &AppState{
		components: make(map[string]AvailabilityLevel),
	}
}

// SetComponent records one component's availability level
func (s *AppState) SetComponent(name string, level AvailabilityLevel) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.components[name] = level
}

// Component returns one component's level
func (s *AppState) Component(name string) (AvailabilityLevel, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	level, ok := s.components[name]
	return level, ok
}

// Level returns the overall availability: the most restrictive
// component level, or full when nothing is registered
func (s *AppState) Level() AvailabilityLevel {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	level := LevelFull
	for _, componentLevel := range s.components {
		if componentLevel > level {
			level = componentLevel
		}
	}
	return level
}

// Components returns a copy of all component levels
func (s *AppState) Components() map[string]AvailabilityLevel {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make(map[string]AvailabilityLevel, len(s.components))
	for name, level := range s.components {
		out[name] = level
	}
	return out
}
