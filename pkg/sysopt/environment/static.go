package environment

import (
	"context"
	"sort"
	"sync"
)

// Static is a fixed environment for dry runs and tests.
type Static struct {
	Facts     Facts
	DetectErr error

	// Processes is the process table. Zombie marks entries by PID.
	Processes []Process
	Zombie    map[int32]bool
	ProcErr   error

	Available float64
	MemErr    error

	mu      sync.Mutex
	lookups []string
}

// Detect returns the configured facts.
func (s *Static) Detect(context.Context) (Facts, error) {
	return s.Facts, s.DetectErr
}

// FindByName returns configured processes with a matching name.
func (s *Static) FindByName(_ context.Context, name string) ([]Process, error) {
	s.mu.Lock()
	s.lookups = append(s.lookups, name)
	s.mu.Unlock()

	if s.ProcErr != nil {
		return nil, s.ProcErr
	}
	var out []Process
	for _, p := range s.Processes {
		if p.Name == name {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// Zombies returns configured processes flagged in Zombie.
func (s *Static) Zombies(context.Context) ([]Process, error) {
	if s.ProcErr != nil {
		return nil, s.ProcErr
	}
	var out []Process
	for _, p := range s.Processes {
		if s.Zombie[p.PID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// AvailablePercent returns the configured availability.
func (s *Static) AvailablePercent(context.Context) (float64, error) {
	return s.Available, s.MemErr
}

// Lookups returns the process names queried through FindByName.
func (s *Static) Lookups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lookups...)
}
