package queue

import (
	"context"
	"sync"
)

// Memory is an in-process Queue. Units do not survive a restart.
type Memory struct {
	mu     sync.Mutex
	units  []Unit
	dead   []DeadUnit
	notify chan struct{}
}

var _ Queue = (*Memory)(nil)

// NewMemory creates an empty in-process queue.
func NewMemory() *Memory {
	return &Memory{notify: make(chan struct{}, 1)}
}

func (m *Memory) push(units []Unit) error {
	for _, u := range units {
		if err := u.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.units = append(m.units, units...)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	ObserveEnqueued(units)
	return nil
}

// Enqueue appends units.
func (m *Memory) Enqueue(_ context.Context, units ...Unit) error { return m.push(units) }

// SubmitGeneration appends all generation units under one lock.
func (m *Memory) SubmitGeneration(_ context.Context, gen Generation) error {
	return m.push(gen.Units())
}

// Pop returns the head unit, waiting until one arrives or ctx is done.
func (m *Memory) Pop(ctx context.Context) (Unit, error) {
	for {
		m.mu.Lock()
		if len(m.units) > 0 {
			u := m.units[0]
			m.units = m.units[1:]
			more := len(m.units) > 0
			m.mu.Unlock()
			if more {
				select {
				case m.notify <- struct{}{}:
				default:
				}
			}
			return u, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Unit{}, ctx.Err()
		case <-m.notify:
		}
	}
}

// Ack is a no-op: a popped unit is already gone.
func (m *Memory) Ack(context.Context, Unit) error { return nil }

// DeadLetter keeps u in memory for inspection.
func (m *Memory) DeadLetter(_ context.Context, u Unit, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = append(m.dead, NewDeadUnit(u, cause))
	return nil
}

// Dead returns the parked units.
func (m *Memory) Dead() []DeadUnit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadUnit(nil), m.dead...)
}

// Len returns the number of waiting units.
func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.units), nil
}
