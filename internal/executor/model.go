package executor

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects how an executor schedules units onto goroutines.
type Kind int

const (
	KindBounded Kind = iota + 1
	KindUnbounded
)

// DefaultPoolSize is the reference worker count for the bounded model.
const DefaultPoolSize = 200

const (
	LabelBounded   = "Platform Threads"
	LabelUnbounded = "Virtual Threads"
)

var (
	ErrInvalidModel    = errors.New("invalid concurrency model")
	ErrInvalidPoolSize = errors.New("pool size must be >= 1")
)

// Model is the concurrency strategy of one run. PoolSize is only meaningful for KindBounded.
type Model struct {
	Kind     Kind
	PoolSize int
}

// Bounded returns a fixed-size worker pool model.
func Bounded(poolSize int) Model {
	return Model{Kind: KindBounded, PoolSize: poolSize}
}

// Unbounded returns a goroutine-per-unit model.
func Unbounded() Model {
	return Model{Kind: KindUnbounded}
}

// Label is the human-readable thread type reported in results.
func (m Model) Label() string {
	switch m.Kind {
	case KindBounded:
		return LabelBounded
	case KindUnbounded:
		return LabelUnbounded
	default:
		return "Unknown"
	}
}

// Name is the short CLI name of the model.
func (m Model) Name() string {
	switch m.Kind {
	case KindBounded:
		return "platform"
	case KindUnbounded:
		return "virtual"
	default:
		return "unknown"
	}
}

func (m Model) String() string {
	if m.Kind == KindBounded {
		return fmt.Sprintf("%s(pool=%d)", m.Name(), m.PoolSize)
	}
	return m.Name()
}

// Validate checks the variant is well formed.
func (m Model) Validate() error {
	switch m.Kind {
	case KindBounded:
		if m.PoolSize < 1 {
			return fmt.Errorf("%w: got %d", ErrInvalidPoolSize, m.PoolSize)
		}
		return nil
	case KindUnbounded:
		return nil
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidModel, m.Kind)
	}
}

// ParseModel maps a model name ("platform" or "virtual", as returned by Name) to a Model.
func ParseModel(name string, poolSize int) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "platform":
		return Bounded(poolSize), nil
	case "virtual":
		return Unbounded(), nil
	default:
		return Model{}, fmt.Errorf("%w: %q", ErrInvalidModel, name)
	}
}
