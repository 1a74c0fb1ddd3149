package coordinator

import (
	"fmt"

	"github.com/dyluth/copse/pkg/blackboard"
)

// New creates a coordinator of the given kind.
func New(kind blackboard.Kind, cfg Config, store blackboard.Store, d Dispatcher, opts ...Option) (Coordinator, error) {
	switch kind {
	case blackboard.KindParallel:
		p, err := NewParallel(cfg, store, d, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case blackboard.KindSequence:
		s, err := NewSequence(cfg, store, d, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case blackboard.KindRepeat:
		r, err := NewRepeat(cfg, store, d, opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown coordinator kind: %q", kind)
	}
}
