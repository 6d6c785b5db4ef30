package sandbox

import (
	"math/rand"
	"sync"
)

// shapeRotation varies the envelope a list response ships in. Production
// MoviesNow sits behind gateways that each re-wrap collections their own
// way, and the client is built to tolerate all of them; rotating shapes
// here keeps that tolerance honest during local development. A fixed
// seed makes a run reproducible.
type shapeRotation struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newShapeRotation(seed int64) *shapeRotation {
	if seed == 0 {
		seed = 1
	}
	return &shapeRotation{rng: rand.New(rand.NewSource(seed))}
}

// wrap packages items under a randomly chosen envelope. The named key is
// the resource-specific one ("sessions", "notifications", ...); the
// metadata, when present, lands at whichever level the chosen shape
// puts it.
func (sr *shapeRotation) wrap(key string, items any, total int) any {
	sr.mu.Lock()
	pick := sr.rng.Intn(4)
	sr.mu.Unlock()

	switch pick {
	case 0:
		return items // bare array
	case 1:
		return map[string]any{key: items, "total": total}
	case 2:
		return map[string]any{
			"items": items,
			"meta":  map[string]any{"total_count": total},
		}
	default:
		return map[string]any{
			"data": map[string]any{key: items, "total": total},
		}
	}
}

// wrapOne packages a single resource: bare, or under "data", or under
// the resource key.
func (sr *shapeRotation) wrapOne(key string, item any) any {
	sr.mu.Lock()
	pick := sr.rng.Intn(3)
	sr.mu.Unlock()

	switch pick {
	case 0:
		return item
	case 1:
		return map[string]any{"data": item}
	default:
		return map[string]any{key: item}
	}
}
