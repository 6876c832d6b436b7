package strategy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	regMu    sync.Mutex
	registry = make(map[string]Factory)
)

// Register makes a strategy available under name. Later registrations
// replace earlier ones.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[normalize(name)] = f
}

// New builds the named strategy. Unknown names are an error so config
// typos fail fast.
func New(name string, params []PairParams, log zerolog.Logger) (SignalSource, error) {
	regMu.Lock()
	f, ok := registry[normalize(name)]
	regMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return f(params, log), nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultStrategy is used when the config names none.
const DefaultStrategy = "pairs-mean-reversion"

func init() {
	Register(DefaultStrategy, func(params []PairParams, log zerolog.Logger) SignalSource {
		return NewEngine(params, log)
	})
}
