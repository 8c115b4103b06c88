package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/joripage/exchange-core/pkg/model"
	"github.com/joripage/exchange-core/pkg/orderbook"
	"github.com/joripage/exchange-core/pkg/writebuffer"
	"go.uber.org/zap"
)

// Manager routes orders to the matcher of their pair.
type Manager struct {
	matchers sync.Map // pair string -> *Matcher
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// Register adds a matcher. A second matcher for the same pair is refused.
func (s *Manager) Register(m *Matcher) error {
	if _, loaded := s.matchers.LoadOrStore(m.Pair().String(), m); loaded {
		return fmt.Errorf("matcher for %s already registered", m.Pair())
	}
	return nil
}

func (s *Manager) Get(pair model.Pair) (*Matcher, bool) {
	v, ok := s.matchers.Load(pair.String())
	if !ok {
		return nil, false
	}
	return v.(*Matcher), true
}

func (s *Manager) Submit(ctx context.Context, order *model.Order) (int, error) {
	m, ok := s.Get(order.Pair())
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPair, order.Pair())
	}
	return m.Submit(ctx, order)
}

func (s *Manager) Cancel(ctx context.Context, pair model.Pair, id int64) error {
	m, ok := s.Get(pair)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	return m.Cancel(ctx, id)
}

// Load restores every book from the backing store.
func (s *Manager) Load(ctx context.Context, loader orderbook.OrderLoader) (int, error) {
	total := 0
	for _, m := range s.all() {
		n, err := m.Load(ctx, loader)
		total += n
		if err != nil {
			return total, err
		}
		s.logger.Info("book restored", zap.String("pair", m.Pair().String()), zap.Int("orders", n))
	}
	return total, nil
}

type runner interface {
	Run(ctx context.Context)
}

// Run drives the flush loop of every matcher's buffer until ctx is done.
// Each loop flushes one last time on its way out.
func (s *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range s.all() {
		r, ok := m.service.buffer.(runner)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}
	wg.Wait()
}

// Flush flushes every buffer now.
func (s *Manager) Flush(ctx context.Context) map[string]*writebuffer.FlushResult {
	out := make(map[string]*writebuffer.FlushResult)
	for _, m := range s.all() {
		out[m.Pair().String()] = m.Flush(ctx)
	}
	return out
}

func (s *Manager) Stats() map[string]MatcherStats {
	out := make(map[string]MatcherStats)
	for _, m := range s.all() {
		out[m.Pair().String()] = m.Stats()
	}
	return out
}

// all returns the matchers sorted by pair.
func (s *Manager) all() []*Matcher {
	var out []*Matcher
	s.matchers.Range(func(_, v any) bool {
		out = append(out, v.(*Matcher))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Pair().String() < out[j].Pair().String()
	})
	return out
}
