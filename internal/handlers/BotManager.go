package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"SpotTradeBot/internal/models"
)

// RunnerFactory builds the runner for a symbol the first time it is started.
type RunnerFactory func(symbol string) (*SymbolRunner, error)

// BotManager starts and stops symbol runners on demand. A runner and its
// position manager outlive a stop, so restarting a symbol resumes any
// position it still holds.
type BotManager struct {
	parent  context.Context
	factory RunnerFactory
	log     zerolog.Logger

	mu      sync.RWMutex
	runners map[string]*SymbolRunner
	active  map[string]*activeRunner
	// last is the most recent launch per symbol, running or unwinding.
	last map[string]*activeRunner
	wg   sync.WaitGroup
}

type activeRunner struct {
	cancel  context.CancelFunc
	started time.Time
	done    chan struct{}
	// prev must finish before this launch may run a cycle.
	prev *activeRunner
}

type StartResult struct {
	Started        []string          `json:"started"`
	AlreadyRunning []string          `json:"already_running,omitempty"`
	Failed         map[string]string `json:"failed,omitempty"`
}

type SymbolStatus struct {
	Symbol   string           `json:"symbol"`
	Running  bool             `json:"running"`
	Since    *time.Time       `json:"since,omitempty"`
	Position *models.Position `json:"position,omitempty"`
}

type Status struct {
	Active  []string       `json:"active"`
	Symbols []SymbolStatus `json:"symbols"`
}

// NewBotManager ties every runner to parent; cancelling it stops them all.
func NewBotManager(parent context.Context, factory RunnerFactory, log zerolog.Logger) *BotManager {
	return &BotManager{
		parent:  parent,
		factory: factory,
		log:     log.With().Str("component", "bot_manager").Logger(),
		runners: make(map[string]*SymbolRunner),
		active:  make(map[string]*activeRunner),
		last:    make(map[string]*activeRunner),
	}
}

// Start launches a runner per symbol that is not already running.
func (h *BotManager) Start(symbols ...string) StartResult {
	res := StartResult{Started: []string{}}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, symbol := range symbols {
		if symbol == "" {
			continue
		}
		if _, ok := h.active[symbol]; ok {
			res.AlreadyRunning = append(res.AlreadyRunning, symbol)
			continue
		}

		runner, ok := h.runners[symbol]
		if !ok {
			var err error
			runner, err = h.factory(symbol)
			if err != nil {
				if res.Failed == nil {
					res.Failed = make(map[string]string)
				}
				res.Failed[symbol] = err.Error()
				h.log.Error().Err(err).Str("symbol", symbol).Msg("runner creation failed")
				continue
			}
			h.runners[symbol] = runner
		}

		ctx, cancel := context.WithCancel(h.parent)
		ar := &activeRunner{cancel: cancel, started: time.Now(), done: make(chan struct{}), prev: h.last[symbol]}
		h.active[symbol] = ar
		h.last[symbol] = ar
		res.Started = append(res.Started, symbol)

		h.wg.Add(1)
		go h.run(ctx, symbol, runner, ar)
	}
	return res
}

func (h *BotManager) run(ctx context.Context, symbol string, runner *SymbolRunner, ar *activeRunner) {
	defer h.wg.Done()
	defer close(ar.done)
	defer ar.cancel()

	// A stopped runner may still be unwinding, e.g. inside a settlement wait.
	// Cycles of one symbol never overlap.
	if ar.prev != nil {
		<-ar.prev.done
		ar.prev = nil
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("runner exited")
	}

	h.mu.Lock()
	if h.active[symbol] == ar {
		delete(h.active, symbol)
	}
	if h.last[symbol] == ar {
		delete(h.last, symbol)
	}
	h.mu.Unlock()
}

// Stop cancels the given runners and waits for them to unwind. It returns
// the symbols that were running.
func (h *BotManager) Stop(symbols ...string) []string {
	stopped := []string{}
	var pending []*activeRunner

	h.mu.Lock()
	for _, symbol := range symbols {
		ar, ok := h.active[symbol]
		if !ok {
			continue
		}
		ar.cancel()
		delete(h.active, symbol)
		stopped = append(stopped, symbol)
		pending = append(pending, ar)
	}
	h.mu.Unlock()

	for _, ar := range pending {
		<-ar.done
	}
	return stopped
}

// StopAll stops every running symbol.
func (h *BotManager) StopAll() []string {
	return h.Stop(h.Active()...)
}

// Wait blocks until every runner has returned.
func (h *BotManager) Wait() {
	h.wg.Wait()
}

// Active lists the running symbols in order.
func (h *BotManager) Active() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.active))
	for symbol := range h.active {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Status reports every symbol ever started, running or not.
func (h *BotManager) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Status{Active: []string{}, Symbols: []SymbolStatus{}}
	for symbol, runner := range h.runners {
		s := SymbolStatus{Symbol: symbol, Position: runner.Manager().Position()}
		if ar, ok := h.active[symbol]; ok {
			since := ar.started
			s.Running = true
			s.Since = &since
			st.Active = append(st.Active, symbol)
		}
		st.Symbols = append(st.Symbols, s)
	}
	sort.Strings(st.Active)
	sort.Slice(st.Symbols, func(i, j int) bool { return st.Symbols[i].Symbol < st.Symbols[j].Symbol })
	return st
}

// Positions lists the open positions across all known symbols.
func (h *BotManager) Positions() []models.Position {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []models.Position{}
	for _, runner := range h.runners {
		if p := runner.Manager().Position(); p != nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
