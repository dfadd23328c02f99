package feed

import (
	"errors"

	"mngfx-livechart/internal/market"
	"mngfx-livechart/internal/metrics"

	"go.uber.org/zap"
)

type State string

type Transition string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateTornDown   State = "torn_down"
)

const (
	TransitionDial     Transition = "dial"
	TransitionOpen     Transition = "open"
	TransitionClose    Transition = "close"
	TransitionSwitch   Transition = "switch"
	TransitionTeardown Transition = "teardown"
)

// Session turns connection events for one chart view into aggregator work.
// Ticks are folded only while the connection is open, and nothing is
// processed once the session is torn down. A Session is driven from a single
// goroutine.
type Session struct {
	symbol  string
	state   State
	agg     *market.Aggregator
	emit    func(market.Update)
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewSession(symbol string, agg *market.Aggregator, emit func(market.Update), log *zap.Logger, m *metrics.Metrics) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	if agg == nil {
		agg = market.NewAggregator(market.OrderArrival)
	}
	return &Session{symbol: symbol, state: StateIdle, agg: agg, emit: emit, log: log, metrics: m}
}

func (s *Session) Symbol() string {
	return s.symbol
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Aggregator() *market.Aggregator {
	return s.agg
}

func (s *Session) Apply(t Transition) State {
	s.state = nextState(s.state, t)
	return s.state
}

func nextState(current State, t Transition) State {
	if current == StateTornDown {
		return current
	}
	switch t {
	case TransitionTeardown:
		return StateTornDown
	case TransitionSwitch:
		return StateIdle
	case TransitionDial:
		if current == StateIdle || current == StateClosed {
			return StateConnecting
		}
	case TransitionOpen:
		if current == StateConnecting {
			return StateOpen
		}
	case TransitionClose:
		if current == StateConnecting || current == StateOpen {
			return StateClosed
		}
	}
	return current
}

func (s *Session) Dialing() State {
	return s.Apply(TransitionDial)
}

func (s *Session) Opened() State {
	state := s.Apply(TransitionOpen)
	if state == StateOpen {
		s.log.Info("feed subscribed", zap.String("symbol", s.symbol))
	}
	return state
}

// Closed freezes the session; the aggregator keeps its current candle.
func (s *Session) Closed(err error) State {
	if s.state == StateOpen || s.state == StateConnecting {
		s.metrics.FeedDisconnects.Inc()
		if err != nil {
			s.log.Warn("feed connection closed", zap.String("symbol", s.symbol), zap.Error(err))
		} else {
			s.log.Warn("feed connection closed", zap.String("symbol", s.symbol))
		}
	}
	return s.Apply(TransitionClose)
}

// SwitchSymbol discards the in-progress candle; the caller must reconnect
// and resubscribe.
func (s *Session) SwitchSymbol(symbol string) State {
	if s.state == StateTornDown {
		return s.state
	}
	s.symbol = symbol
	s.agg.Reset()
	return s.Apply(TransitionSwitch)
}

func (s *Session) Teardown() State {
	return s.Apply(TransitionTeardown)
}

// Message folds one feed frame. It reports whether the aggregator changed.
func (s *Session) Message(data []byte) bool {
	if s.state != StateOpen {
		return false
	}
	tick, env, err := ParseTick(data)
	if err != nil {
		s.metrics.MessagesDropped.Inc()
		switch {
		case errors.Is(err, ErrMalformed):
			s.log.Debug("feed message dropped", zap.Error(err))
		case env.Type == TypeError:
			s.log.Warn("feed reported error", zap.String("message", env.Message))
		default:
			s.log.Debug("feed message ignored", zap.String("type", env.Type), zap.String("symbol", env.Symbol))
		}
		return false
	}
	update, err := s.agg.Fold(tick)
	if err != nil {
		s.metrics.MessagesDropped.Inc()
		s.log.Debug("feed tick dropped", zap.Error(err))
		return false
	}
	if update.Dropped {
		s.metrics.StaleTicksDropped.Inc()
		s.log.Debug("stale tick dropped", zap.Int64("ts", tick.TimestampMillis), zap.Int64("interval_start", update.Current.IntervalStart))
		return false
	}
	s.metrics.TicksFolded.Inc()
	if update.Rolled {
		s.metrics.CandlesClosed.Inc()
	}
	if s.emit != nil {
		s.emit(update)
	}
	return true
}
