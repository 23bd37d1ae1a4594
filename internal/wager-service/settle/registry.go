package settle

import (
	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
	"github.com/radieske/stream-wager-platform/pkg/contracts/events"
)

// Verdict é o resultado da avaliação de uma aposta contra um evento.
// Inconclusive significa que o evento não carrega a medição necessária —
// a aposta permanece ativa, nunca é dada como perdida por falta de dado.
type Verdict int

const (
	Inconclusive Verdict = iota
	Won
	Lost
)

func (v Verdict) String() string {
	switch v {
	case Won:
		return "won"
	case Lost:
		return "lost"
	}
	return "inconclusive"
}

// Strategy avalia uma prediction contra um evento de analytics.
// Implementações são puras e livres de efeito colateral: recebem somente o
// payload da prediction e do evento, nunca mutam estado do engine.
type Strategy interface {
	Evaluate(p model.Prediction, ev *events.AnalyticsEvent) Verdict
}

// Registry mapeia betType -> Strategy
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry retorna o registry com os avaliadores default de cada tipo
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(model.TypeSpeedMilestone, SpeedMilestone{})
	r.Register(model.TypePoseEvent, PoseEvent{DefaultToleranceDeg: 10})
	r.Register(model.TypeMotionPattern, MotionPattern{Thresholds: DefaultPatternThresholds()})
	r.Register(model.TypeObjectCount, ObjectCount{})
	return r
}

func (r *Registry) Register(betType string, s Strategy) {
	r.strategies[betType] = s
}

func (r *Registry) Get(betType string) (Strategy, bool) {
	s, ok := r.strategies[betType]
	return s, ok
}
