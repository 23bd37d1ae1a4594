package odds

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/radieske/stream-wager-platform/internal/wager-service/catalog"
	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
)

// ContextSource fornece o contexto dinâmico do stream usado no cálculo.
// É um recorte do Outcome Store; falhas de lookup nunca propagam — o cálculo
// de odds é total porque está no hot path de placement.
type ContextSource interface {
	StreamActivity(ctx context.Context, streamID string) (float64, error)
	RecentOutcomes(ctx context.Context, streamID, betType string, n int64) ([]bool, error)
}

// Params controla limites e janelas do cálculo
type Params struct {
	Floor      float64 // odd mínima (default 1.10)
	HistoryN   int64   // janela de resultados para o viés
	MinHistory int     // abaixo disso o viés é neutro (1.0)

	// baseline "típica" de velocidade usada na dificuldade de speed_milestone
	BaselineSpeedKmh float64
}

func DefaultParams() Params {
	return Params{
		Floor:            1.10,
		HistoryN:         20,
		MinHistory:       10,
		BaselineSpeedKmh: 15.0,
	}
}

// Calculator deriva a odd de uma aposta prospectiva a partir da odd base do
// catálogo, da dificuldade da prediction, da atividade recente do stream e do
// viés de resultados históricos. A odd é congelada na aposta pelo engine.
type Calculator struct {
	log *zap.Logger
	src ContextSource
	p   Params
}

func NewCalculator(log *zap.Logger, src ContextSource, p Params) *Calculator {
	return &Calculator{log: log, src: src, p: p}
}

// Calculate retorna a odd final: base × dificuldade × atividade × viés,
// com piso configurado e arredondada a 2 casas. Nunca falha — em erro de
// lookup cai para a odd base.
func (c *Calculator) Calculate(ctx context.Context, streamID string, entry catalog.Entry, pred model.Prediction) float64 {
	odd := entry.BaseOdds
	odd *= c.difficultyMultiplier(entry.Name, pred)
	odd *= c.activityMultiplier(ctx, streamID)
	odd *= c.outcomeBiasMultiplier(ctx, streamID, entry.Name)

	if odd < c.p.Floor {
		odd = c.p.Floor
	}
	return round2(odd)
}

// difficultyMultiplier escala com quão distante a prediction está de um
// comportamento "típico", limitada superiormente
func (c *Calculator) difficultyMultiplier(betType string, p model.Prediction) float64 {
	switch betType {
	case model.TypeSpeedMilestone:
		if p.ThresholdKmh == nil || c.p.BaselineSpeedKmh <= 0 {
			return 1.0
		}
		// distância relativa do limiar à baseline, limitada a +100%
		rel := math.Abs(*p.ThresholdKmh-c.p.BaselineSpeedKmh) / c.p.BaselineSpeedKmh
		return 1.0 + math.Min(rel, 1.0)
	case model.TypePoseEvent:
		tol := 10.0
		if p.Tolerance != nil {
			tol = *p.Tolerance
		}
		// tolerância mais apertada que a default => mais difícil
		return clamp(10.0/tol, 0.8, 1.5)
	case model.TypeMotionPattern:
		return 1.2
	case model.TypeObjectCount:
		tol := 0.0
		if p.Tolerance != nil {
			tol = *p.Tolerance
		}
		return 1.0 + 0.5/(1.0+tol)
	}
	return 1.0
}

// activityMultiplier: atividade alta torna eventos mais fáceis de disparar,
// então reduz a odd levemente; banda [0.8, 1.2]
func (c *Calculator) activityMultiplier(ctx context.Context, streamID string) float64 {
	level, err := c.src.StreamActivity(ctx, streamID)
	if err != nil {
		return 1.0
	}
	return clamp(1.2-0.4*level, 0.8, 1.2)
}

// outcomeBiasMultiplier: taxa de vitória anômala nos últimos N resultados
// corrige a odd; neutro com histórico insuficiente ou erro de lookup
func (c *Calculator) outcomeBiasMultiplier(ctx context.Context, streamID, betType string) float64 {
	hist, err := c.src.RecentOutcomes(ctx, streamID, betType, c.p.HistoryN)
	if err != nil {
		c.log.Debug("outcome history lookup failed", zap.String("streamId", streamID), zap.Error(err))
		return 1.0
	}
	if len(hist) < c.p.MinHistory {
		return 1.0
	}
	wins := 0
	for _, w := range hist {
		if w {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(hist))
	return clamp(1.0+(winRate-0.5)*0.4, 0.9, 1.2)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
