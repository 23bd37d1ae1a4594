package settle

import (
	"math"

	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
	"github.com/radieske/stream-wager-platform/pkg/contracts/events"
)

// SpeedMilestone avalia apostas de limiar de velocidade: ganha se a maior
// velocidade rastreada cruza o limiar na direção prevista. Sem direção,
// ganha se a medição fica dentro da banda de tolerância.
type SpeedMilestone struct{}

// banda default quando a prediction não especifica direção nem tolerância
const defaultSpeedBandKmh = 2.0

func (SpeedMilestone) Evaluate(p model.Prediction, ev *events.AnalyticsEvent) Verdict {
	if p.ThresholdKmh == nil {
		return Inconclusive
	}
	speed, ok := ev.Vibrio.MaxSpeedKmh()
	if !ok {
		return Inconclusive
	}
	switch p.Direction {
	case "above":
		if speed >= *p.ThresholdKmh {
			return Won
		}
		return Lost
	case "below":
		if speed <= *p.ThresholdKmh {
			return Won
		}
		return Lost
	default:
		band := defaultSpeedBandKmh
		if p.Tolerance != nil {
			band = *p.Tolerance
		}
		if math.Abs(speed-*p.ThresholdKmh) <= band {
			return Won
		}
		return Lost
	}
}

// PoseEvent avalia apostas angulares: ganha se o ângulo medido da articulação
// está dentro da tolerância do alvo previsto
type PoseEvent struct {
	DefaultToleranceDeg float64
}

func (s PoseEvent) Evaluate(p model.Prediction, ev *events.AnalyticsEvent) Verdict {
	if p.TargetAngle == nil || p.Joint == "" {
		return Inconclusive
	}
	if ev.Pose == nil || !ev.Pose.PoseDetected {
		return Inconclusive
	}
	angle, ok := ev.Pose.JointAngles[p.Joint]
	if !ok {
		return Inconclusive
	}
	tol := s.DefaultToleranceDeg
	if p.Tolerance != nil {
		tol = *p.Tolerance
	}
	if math.Abs(angle-*p.TargetAngle) <= tol {
		return Won
	}
	return Lost
}

// MotionPattern avalia padrões nomeados: ganha se a métrica derivada
// correspondente cruza o limiar configurado do padrão
type MotionPattern struct {
	Thresholds map[string]float64
}

// DefaultPatternThresholds retorna os limiares default por padrão nomeado
func DefaultPatternThresholds() map[string]float64 {
	return map[string]float64{
		"sustained_motion": 0.7, // MotionEnergy
		"stable_tracking":  0.8, // TrackingStability
	}
}

func (s MotionPattern) Evaluate(p model.Prediction, ev *events.AnalyticsEvent) Verdict {
	threshold, ok := s.Thresholds[p.Pattern]
	if !ok {
		return Inconclusive
	}
	if ev.Vibrio == nil {
		return Inconclusive
	}
	var metric float64
	switch p.Pattern {
	case "sustained_motion":
		metric = ev.Vibrio.MotionEnergy
	case "stable_tracking":
		metric = ev.Vibrio.TrackingStability
	}
	if metric >= threshold {
		return Won
	}
	return Lost
}

// ObjectCount avalia apostas de contagem: ganha se
// |contagem medida − prevista| ≤ tolerância (default 0)
type ObjectCount struct{}

func (ObjectCount) Evaluate(p model.Prediction, ev *events.AnalyticsEvent) Verdict {
	if p.Count == nil {
		return Inconclusive
	}
	if ev.Vibrio == nil {
		return Inconclusive
	}
	tol := 0.0
	if p.Tolerance != nil {
		tol = *p.Tolerance
	}
	diff := math.Abs(float64(ev.Vibrio.DetectionCount - *p.Count))
	if diff <= tol {
		return Won
	}
	return Lost
}
