package catalog

import (
	"errors"

	"github.com/radieske/stream-wager-platform/internal/wager-service/model"
)

var (
	ErrInvalidBetType    = errors.New("invalid bet type")
	ErrStakeOutOfRange   = errors.New("stake out of range")
	ErrInvalidPrediction = errors.New("invalid prediction")
)

// Entry é a configuração estática de um tipo de aposta. Imutável em runtime.
type Entry struct {
	Name          string  `json:"name"`
	MinStakeCents int64   `json:"minStakeCents"`
	MaxStakeCents int64   `json:"maxStakeCents"`
	BaseOdds      float64 `json:"baseOdds"`
	Description   string  `json:"description"`
}

// Catalog mantém as entradas carregadas uma única vez no startup
type Catalog struct {
	entries map[string]Entry
	order   []string
}

// Default monta o catálogo padrão dos quatro tipos suportados
func Default() *Catalog {
	c := &Catalog{entries: make(map[string]Entry)}
	for _, e := range []Entry{
		{Name: model.TypeSpeedMilestone, MinStakeCents: 100, MaxStakeCents: 10_000, BaseOdds: 1.9,
			Description: "velocidade máxima rastreada cruza um limiar (km/h)"},
		{Name: model.TypePoseEvent, MinStakeCents: 100, MaxStakeCents: 10_000, BaseOdds: 2.1,
			Description: "ângulo articular dentro de tolerância do alvo (graus)"},
		{Name: model.TypeMotionPattern, MinStakeCents: 100, MaxStakeCents: 5_000, BaseOdds: 2.5,
			Description: "padrão nomeado de movimento sustentado/tracking estável"},
		{Name: model.TypeObjectCount, MinStakeCents: 100, MaxStakeCents: 5_000, BaseOdds: 2.2,
			Description: "contagem de objetos na janela dentro de tolerância"},
	} {
		c.entries[e.Name] = e
		c.order = append(c.order, e.Name)
	}
	return c
}

// Get retorna a entrada do tipo, se existir
func (c *Catalog) Get(betType string) (Entry, bool) {
	e, ok := c.entries[betType]
	return e, ok
}

// List retorna as entradas na ordem de registro
func (c *Catalog) List() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name])
	}
	return out
}

// Validate checa tipo, faixa de stake e forma estrutural da prediction.
// Nenhum efeito colateral; erros mapeiam 1:1 para códigos da API.
func (c *Catalog) Validate(betType string, stakeCents int64, p model.Prediction) error {
	e, ok := c.entries[betType]
	if !ok {
		return ErrInvalidBetType
	}
	if stakeCents < e.MinStakeCents || stakeCents > e.MaxStakeCents {
		return ErrStakeOutOfRange
	}
	return validatePrediction(betType, p)
}

func validatePrediction(betType string, p model.Prediction) error {
	switch betType {
	case model.TypeSpeedMilestone:
		if p.ThresholdKmh == nil || *p.ThresholdKmh <= 0 {
			return ErrInvalidPrediction
		}
		if p.Direction != "" && p.Direction != "above" && p.Direction != "below" {
			return ErrInvalidPrediction
		}
	case model.TypePoseEvent:
		if p.Joint == "" || p.TargetAngle == nil {
			return ErrInvalidPrediction
		}
		if *p.TargetAngle < 0 || *p.TargetAngle > 360 {
			return ErrInvalidPrediction
		}
		if p.Tolerance != nil && *p.Tolerance <= 0 {
			return ErrInvalidPrediction
		}
	case model.TypeMotionPattern:
		if p.Pattern != "sustained_motion" && p.Pattern != "stable_tracking" {
			return ErrInvalidPrediction
		}
	case model.TypeObjectCount:
		if p.Count == nil || *p.Count < 0 {
			return ErrInvalidPrediction
		}
		if p.Tolerance != nil && *p.Tolerance < 0 {
			return ErrInvalidPrediction
		}
	}
	return nil
}
