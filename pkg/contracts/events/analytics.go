package events

// Evento publicado pelo pipeline de analytics no tópico "analytics_events".
// Cada evento carrega medições de um frame/janela do stream: rastreamento de
// objetos (vibrio) e/ou biomecânica de pose (moriarty). Campos ausentes
// indicam que o framework correspondente não produziu medição nesse instante.
type AnalyticsEvent struct {
	StreamID string  `json:"stream_id"`
	TsUnixMs int64   `json:"ts_unix_ms"`
	Vibrio   *Vibrio `json:"vibrio,omitempty"`
	Pose     *Pose   `json:"pose,omitempty"`
}

// Vibrio resume o rastreamento de objetos de um frame
type Vibrio struct {
	Tracks            []Track `json:"tracks"`
	DetectionCount    int64   `json:"detection_count"`
	MotionEnergy      float64 `json:"motion_energy"`      // [0,1]
	TrackingStability float64 `json:"tracking_stability"` // [0,1]
}

// Track é um objeto rastreado com cinemática estimada
type Track struct {
	TrackID  int64   `json:"track_id"`
	SpeedKmh float64 `json:"speed_kmh"`
}

// Pose resume a análise biomecânica de um frame
type Pose struct {
	PoseDetected     bool               `json:"pose_detected"`
	JointAngles      map[string]float64 `json:"joint_angles,omitempty"` // graus
	PostureScore     float64            `json:"posture_score"`
	MotionSmoothness float64            `json:"motion_smoothness"`
}

// MaxSpeedKmh retorna a maior velocidade entre os tracks do evento
func (v *Vibrio) MaxSpeedKmh() (float64, bool) {
	if v == nil || len(v.Tracks) == 0 {
		return 0, false
	}
	max := v.Tracks[0].SpeedKmh
	for _, t := range v.Tracks[1:] {
		if t.SpeedKmh > max {
			max = t.SpeedKmh
		}
	}
	return max, true
}
