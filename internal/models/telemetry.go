package models

import "time"

// TelemetryPoint is one reading of a node. Immutable once created.
type TelemetryPoint struct {
	Timestamp      time.Time `json:"ts"`
	VUF            float64   `json:"vuf"`
	VA             int       `json:"v_a"`
	VB             int       `json:"v_b"`
	VC             int       `json:"v_c"`
	NeutralCurrent float64   `json:"neutral_current"`
}
