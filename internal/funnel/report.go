// Package funnel derives conversion and drop-off figures from raw stage
// counts. ComputeReport is pure: the same snapshot always yields the same
// report, so it can be re-run on every incoming snapshot with no
// accumulation error.
package funnel

import (
	"encoding/json"

	"github.com/loanifi/loanifi-console/internal/domain"
)

// Rate is a percentage that may be undefined. An undefined rate renders
// as JSON null, never as NaN or a silent zero.
type Rate struct {
	Defined bool
	Percent float64
}

// DefinedRate builds a defined rate.
func DefinedRate(percent float64) Rate {
	return Rate{Defined: true, Percent: percent}
}

// MarshalJSON renders undefined rates as null.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Percent)
}

// UnmarshalJSON accepts null as the undefined rate.
func (r *Rate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Rate{}
		return nil
	}
	var percent float64
	if err := json.Unmarshal(data, &percent); err != nil {
		return err
	}
	*r = DefinedRate(percent)
	return nil
}

// StageMetrics is the derived view of one funnel stage.
type StageMetrics struct {
	Stage               string `json:"stage"`
	Count               int64  `json:"count"`
	ConversionFromStart Rate   `json:"conversion_from_start"`
}

// DropOff describes the transition between two adjacent stages. Rate is
// defined only for a strict decrease; a non-decreasing pair is a data
// anomaly (a later stage can never exceed an earlier one in a strict
// funnel) and is flagged instead of reported as a confident figure.
type DropOff struct {
	FromStage string `json:"from_stage"`
	ToStage   string `json:"to_stage"`
	Rate      Rate   `json:"rate"`
	Anomalous bool   `json:"anomalous,omitempty"`
}

// Report is the derived funnel view. It has no independent lifecycle and
// is recomputed from every new snapshot.
type Report struct {
	Stages            []StageMetrics `json:"stages"`
	DropOffs          []DropOff      `json:"drop_offs"`
	OverallConversion Rate           `json:"overall_conversion"`
}

// ComputeReport converts a raw snapshot into conversion rates from the
// first stage and adjacent-pair drop-off rates. A zero first-stage count
// leaves every conversion rate undefined rather than dividing by zero.
func ComputeReport(snapshot domain.FunnelSnapshot) Report {
	report := Report{
		Stages:   make([]StageMetrics, 0, len(snapshot)),
		DropOffs: make([]DropOff, 0),
	}
	if len(snapshot) == 0 {
		return report
	}

	denominator := snapshot[0].Count

	for _, stage := range snapshot {
		metrics := StageMetrics{Stage: stage.Name, Count: stage.Count}
		if denominator > 0 {
			metrics.ConversionFromStart = DefinedRate(100 * float64(stage.Count) / float64(denominator))
		}
		report.Stages = append(report.Stages, metrics)
	}

	for i := 0; i+1 < len(snapshot); i++ {
		current, next := snapshot[i], snapshot[i+1]
		drop := DropOff{FromStage: current.Name, ToStage: next.Name}
		switch {
		case next.Count < current.Count && current.Count > 0:
			drop.Rate = DefinedRate(100 * float64(current.Count-next.Count) / float64(current.Count))
		default:
			drop.Anomalous = true
		}
		report.DropOffs = append(report.DropOffs, drop)
	}

	if denominator > 0 {
		last := snapshot[len(snapshot)-1].Count
		report.OverallConversion = DefinedRate(100 * float64(last) / float64(denominator))
	}

	return report
}
