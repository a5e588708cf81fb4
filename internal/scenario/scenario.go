package scenario

import (
	"math"

	"codeberg.org/mutker/vitalsim/internal/errors"
)

// Vital names a tracked vital sign. The string is also the payload field name.
type Vital string

const (
	HeartRate       Vital = "heart_rate"
	SpO2            Vital = "spo2"
	SystolicBP      Vital = "systolic_bp"
	DiastolicBP     Vital = "diastolic_bp"
	RespiratoryRate Vital = "respiratory_rate"
	Temperature     Vital = "temperature"
)

// Vitals lists every known vital in payload order.
var Vitals = []Vital{HeartRate, SpO2, SystolicBP, DiastolicBP, RespiratoryRate, Temperature}

// IsKnown reports whether v is a tracked vital.
func (v Vital) IsKnown() bool {
	for _, known := range Vitals {
		if v == known {
			return true
		}
	}
	return false
}

// Precision returns the number of decimals the vital is reported with.
func (v Vital) Precision() int {
	if v == Temperature {
		return 2
	}
	return 0
}

// Kind selects how a control point governs the interval that follows it.
type Kind string

const (
	Constant Kind = "constant"
	Linear   Kind = "linear"
)

// ControlPoint anchors one segment of a vital's trajectory.
type ControlPoint struct {
	Time  float64 `yaml:"time"`
	Kind  Kind    `yaml:"kind"`
	Value float64 `yaml:"value"`
}

// Scenario is a named, time-bounded script of target vital trajectories.
// It is not modified after Load returns.
type Scenario struct {
	Name        string
	Description string
	Duration    float64
	Vitals      map[Vital][]ControlPoint
}

// Tracked returns the vitals defined by the scenario in payload order.
func (s *Scenario) Tracked() []Vital {
	tracked := make([]Vital, 0, len(s.Vitals))
	for _, v := range Vitals {
		if _, ok := s.Vitals[v]; ok {
			tracked = append(tracked, v)
		}
	}
	return tracked
}

// ResolveTarget returns the target value of vital at elapsed seconds into the run.
func (s *Scenario) ResolveTarget(vital Vital, elapsed float64) (float64, error) {
	points, ok := s.Vitals[vital]
	if !ok || len(points) == 0 {
		return 0, errors.New().WithData(ErrUnknownVital, vital)
	}

	return resolve(points, elapsed), nil
}

// resolve assumes points is non-empty and strictly ascending by time.
func resolve(points []ControlPoint, elapsed float64) float64 {
	first := points[0]
	if elapsed < first.Time {
		return first.Value
	}

	last := points[len(points)-1]
	if elapsed >= last.Time {
		return last.Value
	}

	// First index whose time is beyond elapsed; the interval is [i-1, i).
	i := 1
	for i < len(points) && points[i].Time <= elapsed {
		i++
	}
	prev, next := points[i-1], points[i]

	if prev.Kind != Linear {
		return prev.Value
	}

	span := next.Time - prev.Time
	return prev.Value + (next.Value-prev.Value)*(elapsed-prev.Time)/span
}

// Validate rejects definitions the resolver cannot evaluate.
func (s *Scenario) Validate() error {
	errFactory := errors.New()

	if s.Duration <= 0 || math.IsNaN(s.Duration) || math.IsInf(s.Duration, 0) {
		return errFactory.WithData(errors.ErrScenarioInvalidFormat, invalid(s.Name, "", "duration must be a positive number of seconds"))
	}

	if len(s.Vitals) == 0 {
		return errFactory.WithData(errors.ErrScenarioInvalidFormat, invalid(s.Name, "", "no vitals defined"))
	}

	for vital, points := range s.Vitals {
		if !vital.IsKnown() {
			return errFactory.WithData(errors.ErrScenarioInvalidFormat, invalid(s.Name, vital, "unknown vital"))
		}
		if len(points) == 0 {
			return errFactory.WithData(errors.ErrScenarioInvalidFormat, invalid(s.Name, vital, "no control points"))
		}

		for i, p := range points {
			switch {
			case p.Time < 0 || math.IsNaN(p.Time) || math.IsInf(p.Time, 0):
				return errFactory.WithData(errors.ErrScenarioInvalidFormat, invalid(s.Name, vital, "control point time must be >= 0"))
			case math.IsNaN(p.Value) || math.IsInf(p.Value, 0):
				return errFactory.WithData(errors.ErrScenarioInvalidFormat, invalid(s.Name, vital, "control point value must be finite"))
			case p.Kind != Constant && p.Kind != Linear:
				return errFactory.WithData(errors.ErrScenarioInvalidFormat, invalid(s.Name, vital, "control point kind must be constant or linear"))
			case i > 0 && p.Time == points[i-1].Time:
				return errFactory.WithData(errors.ErrScenarioInvalidFormat, invalid(s.Name, vital, "duplicate control point time"))
			case i > 0 && p.Time < points[i-1].Time:
				return errFactory.WithData(errors.ErrScenarioInvalidFormat, invalid(s.Name, vital, "control points not sorted by time"))
			}
		}
	}

	return nil
}

type validationDetail struct {
	Scenario string
	Vital    Vital
	Reason   string
}

func invalid(name string, vital Vital, reason string) validationDetail {
	return validationDetail{Scenario: name, Vital: vital, Reason: reason}
}
