// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xy

import "fmt"

// Scaling holds the raw steps per canonical unit for the model-dependent
// quantities.
type Scaling struct {
	Voltage  float64 // steps per V
	Current  float64 // steps per A
	Power    float64 // steps per W
	Capacity float64 // steps per Ah
	Energy   float64 // steps per Wh
}

var (
	// ScalingXY3607F has three current decimals and one power decimal.
	ScalingXY3607F = Scaling{Voltage: 100, Current: 1000, Power: 10, Capacity: 1000, Energy: 100}
	// ScalingXY7025 is shared by the higher current models.
	ScalingXY7025 = Scaling{Voltage: 100, Current: 100, Power: 1, Capacity: 100, Energy: 10}

	// DefaultScaling is used until the model register has been read.
	DefaultScaling = ScalingXY7025
)

var scalings = map[ProductModel]Scaling{
	XY3607F: ScalingXY3607F,
	XY7025:  ScalingXY7025,
	XY12522: ScalingXY7025,
	XY6020L: ScalingXY7025,
}

// ScalingFor returns the steps confirmed for model. Unknown models fail
// with ErrScalingUnavailable so callers can decide whether a default is
// acceptable.
func ScalingFor(model ProductModel) (Scaling, error) {
	s, ok := scalings[model]
	if !ok {
		return Scaling{}, fmt.Errorf("%w: %v", ErrScalingUnavailable, model)
	}
	return s, nil
}

func (s Scaling) steps(q Quantity) float64 {
	switch q {
	case Voltage:
		return s.Voltage
	case Current:
		return s.Current
	case Power:
		return s.Power
	case Capacity:
		return s.Capacity
	case Energy:
		return s.Energy
	}
	return 1
}
