package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind tags the shape of a Value.
type Kind uint8

const (
	KindScalar Kind = iota
	KindVector
)

// Value is a metric result: either a single score or a named vector of
// scores such as the aesthetic axes.
type Value struct {
	Kind   Kind               `msgpack:"k"`
	Scalar float64            `msgpack:"s,omitempty"`
	Axes   map[string]float64 `msgpack:"a,omitempty"`
}

// Scalar wraps a single score.
func Scalar(v float64) Value { return Value{Kind: KindScalar, Scalar: v} }

// Vector wraps a named vector of scores. The map is copied.
func Vector(axes map[string]float64) Value {
	cp := make(map[string]float64, len(axes))
	for k, v := range axes {
		cp[k] = v
	}
	return Value{Kind: KindVector, Axes: cp}
}

// Round rounds every component to dp decimal places.
func (v Value) Round(dp int) Value {
	p := math.Pow(10, float64(dp))
	r := func(x float64) float64 { return math.Round(x*p) / p }
	if v.Kind == KindScalar {
		return Scalar(r(v.Scalar))
	}
	out := make(map[string]float64, len(v.Axes))
	for k, x := range v.Axes {
		out[k] = r(x)
	}
	return Value{Kind: KindVector, Axes: out}
}

// AxisNames returns the vector axis names in sorted order.
func (v Value) AxisNames() []string {
	names := make([]string, 0, len(v.Axes))
	for k := range v.Axes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Flatten returns the components keyed by name. Scalars use name as the
// key; vector axes use name.axis.
func (v Value) Flatten(name string) map[string]float64 {
	if v.Kind == KindScalar {
		return map[string]float64{name: v.Scalar}
	}
	out := make(map[string]float64, len(v.Axes))
	for k, x := range v.Axes {
		out[name+"."+k] = x
	}
	return out
}

// Finite reports whether no component is NaN or infinite.
func (v Value) Finite() bool {
	ok := func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
	if v.Kind == KindScalar {
		return ok(v.Scalar)
	}
	for _, x := range v.Axes {
		if !ok(x) {
			return false
		}
	}
	return true
}

// Mean averages values component-wise. All values must share a shape; an
// empty slice or mixed shapes return false.
func Mean(values []Value) (Value, bool) {
	if len(values) == 0 {
		return Value{}, false
	}
	if len(values) == 1 {
		return values[0], true
	}
	n := float64(len(values))
	first := values[0]
	if first.Kind == KindScalar {
		var sum float64
		for _, v := range values {
			if v.Kind != KindScalar {
				return Value{}, false
			}
			sum += v.Scalar
		}
		return Scalar(sum / n), true
	}
	sums := make(map[string]float64, len(first.Axes))
	for _, v := range values {
		if v.Kind != KindVector || len(v.Axes) != len(first.Axes) {
			return Value{}, false
		}
		for k, x := range v.Axes {
			if _, ok := first.Axes[k]; !ok {
				return Value{}, false
			}
			sums[k] += x
		}
	}
	for k := range sums {
		sums[k] /= n
	}
	return Value{Kind: KindVector, Axes: sums}, true
}

// MarshalJSON encodes scalars as numbers and vectors as objects.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindScalar {
		return json.Marshal(v.Scalar)
	}
	return json.Marshal(v.Axes)
}

// UnmarshalJSON accepts a number or an object of numbers.
func (v *Value) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*v = Scalar(f)
		return nil
	}
	var axes map[string]float64
	if err := json.Unmarshal(b, &axes); err != nil {
		return fmt.Errorf("metrics: value must be a number or an object: %w", err)
	}
	*v = Value{Kind: KindVector, Axes: axes}
	return nil
}

// MarshalYAML mirrors MarshalJSON for gopkg.in/yaml.v3.
func (v Value) MarshalYAML() (any, error) {
	if v.Kind == KindScalar {
		return v.Scalar, nil
	}
	return v.Axes, nil
}
