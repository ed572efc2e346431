package internal

import (
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Point is one labeled value. Float holds values of float instruments, Int of int instruments.
type Point struct {
	Attrs attribute.Set
	Float float64
	Int   int64
}

// Sample is the set of values computed by one tick. A published Sample is immutable.
type Sample struct {
	Time   time.Time
	Points map[string][]Point
}

func newSample(t time.Time) *Sample {
	return &Sample{Time: t, Points: make(map[string][]Point)}
}

func (s *Sample) addFloat(name string, v float64, attrs attribute.Set) {
	s.Points[name] = append(s.Points[name], Point{Attrs: attrs, Float: v})
}

func (s *Sample) addInt(name string, v uint64, attrs attribute.Set) {
	if v > math.MaxInt64 {
		v = math.MaxInt64
	}
	s.Points[name] = append(s.Points[name], Point{Attrs: attrs, Int: int64(v)})
}

// Has reports whether the sample carries any point for name.
func (s *Sample) Has(name string) bool {
	return len(s.Points[name]) > 0
}
