package searchindex

import (
	"math"

	"github.com/hudson-blanoire/chroma-server/internal/model"
)

// DistanceFunc returns a dissimilarity; 0 means identical direction/position.
type DistanceFunc func(a, b []float32) float32

// Distance returns the function for a space. Unknown spaces fall back to l2.
func Distance(space model.Space) DistanceFunc {
	switch space {
	case model.SpaceCosine:
		return cosineDistance
	case model.SpaceIP:
		return ipDistance
	default:
		return l2Squared
	}
}

func l2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// ipDistance is 1 - a·b.
func ipDistance(a, b []float32) float32 {
	return 1 - dot(a, b)
}

// cosineDistance is 1 - cos(a, b). A zero vector is at distance 1 from everything.
func cosineDistance(a, b []float32) float32 {
	var na, nb float64
	for i := range a {
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - float64(dot(a, b))/(math.Sqrt(na)*math.Sqrt(nb)))
}
