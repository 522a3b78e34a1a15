package stats

import "math"

// Distribution summarizes one measure over the individuals of a run.
type Distribution struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// BatchShape describes how large and how hard to build the individuals of a
// run were.
type BatchShape struct {
	Individuals int          `json:"individuals"`
	Nodes       Distribution `json:"nodes"`
	Macros      Distribution `json:"macros"`
	Parameters  Distribution `json:"parameters"`
	Links       Distribution `json:"links"`
	Attempts    Distribution `json:"attempts"`
}

func ShapeOf(individuals []IndividualSummary) BatchShape {
	column := func(get func(IndividualSummary) int) Distribution {
		values := make([]float64, len(individuals))
		for i, ind := range individuals {
			values[i] = float64(get(ind))
		}
		return distribution(values)
	}
	return BatchShape{
		Individuals: len(individuals),
		Nodes:       column(func(s IndividualSummary) int { return s.Nodes }),
		Macros:      column(func(s IndividualSummary) int { return s.Macros }),
		Parameters:  column(func(s IndividualSummary) int { return s.Parameters }),
		Links:       column(func(s IndividualSummary) int { return s.Links }),
		Attempts:    column(func(s IndividualSummary) int { return s.Attempts }),
	}
}

func distribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	mean, std := avgStd(values)
	return Distribution{Min: minFloat(values), Max: maxFloat(values), Mean: mean, Std: std}
}

// avgStd returns the mean and the population standard deviation.
func avgStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	sq := 0.0
	for _, v := range values {
		sq += (v - avg) * (v - avg)
	}
	return avg, math.Sqrt(sq / float64(len(values)))
}

func maxFloat(values []float64) float64 {
	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

func minFloat(values []float64) float64 {
	best := values[0]
	for _, v := range values[1:] {
		if v < best {
			best = v
		}
	}
	return best
}
