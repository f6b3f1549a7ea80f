package onnx

import (
	"fmt"
	"math"
)

// Pool turns a model output into one sentence vector. A [1, dim] output is
// taken as already pooled; a [1, seq, dim] output is mean-pooled over the
// positions where mask is 1. The result is L2-normalised.
func Pool(data []float32, shape []int64, mask []int64, dim int) ([]float32, error) {
	var vec []float32
	switch len(shape) {
	case 2:
		if len(data) < dim {
			return nil, fmt.Errorf("onnx: output has %d values, want %d", len(data), dim)
		}
		vec = make([]float32, dim)
		copy(vec, data[:dim])
	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("onnx: expected batch size 1, got %d", shape[0])
		}
		seq, hidden := int(shape[1]), int(shape[2])
		if hidden != dim {
			return nil, fmt.Errorf("onnx: hidden size %d, want %d", hidden, dim)
		}
		if len(data) < seq*hidden {
			return nil, fmt.Errorf("onnx: output has %d values, want %d", len(data), seq*hidden)
		}
		vec = make([]float32, dim)
		attended := 0
		for i := 0; i < seq && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			row := data[i*hidden : (i+1)*hidden]
			for j, v := range row {
				vec[j] += v
			}
		}
		if attended > 0 {
			for j := range vec {
				vec[j] /= float32(attended)
			}
		}
	default:
		return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
	}
	return normalize(vec), nil
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
