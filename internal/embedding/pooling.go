package embedding

// ONNXConfig configures a local ONNX embedding model.
type ONNXConfig struct {
	ModelPath   string
	VocabPath   string
	LibraryPath string
	Dimensions  int
	MaxTokens   int
	// Pooling is "" for models that emit a pooled [1, dim] "output",
	// or "cls" / "mean" to pool last_hidden_state.
	Pooling string
}

func (c *ONNXConfig) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
}

// poolHidden reduces model output to one vector of length dim. For "mean" the
// hidden states of tokens with a non-zero mask are averaged; "cls" takes the
// first token; otherwise data already holds the pooled vector.
func poolHidden(data []float32, mask []int64, dim int, pooling string) []float32 {
	out := make([]float32, dim)
	switch pooling {
	case "mean":
		var n float32
		for tok, m := range mask {
			if m == 0 || (tok+1)*dim > len(data) {
				continue
			}
			row := data[tok*dim : (tok+1)*dim]
			for i, v := range row {
				out[i] += v
			}
			n++
		}
		if n > 0 {
			for i := range out {
				out[i] /= n
			}
		}
	default:
		// "cls" and pre-pooled outputs both start with the wanted vector.
		copy(out, data)
	}
	return out
}
