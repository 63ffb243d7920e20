package IO

import (
	"math/rand/v2"

	"github.com/mdjhnsn/scrn/params"
	"github.com/mdjhnsn/scrn/utils"
)

// Sample is one (history window, next token) training pair. Windows are
// left-padded to the fixed length; targets are always real tokens, so pad
// never carries loss.
type Sample struct {
	Window []int
	Target int
}

// MakeWindowSamples slides over one encoded sequence and emits a sample per
// predictable position: the window holds everything before position i, the
// target is the token at i. The end sentinel is a target too, which is what
// teaches the decoder to stop.
func MakeWindowSamples(seq []int, seqLen int) []Sample {
	if len(seq) < 2 {
		return nil
	}
	out := make([]Sample, 0, len(seq)-1)
	for i := 1; i < len(seq); i++ {
		out = append(out, Sample{
			Window: utils.LeftPad(seq[:i], seqLen, params.PadID),
			Target: seq[i],
		})
	}
	return out
}

// BuildDataset encodes every line and flattens the window samples.
func BuildDataset(lines []string, encode func(string) []int, seqLen int) []Sample {
	var out []Sample
	for _, line := range lines {
		ids := encode(line)
		out = append(out, MakeWindowSamples(ids, seqLen)...)
	}
	return out
}

// SplitTrainVal shuffles deterministically and holds out the trailing
// valFrac of samples for evaluation.
func SplitTrainVal(samples []Sample, valFrac float64, rng *rand.Rand) (train, val []Sample) {
	shuffled := append([]Sample(nil), samples...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	nVal := int(float64(len(shuffled)) * valFrac)
	if nVal >= len(shuffled) {
		nVal = len(shuffled) - 1
	}
	if nVal < 0 {
		nVal = 0
	}
	cut := len(shuffled) - nVal
	return shuffled[:cut], shuffled[cut:]
}

// Batches cuts samples into contiguous batches of at most batchSize.
func Batches(samples []Sample, batchSize int) [][]Sample {
	if batchSize <= 0 {
		batchSize = 1
	}
	var out [][]Sample
	for start := 0; start < len(samples); start += batchSize {
		end := start + batchSize
		if end > len(samples) {
			end = len(samples)
		}
		out = append(out, samples[start:end])
	}
	return out
}
