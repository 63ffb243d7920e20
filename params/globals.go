package params

import (
	"errors"
	"fmt"
)

// Special tokens occupy the first vocabulary slots, in this order.
var Special = []string{"<pad>", "<bos>", "<eos>", "<unk>"}

const (
	PadID = 0
	BosID = 1
	EosID = 2
	UnkID = 3
)

type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

func (v Vocabulary) Size() int { return len(v.IDToToken) }

// Lookup returns the id for tok, falling back to <unk>.
func (v Vocabulary) Lookup(tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	return UnkID
}

var ErrInvalidConfiguration = errors.New("invalid configuration")

type Config struct {
	// Architecture parameters
	ContextWidth   int     // C, width of the smoothed context state
	SlowEmbedWidth int     // slow embedding width; must equal ContextWidth (elementwise smoothing)
	FastEmbedWidth int     // fast embedding width
	HiddenWidth    int     // H, fast recurrent hidden width
	SeqLen         int     // L, fixed window length (left-padded)
	DecayAlpha     float64 // context decay in [0,1]; fixed, not learned
	VocabSize      int     // |V| including the special tokens

	// Optimization parameters
	LR          float64
	WarmupSteps int     // linear warmup steps
	DecaySteps  int     // linear decay steps after warmup (0 = none)
	AdamBeta1   float64 // default 0.9
	AdamBeta2   float64 // default 0.999
	AdamEps     float64 // default 1e-8

	MaxEpochs            int     // maximum number of epochs
	Patience             int     // early stopping patience
	SaveEpochNumber      int     // checkpoint every X epochs (for safety)
	ImprovementThreshold float64 // minimum eval-accuracy improvement that resets patience
	Epsilon              float64 // stop if train loss < epsilon
	BatchSize            int     // mini-batch size
	ValFrac              float64 // fraction of data held out for validation

	// Stability parameters
	GradClip    float64 // <=0 disables
	WeightDecay float64 // AdamW-style; 0 disables
	ShuffleSeed uint64  // deterministic sample shuffling
}

func DefaultConfig() Config {
	return Config{
		ContextWidth:   64,
		SlowEmbedWidth: 64,
		FastEmbedWidth: 128,
		HiddenWidth:    128,
		SeqLen:         40,
		DecayAlpha:     0.95,
		VocabSize:      0, // filled in once the vocabulary is built

		LR:          0.003,
		WarmupSteps: 200,
		DecaySteps:  50_000,
		AdamBeta1:   0.9,
		AdamBeta2:   0.999,
		AdamEps:     1e-8,

		MaxEpochs:            100,
		Patience:             10,
		SaveEpochNumber:      10,
		ImprovementThreshold: 0.001,
		Epsilon:              1e-4,
		BatchSize:            32,
		ValFrac:              0.1,

		GradClip:    1.0,
		WeightDecay: 0.0,
		ShuffleSeed: 42,
	}
}

// Validate checks the architecture fields once, before any weights are built.
func (c Config) Validate() error {
	if c.DecayAlpha < 0 || c.DecayAlpha > 1 {
		return fmt.Errorf("%w: decay alpha %v outside [0,1]", ErrInvalidConfiguration, c.DecayAlpha)
	}
	if c.ContextWidth <= 0 || c.FastEmbedWidth <= 0 || c.HiddenWidth <= 0 {
		return fmt.Errorf("%w: widths must be positive (C=%d, Dfast=%d, H=%d)",
			ErrInvalidConfiguration, c.ContextWidth, c.FastEmbedWidth, c.HiddenWidth)
	}
	if c.SlowEmbedWidth != c.ContextWidth {
		return fmt.Errorf("%w: slow embedding width %d must equal context width %d (smoothing is elementwise)",
			ErrInvalidConfiguration, c.SlowEmbedWidth, c.ContextWidth)
	}
	if c.SeqLen <= 0 {
		return fmt.Errorf("%w: sequence length %d must be positive", ErrInvalidConfiguration, c.SeqLen)
	}
	if c.VocabSize <= len(Special) {
		return fmt.Errorf("%w: vocabulary size %d leaves no room beyond the %d special tokens",
			ErrInvalidConfiguration, c.VocabSize, len(Special))
	}
	return nil
}
