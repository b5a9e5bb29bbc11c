package model

import "fmt"

// Config holds the sizes of the BiDAF model. It is fixed at construction.
type Config struct {
	CharVocabSize    int
	CharDim          int
	CharChannelSize  int
	CharChannelWidth int
	WordDim          int
	HiddenSize       int

	// Dropout is the drop probability used at every dropout point. It only
	// has an effect in training mode.
	Dropout float64

	// Seed drives the parameter initializer. Two models built from the same
	// Config and pretrained table have identical parameters.
	Seed uint64
}

// DefaultConfig returns the sizes of the reference BiDAF setup.
// CharVocabSize is a placeholder; callers set it from their character vocabulary.
func DefaultConfig() Config {
	return Config{
		CharVocabSize:    100,
		CharDim:          8,
		CharChannelSize:  100,
		CharChannelWidth: 5,
		WordDim:          100,
		HiddenSize:       100,
		Dropout:          0.2,
		Seed:             1,
	}
}

// Validate checks the configuration. The highway input is the concatenation
// of character and word features, so it must be exactly 2*HiddenSize wide.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"CharVocabSize", c.CharVocabSize},
		{"CharDim", c.CharDim},
		{"CharChannelSize", c.CharChannelSize},
		{"CharChannelWidth", c.CharChannelWidth},
		{"WordDim", c.WordDim},
		{"HiddenSize", c.HiddenSize},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return &ConfigError{Field: p.name, Reason: fmt.Sprintf("must be positive, got %d", p.v)}
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return &ConfigError{Field: "Dropout", Reason: fmt.Sprintf("must be in [0, 1), got %g", c.Dropout)}
	}
	if 2*c.HiddenSize != c.CharChannelSize+c.WordDim {
		return &ConfigError{
			Field: "HiddenSize",
			Reason: fmt.Sprintf("2*HiddenSize (%d) != CharChannelSize + WordDim (%d + %d)",
				2*c.HiddenSize, c.CharChannelSize, c.WordDim),
		}
	}
	return nil
}
