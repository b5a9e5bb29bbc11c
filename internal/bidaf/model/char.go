package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/device"
)

// CharEncoder turns the characters of each word into a fixed-size feature
// vector: embedding, a convolution spanning the full embedding height, and
// a max over every window position.
type CharEncoder struct {
	Config  Config
	Backend device.Backend

	Embedding *mat.Dense // CharVocabSize × CharDim
	// Conv holds one filter per output channel. Patch column d*width+k
	// multiplies embedding dimension d of the k-th character in the window.
	Conv     *mat.Dense // CharChannelSize × CharDim*CharChannelWidth
	ConvBias *mat.Dense // 1 × CharChannelSize
	Dropout  Dropout
}

func NewCharEncoder(config Config, backend device.Backend) *CharEncoder {
	return &CharEncoder{
		Config:    config,
		Backend:   backend,
		Embedding: mat.NewDense(config.CharVocabSize, config.CharDim, nil),
		Conv:      mat.NewDense(config.CharChannelSize, config.CharDim*config.CharChannelWidth, nil),
		ConvBias:  mat.NewDense(1, config.CharChannelSize, nil),
		Dropout:   Dropout{Rate: config.Dropout},
	}
}

func (e *CharEncoder) initWeights(in *initializer) {
	in.uniform(e.Embedding, 0.01)
	in.fanInUniform(e.Conv, e.ConvBias, e.Config.CharDim*e.Config.CharChannelWidth)
}

// Forward maps (batch, length, word length) ids to (batch, length, channels)
// features. The result does not depend on how long the words are beyond the
// windows they contribute.
func (e *CharEncoder) Forward(ids CharIDs, p *Pass) (Sequence, error) {
	if err := ids.validate("chars", e.Config); err != nil {
		return Sequence{}, err
	}

	width := e.Config.CharChannelWidth
	dim := e.Config.CharDim
	channels := e.Config.CharChannelSize
	words := ids.Batch * ids.Length
	convLen := ids.WordLength - width + 1

	// (words*wordLength, charDim)
	embedded := e.Backend.GetMatrix(words*ids.WordLength, dim)
	defer e.Backend.PutMatrix(embedded)
	for r, id := range ids.Data {
		copy(embedded.RawRowView(r), e.Embedding.RawRowView(id))
	}
	e.Dropout.Apply(embedded, p)

	// im2col: one row per (word, window position)
	patches := e.Backend.GetMatrix(words*convLen, dim*width)
	defer e.Backend.PutMatrix(patches)
	for w := 0; w < words; w++ {
		for t := 0; t < convLen; t++ {
			patch := patches.RawRowView(w*convLen + t)
			for k := 0; k < width; k++ {
				for d, v := range embedded.RawRowView(w*ids.WordLength + t + k) {
					patch[d*width+k] = v
				}
			}
		}
	}

	conv := e.Backend.GetMatrix(words*convLen, channels)
	defer e.Backend.PutMatrix(conv)
	conv.Mul(patches, e.Conv.T())
	addBias(conv, e.ConvBias.RawRowView(0))

	// max-pool over window positions
	out := newSequence(ids.Batch, ids.Length, channels)
	for w := 0; w < words; w++ {
		dst := out.Data.RawRowView(w)
		copy(dst, conv.RawRowView(w*convLen))
		for t := 1; t < convLen; t++ {
			for c, v := range conv.RawRowView(w*convLen + t) {
				if v > dst[c] {
					dst[c] = v
				}
			}
		}
	}
	return out, nil
}
