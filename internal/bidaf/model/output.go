package model

import "gonum.org/v1/gonum/mat"

// OutputHead projects the attention and modeling outputs to start and end
// logits. The end head sees one more bidirectional LSTM pass over m.
type OutputHead struct {
	P1G     *Linear // 8H → 1
	P1M     *Linear // 2H → 1
	P2G     *Linear // 8H → 1
	P2M     *Linear // 2H → 1
	LSTM    *BiLSTM
	Dropout Dropout
}

func NewOutputHead(config Config) *OutputHead {
	h := config.HiddenSize
	return &OutputHead{
		P1G:     NewLinear(8*h, 1),
		P1M:     NewLinear(2*h, 1),
		P2G:     NewLinear(8*h, 1),
		P2M:     NewLinear(2*h, 1),
		LSTM:    NewBiLSTM(2*h, h),
		Dropout: Dropout{Rate: config.Dropout},
	}
}

func (o *OutputHead) initWeights(in *initializer) {
	for _, l := range []*Linear{o.P1G, o.P1M, o.P2G, o.P2M} {
		in.kaimingNormal(l.Weight)
		l.Bias.Zero()
	}
	o.LSTM.initWeights(in)
}

// Forward returns p1 and p2, each batch×Lc.
func (o *OutputHead) Forward(g, m Sequence, p *Pass) (p1, p2 *mat.Dense) {
	start := o.P1G.Forward(g.Data)
	start.Add(start, o.P1M.Forward(m.Data))

	m2 := o.LSTM.Forward(m)
	o.Dropout.Apply(m2.Data, p)
	end := o.P2G.Forward(g.Data)
	end.Add(end, o.P2M.Forward(m2.Data))

	return columnToGrid(start, g.Batch, g.Length), columnToGrid(end, g.Batch, g.Length)
}
