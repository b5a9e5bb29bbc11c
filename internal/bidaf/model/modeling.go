package model

// ModelingStack refines the attention output with two stacked
// bidirectional LSTMs, 8H → 2H → 2H, with dropout between them.
type ModelingStack struct {
	Layer1  *BiLSTM
	Layer2  *BiLSTM
	Dropout Dropout
}

func NewModelingStack(config Config) *ModelingStack {
	h := config.HiddenSize
	return &ModelingStack{
		Layer1:  NewBiLSTM(8*h, h),
		Layer2:  NewBiLSTM(2*h, h),
		Dropout: Dropout{Rate: config.Dropout},
	}
}

func (s *ModelingStack) initWeights(in *initializer) {
	s.Layer1.initWeights(in)
	s.Layer2.initWeights(in)
}

func (s *ModelingStack) Forward(g Sequence, p *Pass) Sequence {
	m := s.Layer1.Forward(g)
	s.Dropout.Apply(m.Data, p)
	return s.Layer2.Forward(m)
}
