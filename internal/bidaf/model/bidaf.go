package model

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bidaf/internal/device"
)

// BiDAF is the bidirectional attention flow reading-comprehension model. It
// maps a (context, query) pair of tokenised sequences to start and end
// logits over the context positions.
//
// Parameters are written only during construction. Forward never mutates
// them, so inference calls may run concurrently.
type BiDAF struct {
	Config  Config
	Backend device.Backend

	CharEmbedding *CharEncoder
	WordEmbedding *WordEmbedding
	Highway       *Highway
	Contextual    *BiLSTM
	Attention     *AttentionFlow
	Modeling      *ModelingStack
	Output        *OutputHead
	Dropout       Dropout

	training atomic.Bool
	passes   atomic.Uint64
}

// New builds a model on the CPU backend. pretrained is the frozen word
// table, one row per word id and WordDim columns.
func New(config Config, pretrained mat.Matrix) (*BiDAF, error) {
	return NewWithBackend(config, pretrained, device.NewCPUBackend())
}

func NewWithBackend(config Config, pretrained mat.Matrix, backend device.Backend) (*BiDAF, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if pretrained == nil {
		return nil, &ConfigError{Field: "pretrained", Reason: "word table is nil"}
	}
	rows, cols := pretrained.Dims()
	if rows == 0 {
		return nil, &ConfigError{Field: "pretrained", Reason: "word table is empty"}
	}
	if cols != config.WordDim {
		return nil, &ConfigError{
			Field:  "pretrained",
			Reason: fmt.Sprintf("word table has %d columns, WordDim is %d", cols, config.WordDim),
		}
	}
	if backend == nil {
		backend = device.NewCPUBackend()
	}

	h := config.HiddenSize
	m := &BiDAF{
		Config:        config,
		Backend:       backend,
		CharEmbedding: NewCharEncoder(config, backend),
		WordEmbedding: NewWordEmbedding(pretrained),
		Highway:       NewHighway(2 * h),
		Contextual:    NewBiLSTM(2*h, h),
		Attention:     NewAttentionFlow(config, backend),
		Modeling:      NewModelingStack(config),
		Output:        NewOutputHead(config),
		Dropout:       Dropout{Rate: config.Dropout},
	}
	m.initWeights()

	log.Debug().
		Int("hidden", h).
		Int("word_vocab", rows).
		Int("char_vocab", config.CharVocabSize).
		Uint64("seed", config.Seed).
		Str("device", backend.Name()).
		Msg("BiDAF model initialized")
	return m, nil
}

func (m *BiDAF) initWeights() {
	in := newInitializer(m.Config.Seed)
	m.CharEmbedding.initWeights(in)
	m.Highway.initWeights(in)
	m.Contextual.initWeights(in)
	m.Attention.initWeights(in)
	m.Modeling.initWeights(in)
	m.Output.initWeights(in)
}

// SetTraining switches dropout on or off for subsequent Forward calls.
func (m *BiDAF) SetTraining(on bool) { m.training.Store(on) }

func (m *BiDAF) Training() bool { return m.training.Load() }

// Forward runs the model on one batch. In training mode each call draws
// fresh dropout masks; in inference mode the result is deterministic.
func (m *BiDAF) Forward(batch Batch) (p1, p2 *mat.Dense, err error) {
	var p *Pass
	if m.Training() {
		p = NewTrainingPass(m.Config.Seed + m.passes.Add(1))
	}
	return m.ForwardPass(batch, p)
}

// ForwardPass runs the model with explicit pass state. A nil pass is an
// inference pass.
func (m *BiDAF) ForwardPass(batch Batch, p *Pass) (p1, p2 *mat.Dense, err error) {
	if err := batch.Validate(m.Config, m.WordEmbedding.VocabSize()); err != nil {
		kind := "other"
		var se *ShapeError
		if errors.As(err, &se) {
			kind = "shape"
		}
		forwardErrors.WithLabelValues(kind).Inc()
		return nil, nil, err
	}

	c, err := m.embed(batch.ContextChars, batch.ContextWords, p)
	if err != nil {
		return nil, nil, err
	}
	q, err := m.embed(batch.QueryChars, batch.QueryWords, p)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	c = m.Contextual.Forward(c)
	q = m.Contextual.Forward(q)
	m.observe("contextual", start)

	start = time.Now()
	g := m.Attention.Forward(c, q)
	m.Dropout.Apply(g.Data, p)
	m.observe("attention", start)

	start = time.Now()
	mod := m.Modeling.Forward(g, p)
	m.observe("modeling", start)

	start = time.Now()
	p1, p2 = m.Output.Forward(g, mod, p)
	m.observe("output", start)
	return p1, p2, nil
}

// embed runs the character encoder, the word lookup and the highway
// network for one side of the batch.
func (m *BiDAF) embed(chars CharIDs, words WordIDs, p *Pass) (Sequence, error) {
	start := time.Now()
	ch, err := m.CharEmbedding.Forward(chars, p)
	if err != nil {
		return Sequence{}, err
	}
	m.observe("char_embedding", start)

	wd, err := m.WordEmbedding.Forward(words)
	if err != nil {
		return Sequence{}, err
	}

	start = time.Now()
	fused := m.Highway.Forward(concatCols(ch.Data, wd.Data))
	m.Dropout.Apply(fused, p)
	m.observe("highway", start)
	return Sequence{Batch: words.Batch, Length: words.Length, Data: fused}, nil
}

func (m *BiDAF) observe(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage, m.Backend.Name()).Observe(time.Since(start).Seconds())
}

// Parameter is a named trainable tensor. Value aliases the model's storage.
type Parameter struct {
	Name  string
	Value *mat.Dense
}

// Parameters lists every trainable tensor. The word table is frozen and
// not included.
func (m *BiDAF) Parameters() []Parameter {
	ps := []Parameter{
		{"char_emb.weight", m.CharEmbedding.Embedding},
		{"char_conv.weight", m.CharEmbedding.Conv},
		{"char_conv.bias", m.CharEmbedding.ConvBias},
	}
	for i, s := range m.Highway.Stages {
		ps = append(ps, linearParams(fmt.Sprintf("highway_linear%d", i), s.Transform)...)
		ps = append(ps, linearParams(fmt.Sprintf("highway_gate%d", i), s.Gate)...)
	}
	ps = append(ps, lstmParams("context_lstm", m.Contextual)...)
	ps = append(ps, linearParams("att_weight_c", m.Attention.WeightC)...)
	ps = append(ps, linearParams("att_weight_q", m.Attention.WeightQ)...)
	ps = append(ps, linearParams("att_weight_cq", m.Attention.WeightCQ)...)
	ps = append(ps, lstmParams("modeling_lstm1", m.Modeling.Layer1)...)
	ps = append(ps, lstmParams("modeling_lstm2", m.Modeling.Layer2)...)
	ps = append(ps, linearParams("p1_weight_g", m.Output.P1G)...)
	ps = append(ps, linearParams("p1_weight_m", m.Output.P1M)...)
	ps = append(ps, linearParams("p2_weight_g", m.Output.P2G)...)
	ps = append(ps, linearParams("p2_weight_m", m.Output.P2M)...)
	ps = append(ps, lstmParams("output_lstm", m.Output.LSTM)...)
	return ps
}

func linearParams(prefix string, l *Linear) []Parameter {
	return []Parameter{
		{prefix + ".weight", l.Weight},
		{prefix + ".bias", l.Bias},
	}
}

func lstmParams(prefix string, l *BiLSTM) []Parameter {
	cell := func(dir string, c *LSTMCell) []Parameter {
		return []Parameter{
			{prefix + ".weight_ih" + dir, c.WeightIH},
			{prefix + ".weight_hh" + dir, c.WeightHH},
			{prefix + ".bias_ih" + dir, c.BiasIH},
			{prefix + ".bias_hh" + dir, c.BiasHH},
		}
	}
	return append(cell("", &l.Fwd), cell("_reverse", &l.Bwd)...)
}

// WordTable returns a copy of the frozen word table.
func (m *BiDAF) WordTable() *mat.Dense {
	return m.WordEmbedding.Table()
}
