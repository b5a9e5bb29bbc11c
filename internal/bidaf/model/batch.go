package model

import "fmt"

// CharIDs is a (batch, length, word length) tensor of character ids in
// row-major order.
type CharIDs struct {
	Batch      int
	Length     int
	WordLength int
	Data       []int
}

// At returns the id of character k of word i in sequence b.
func (c CharIDs) At(b, i, k int) int {
	return c.Data[(b*c.Length+i)*c.WordLength+k]
}

// NewCharIDs flattens nested character ids. Every sequence must have the same
// number of words and every word the same number of characters.
func NewCharIDs(ids [][][]int) (CharIDs, error) {
	if len(ids) == 0 || len(ids[0]) == 0 || len(ids[0][0]) == 0 {
		return CharIDs{}, shapeErrorf("chars", "empty tensor")
	}
	c := CharIDs{Batch: len(ids), Length: len(ids[0]), WordLength: len(ids[0][0])}
	c.Data = make([]int, 0, c.Batch*c.Length*c.WordLength)
	for b, seq := range ids {
		if len(seq) != c.Length {
			return CharIDs{}, shapeErrorf("chars", "sequence %d has %d words, want %d", b, len(seq), c.Length)
		}
		for i, word := range seq {
			if len(word) != c.WordLength {
				return CharIDs{}, shapeErrorf("chars", "word %d of sequence %d has %d chars, want %d", i, b, len(word), c.WordLength)
			}
			c.Data = append(c.Data, word...)
		}
	}
	return c, nil
}

// WordIDs is a (batch, length) tensor of word ids in row-major order.
type WordIDs struct {
	Batch  int
	Length int
	Data   []int
}

// At returns the id of word i in sequence b.
func (w WordIDs) At(b, i int) int {
	return w.Data[b*w.Length+i]
}

// NewWordIDs flattens nested word ids. All sequences must be the same length.
func NewWordIDs(ids [][]int) (WordIDs, error) {
	if len(ids) == 0 || len(ids[0]) == 0 {
		return WordIDs{}, shapeErrorf("words", "empty tensor")
	}
	w := WordIDs{Batch: len(ids), Length: len(ids[0])}
	w.Data = make([]int, 0, w.Batch*w.Length)
	for b, seq := range ids {
		if len(seq) != w.Length {
			return WordIDs{}, shapeErrorf("words", "sequence %d has %d words, want %d", b, len(seq), w.Length)
		}
		w.Data = append(w.Data, seq...)
	}
	return w, nil
}

// Batch is the input of one forward call. It is owned by the caller and
// never modified by the model.
type Batch struct {
	ContextChars CharIDs
	ContextWords WordIDs
	QueryChars   CharIDs
	QueryWords   WordIDs
}

// Validate reports the first reason the batch cannot be fed through a model
// with the given config and word vocabulary size.
func (b Batch) Validate(cfg Config, wordVocab int) error {
	if err := validateSide("context", b.ContextChars, b.ContextWords, cfg, wordVocab); err != nil {
		return err
	}
	if err := validateSide("query", b.QueryChars, b.QueryWords, cfg, wordVocab); err != nil {
		return err
	}
	if b.ContextWords.Batch != b.QueryWords.Batch {
		return shapeErrorf("batch", "context batch %d != query batch %d", b.ContextWords.Batch, b.QueryWords.Batch)
	}
	return nil
}

func validateSide(side string, chars CharIDs, words WordIDs, cfg Config, wordVocab int) error {
	charName, wordName := side+"_chars", side+"_words"

	if err := chars.validate(charName, cfg); err != nil {
		return err
	}
	if err := words.validate(wordName, wordVocab); err != nil {
		return err
	}
	if chars.Batch != words.Batch || chars.Length != words.Length {
		return shapeErrorf(side, "chars (%d, %d) and words (%d, %d) disagree on batch/length",
			chars.Batch, chars.Length, words.Batch, words.Length)
	}
	return nil
}

func (c CharIDs) validate(name string, cfg Config) error {
	if c.Batch <= 0 || c.Length <= 0 || c.WordLength <= 0 {
		return shapeErrorf(name, "all dimensions must be positive, got (%d, %d, %d)", c.Batch, c.Length, c.WordLength)
	}
	if len(c.Data) != c.Batch*c.Length*c.WordLength {
		return shapeErrorf(name, "data length %d does not match (%d, %d, %d)", len(c.Data), c.Batch, c.Length, c.WordLength)
	}
	if c.WordLength < cfg.CharChannelWidth {
		return shapeErrorf(name, "word length %d is shorter than convolution width %d", c.WordLength, cfg.CharChannelWidth)
	}
	return checkRange(name, c.Data, cfg.CharVocabSize)
}

func (w WordIDs) validate(name string, vocab int) error {
	if w.Batch <= 0 || w.Length <= 0 {
		return shapeErrorf(name, "all dimensions must be positive, got (%d, %d)", w.Batch, w.Length)
	}
	if len(w.Data) != w.Batch*w.Length {
		return shapeErrorf(name, "data length %d does not match (%d, %d)", len(w.Data), w.Batch, w.Length)
	}
	return checkRange(name, w.Data, vocab)
}

func checkRange(name string, ids []int, vocab int) error {
	for i, id := range ids {
		if id < 0 || id >= vocab {
			return &ShapeError{Input: name, Reason: fmt.Sprintf("id %d at offset %d outside vocabulary [0, %d)", id, i, vocab)}
		}
	}
	return nil
}
