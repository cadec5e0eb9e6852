package embedding

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// CLIP special tokens.
const (
	clipStartToken = 49406
	clipEndToken   = 49407
)

// Tokenizer produces CLIP text encoder inputs (input_ids, attention_mask).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
}

// WordTokenizer maps lowercase words to CLIP vocabulary ids using the word-final
// ("</w>") entries of a vocab.json file. Words missing from the vocabulary get a
// hash-based id so the encoder still receives a stable input.
type WordTokenizer struct {
	vocab map[string]int64
}

// NewWordTokenizer loads vocab.json from path. An empty path yields a tokenizer that
// uses hash ids only.
func NewWordTokenizer(path string) (*WordTokenizer, error) {
	t := &WordTokenizer{vocab: map[string]int64{}}
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	if err := json.Unmarshal(data, &t.vocab); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	return t, nil
}

// Tokenize lowercases text, splits it into words and returns padded ids of length maxTokens.
func (t *WordTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens <= 2 {
		maxTokens = 77
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)

	inputIDs[0] = clipStartToken
	attentionMask[0] = 1

	pos := 1
	for _, word := range SplitWords(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = t.lookup(word)
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = clipEndToken
	attentionMask[pos] = 1
	return inputIDs, attentionMask
}

func (t *WordTokenizer) lookup(word string) int64 {
	if id, ok := t.vocab[word+"</w>"]; ok {
		return id
	}
	if id, ok := t.vocab[word]; ok {
		return id
	}
	// Stay clear of the special tokens at the top of the range.
	return int64(HashString(word) % (clipStartToken - 1))
}

// SplitWords splits text on whitespace and punctuation and returns non-empty words.
func SplitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'')
	})
}

// HashString returns a deterministic non-negative hash.
func HashString(s string) int {
	var h uint32
	for _, c := range s {
		h = 31*h + uint32(c)
	}
	return int(h)
}
