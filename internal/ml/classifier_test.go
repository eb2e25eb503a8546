package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationFeaturesBasic(t *testing.T) {
	turns := []Turn{
		{Role: "user", Content: "I got an error: nil pointer exception, help?"},
		{Role: "assistant", Content: "Try checking for nil before dereferencing."},
	}
	feats := conversationFeatures(turns)
	assert.Equal(t, 2.0, feats[0])        // turn_count
	assert.Greater(t, feats[1], 0.0)      // total_chars
	assert.Equal(t, 0.5, feats[3])        // question_density (1 question / 2 turns)
	assert.Equal(t, 0.5, feats[5])        // user_turn_ratio
	assert.Equal(t, 1.0, feats[6])        // has_error_keywords
}

func TestConversationFeaturesEmpty(t *testing.T) {
	feats := conversationFeatures(nil)
	for _, f := range feats {
		assert.Equal(t, 0.0, f)
	}
}

func TestTokenizeFiltersShortTokens(t *testing.T) {
	toks := tokenize("a I am testing this-thing now")
	for _, tok := range toks {
		assert.Greater(t, len(tok), 1)
	}
}

func TestBuildVocabularyCapsSize(t *testing.T) {
	var examples []LabeledExample
	for i := 0; i < 10; i++ {
		examples = append(examples, LabeledExample{
			Turns:    []Turn{{Role: "user", Content: "decided to use postgres instead of mysql for the database layer"}},
			IsSignal: true,
			Type:     "decision",
		})
	}
	vocab, idf := BuildVocabulary(examples)
	assert.LessOrEqual(t, len(vocab), MaxVocabularySize)
	assert.Equal(t, len(vocab), len(idf))
	assert.NotEmpty(t, vocab)
}

func TestTrainClassifierProducesUsableHeads(t *testing.T) {
	var examples []LabeledExample
	for i := 0; i < 20; i++ {
		examples = append(examples, LabeledExample{
			Turns:    []Turn{{Role: "user", Content: "we decided to use postgres instead of mysql, going with postgres"}},
			IsSignal: true,
			Type:     "decision",
		})
		examples = append(examples, LabeledExample{
			Turns:    []Turn{{Role: "user", Content: "hello, how are you today"}},
			IsSignal: false,
		})
	}

	model := TrainClassifier(examples)
	assert.Equal(t, len(examples), model.NSamples)
	assert.Contains(t, model.TypeHeads, "decision")

	c := NewClassifier(model)
	pSignal := c.IsSignal([]Turn{{Role: "user", Content: "we decided to use postgres instead of mysql, going with postgres"}})
	pGreeting := c.IsSignal([]Turn{{Role: "user", Content: "hello, how are you today"}})
	assert.Greater(t, pSignal, pGreeting)
}
