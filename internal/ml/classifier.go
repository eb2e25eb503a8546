package ml

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"
)

// ConversationFeatureCount is the number of hand-engineered conversation
// features appended after the TF-IDF vocabulary vector
// (SPEC_FULL.md §4.11.2).
const ConversationFeatureCount = 8

var (
	wordPattern       = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_']+`)
	questionPattern   = regexp.MustCompile(`\?`)
	codePattern       = regexp.MustCompile("```|`[^`]+`|\\bfunc\\b|\\bclass\\b|\\bdef\\b|=>|;\\s*$")
	errorKeywordsRe   = regexp.MustCompile(`(?i)\b(error|exception|fail(ed|ure)?|bug|crash|traceback|panic)\b`)
	decisionKeywordsRe = regexp.MustCompile(`(?i)\b(decided|we'll use|going with|chose|instead of|let's go with)\b`)
)

// Turn mirrors the minimal shape the classifier needs from a
// conversation turn, decoupled from internal/ephemeral.Turn so this
// package has no dependency on the store.
type Turn struct {
	Role    string
	Content string
}

// ClassifierModel is the JSON-serialized scaler-baked model persisted
// under the ephemeral store's "ml:signal_classifier_weights" key.
type ClassifierModel struct {
	Vocabulary []string           `json:"vocabulary"` // up to 500 terms, index order is feature order
	IDF        []float64          `json:"idf"`
	IsSignal   LinearHead         `json:"is_signal"`
	TypeHeads  map[string]LinearHead `json:"type_heads"` // one-vs-rest per SignalType, argmax at inference
	TrainedAt  time.Time          `json:"trained_at"`
	NSamples   int                `json:"n_samples"`
}

// LinearHead is one scaler-baked linear scorer: dot-product plus sigmoid
// (is_signal head) or raw logit (type heads, compared via argmax).
type LinearHead struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (h LinearHead) dot(x []float64) float64 {
	z := h.Bias
	for i, xi := range x {
		if i >= len(h.Weights) {
			break
		}
		z += h.Weights[i] * xi
	}
	return z
}

// MaxVocabularySize caps the baked TF-IDF vocabulary (SPEC_FULL.md
// §4.11.2: ≤500 terms).
const MaxVocabularySize = 500

// Classifier wraps a loaded ClassifierModel for inference.
type Classifier struct {
	model ClassifierModel
}

// NewClassifier wraps model for scoring.
func NewClassifier(model ClassifierModel) *Classifier {
	return &Classifier{model: model}
}

// Features builds the full feature vector: TF-IDF over the baked
// vocabulary (word-boundary tokenized, length>1, 1+log(tf) weighting,
// L2-normalized) concatenated with the 8 conversation features.
func (c *Classifier) Features(turns []Turn) []float64 {
	text := joinTurns(turns)
	tfidf := c.tfidfVector(text)
	conv := conversationFeatures(turns)
	return append(tfidf, conv[:]...)
}

// IsSignal returns the binary is_signal probability for turns.
func (c *Classifier) IsSignal(turns []Turn) float64 {
	return sigmoid(c.model.IsSignal.dot(c.Features(turns)))
}

// ClassifyType returns the argmax-logit signal type name among the
// trained type heads, along with its logit. Callers map the name back
// to types.SignalType.
func (c *Classifier) ClassifyType(turns []Turn) (string, float64) {
	x := c.Features(turns)
	best := ""
	var bestLogit float64
	first := true
	for name, head := range c.model.TypeHeads {
		logit := head.dot(x)
		if first || logit > bestLogit {
			best = name
			bestLogit = logit
			first = false
		}
	}
	return best, bestLogit
}

func (c *Classifier) tfidfVector(text string) []float64 {
	tf := termFrequencies(text)
	vec := make([]float64, len(c.model.Vocabulary))
	for i, term := range c.model.Vocabulary {
		count, ok := tf[term]
		if !ok {
			continue
		}
		weight := 1 + math.Log(float64(count))
		if i < len(c.model.IDF) {
			weight *= c.model.IDF[i]
		}
		vec[i] = weight
	}
	l2Normalize(vec)
	return vec
}

func termFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range tokenize(text) {
		freq[tok]++
	}
	return freq
}

func tokenize(text string) []string {
	matches := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := matches[:0]
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m)
		}
	}
	return out
}

func l2Normalize(v []float64) {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] /= norm
	}
}

func joinTurns(turns []Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// conversationFeatures computes the 8 hand-engineered features in the
// fixed order documented on ConversationFeatureCount.
func conversationFeatures(turns []Turn) [ConversationFeatureCount]float64 {
	var out [ConversationFeatureCount]float64
	if len(turns) == 0 {
		return out
	}

	totalChars := 0
	userTurns := 0
	questionMarks := 0
	codeHits := 0
	hasError := false
	hasDecision := false

	for _, t := range turns {
		totalChars += len(t.Content)
		if strings.EqualFold(t.Role, "user") {
			userTurns++
		}
		questionMarks += len(questionPattern.FindAllString(t.Content, -1))
		codeHits += len(codePattern.FindAllString(t.Content, -1))
		if errorKeywordsRe.MatchString(t.Content) {
			hasError = true
		}
		if decisionKeywordsRe.MatchString(t.Content) {
			hasDecision = true
		}
	}

	n := float64(len(turns))
	out[0] = n                                  // turn_count
	out[1] = float64(totalChars)                // total_chars
	out[2] = float64(totalChars) / n             // avg_turn_length
	out[3] = float64(questionMarks) / n          // question_density
	out[4] = float64(codeHits) / n               // code_density
	out[5] = float64(userTurns) / n              // user_turn_ratio
	if hasError {
		out[6] = 1
	}
	if hasDecision {
		out[7] = 1
	}
	return out
}

// MarshalClassifierModel serializes a ClassifierModel for ephemeral-store
// persistence.
func MarshalClassifierModel(m ClassifierModel) ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalClassifierModel deserializes a cached classifier model blob.
func UnmarshalClassifierModel(b []byte) (ClassifierModel, error) {
	var m ClassifierModel
	err := json.Unmarshal(b, &m)
	return m, err
}

// LabeledExample is one training observation: a turn window, whether it
// contains a signal, and (if so) which type.
type LabeledExample struct {
	Turns    []Turn
	IsSignal bool
	Type     string // empty when !IsSignal
}

// BuildVocabulary selects up to MaxVocabularySize terms by document
// frequency across the corpus and computes their inverse document
// frequency, establishing the fixed feature order for TF-IDF vectors.
func BuildVocabulary(examples []LabeledExample) ([]string, []float64) {
	docFreq := make(map[string]int)
	n := len(examples)
	for _, ex := range examples {
		seen := make(map[string]bool)
		for _, tok := range tokenize(joinTurns(ex.Turns)) {
			seen[tok] = true
		}
		for tok := range seen {
			docFreq[tok]++
		}
	}

	type termCount struct {
		term  string
		count int
	}
	terms := make([]termCount, 0, len(docFreq))
	for t, c := range docFreq {
		terms = append(terms, termCount{t, c})
	}
	// Highest document frequency first so the baked vocabulary favors
	// broadly-occurring, discriminative terms over corpus-specific noise.
	for i := 1; i < len(terms); i++ {
		for j := i; j > 0 && terms[j].count > terms[j-1].count; j-- {
			terms[j], terms[j-1] = terms[j-1], terms[j]
		}
	}
	if len(terms) > MaxVocabularySize {
		terms = terms[:MaxVocabularySize]
	}

	vocab := make([]string, len(terms))
	idf := make([]float64, len(terms))
	for i, tc := range terms {
		vocab[i] = tc.term
		idf[i] = math.Log(float64(n+1) / float64(tc.count+1))
	}
	return vocab, idf
}
