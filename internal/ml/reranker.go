// Package ml implements the memory system's two pure logistic-regression
// models — the retrieval reranker and the signal classifier — as baked
// dot-product-plus-sigmoid scorers with no runtime ML dependency, plus
// their offline training routines. Grounded on the teacher's
// internal/engine.ConfidenceScorer, a hand-weighted linear scorer this
// generalizes into a trained model, and on internal/llm's multi-strategy
// parsing machinery for corpus prep.
package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// RerankerFeatureCount is the fixed width of the reranker's feature
// vector (SPEC_FULL.md §4.11.1). Vector-only hits (no graph path) still
// produce all 11 slots, zero-valued where the signal doesn't apply.
const RerankerFeatureCount = 11

// RerankerFeatures names the 11 ordered feature slots, for logging and
// training-row reconstruction.
var RerankerFeatures = [RerankerFeatureCount]string{
	"importance",
	"stability",
	"confidence",
	"log1p_access_count",
	"hours_since_last_access",
	"hours_since_creation",
	"is_pinned",
	"durability_score",
	"similarity",
	"has_graph_path",
	"retrieval_path_len",
}

// RerankerModel is the JSON-serialized scaler-baked model persisted under
// the ephemeral store's "ml:reranker_weights" key.
type RerankerModel struct {
	Features         [RerankerFeatureCount]string `json:"features"`
	Weights          [RerankerFeatureCount]float64 `json:"weights"`
	Bias             float64                       `json:"bias"`
	TrainedAt        time.Time                     `json:"trained_at"`
	NSamples         int                            `json:"n_samples"`
	CVScore          float64                        `json:"cv_score"`
	ClassDistribution map[string]int                `json:"class_distribution"`
}

// RerankerInput is the raw (unscaled) feature observation for one
// candidate memory, built by the retrieval pipeline's ranking stage.
type RerankerInput struct {
	Importance           float64
	Stability            float64
	Confidence            float64
	AccessCount           int
	HoursSinceLastAccess  float64
	HoursSinceCreation    float64
	IsPinned              bool
	DurabilityScore       float64 // 0.0 ephemeral, 0.5 durable, 1.0 permanent
	Similarity            float64
	HasGraphPath          bool
	RetrievalPathLen      int
}

// Vector builds the ordered 11-element raw feature vector per
// SPEC_FULL.md §4.11.1, clamping the two unbounded time features.
func (in RerankerInput) Vector() [RerankerFeatureCount]float64 {
	boolF := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	return [RerankerFeatureCount]float64{
		in.Importance,
		in.Stability,
		in.Confidence,
		math.Log1p(float64(in.AccessCount)),
		math.Min(in.HoursSinceLastAccess, 720),
		math.Min(in.HoursSinceCreation, 8760),
		boolF(in.IsPinned),
		in.DurabilityScore,
		in.Similarity,
		boolF(in.HasGraphPath),
		float64(in.RetrievalPathLen),
	}
}

// Reranker wraps a loaded RerankerModel for inference.
type Reranker struct {
	model RerankerModel
}

// NewReranker validates and wraps model for scoring.
func NewReranker(model RerankerModel) (*Reranker, error) {
	for i, name := range model.Features {
		if name == "" {
			name = RerankerFeatures[i]
		}
		if name != RerankerFeatures[i] {
			return nil, fmt.Errorf("ml: reranker feature %d mismatch: model has %q, want %q", i, name, RerankerFeatures[i])
		}
	}
	return &Reranker{model: model}, nil
}

// Score returns sigmoid(w·x + b) for the given raw feature input. The
// model's weights are already scaler-baked (w_eff = coef/scale), so no
// standardization step runs at inference time.
func (r *Reranker) Score(in RerankerInput) float64 {
	x := in.Vector()
	dot := r.model.Bias
	for i, xi := range x {
		dot += r.model.Weights[i] * xi
	}
	return sigmoid(dot)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// MarshalModel serializes a RerankerModel for ephemeral-store persistence.
func MarshalModel(m RerankerModel) ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalRerankerModel deserializes a cached reranker model blob.
func UnmarshalRerankerModel(b []byte) (RerankerModel, error) {
	var m RerankerModel
	err := json.Unmarshal(b, &m)
	return m, err
}

// FeedbackRow is one reconstructed training observation from a "feedback"
// audit row: the raw feature vector at injection time plus the outcome
// label (useful=1, not_useful=0).
type FeedbackRow struct {
	Features [RerankerFeatureCount]float64
	Useful   bool
}

// MinRerankerSamples is the minimum labeled row count required before
// TrainReranker will produce a model (SPEC_FULL.md §4.11.1: MIN_SAMPLES).
const MinRerankerSamples = 30

// TrainReranker fits a standard-scaled, class-balanced logistic
// regression over rows via batch gradient descent, then bakes the scaler
// into the returned weights so inference needs no scaler at serve time.
// Returns an error if rows is below MinRerankerSamples.
func TrainReranker(rows []FeedbackRow) (RerankerModel, error) {
	if len(rows) < MinRerankerSamples {
		return RerankerModel{}, fmt.Errorf("ml: need at least %d feedback rows to train reranker, have %d", MinRerankerSamples, len(rows))
	}

	means, scales := standardize(rows)

	scaled := make([][RerankerFeatureCount]float64, len(rows))
	labels := make([]float64, len(rows))
	nPos, nNeg := 0, 0
	for i, row := range rows {
		for j := 0; j < RerankerFeatureCount; j++ {
			scaled[i][j] = (row.Features[j] - means[j]) / scales[j]
		}
		if row.Useful {
			labels[i] = 1
			nPos++
		} else {
			labels[i] = 0
			nNeg++
		}
	}

	weightPos, weightNeg := classWeights(nPos, nNeg)
	sampleWeights := make([]float64, len(rows))
	for i, l := range labels {
		if l == 1 {
			sampleWeights[i] = weightPos
		} else {
			sampleWeights[i] = weightNeg
		}
	}

	coef, intercept := gradientDescentLogReg(scaled, labels, sampleWeights, 500, 0.1, 0.001)

	cvScore := crossValidateAccuracy(scaled, labels, sampleWeights, 5)

	var wEff [RerankerFeatureCount]float64
	bEff := intercept
	for i := 0; i < RerankerFeatureCount; i++ {
		wEff[i] = coef[i] / scales[i]
		bEff -= coef[i] * means[i] / scales[i]
	}

	return RerankerModel{
		Features:  RerankerFeatures,
		Weights:   wEff,
		Bias:      bEff,
		NSamples:  len(rows),
		CVScore:   cvScore,
		ClassDistribution: map[string]int{"useful": nPos, "not_useful": nNeg},
	}, nil
}

func standardize(rows []FeedbackRow) (means, scales [RerankerFeatureCount]float64) {
	n := float64(len(rows))
	for _, row := range rows {
		for j := 0; j < RerankerFeatureCount; j++ {
			means[j] += row.Features[j]
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, row := range rows {
		for j := 0; j < RerankerFeatureCount; j++ {
			d := row.Features[j] - means[j]
			scales[j] += d * d
		}
	}
	for j := range scales {
		scales[j] = math.Sqrt(scales[j] / n)
		if scales[j] < 1e-9 {
			scales[j] = 1
		}
	}
	return means, scales
}

func classWeights(nPos, nNeg int) (posW, negW float64) {
	total := float64(nPos + nNeg)
	if nPos == 0 || nNeg == 0 {
		return 1, 1
	}
	return total / (2 * float64(nPos)), total / (2 * float64(nNeg))
}

// gradientDescentLogReg fits weighted logistic regression via batch
// gradient descent. Returns per-feature coefficients and the intercept.
func gradientDescentLogReg(x [][RerankerFeatureCount]float64, y, sampleWeights []float64, epochs int, lr, l2 float64) (coef [RerankerFeatureCount]float64, intercept float64) {
	n := float64(len(x))
	for epoch := 0; epoch < epochs; epoch++ {
		var gradCoef [RerankerFeatureCount]float64
		var gradIntercept float64
		for i := range x {
			z := intercept
			for j := 0; j < RerankerFeatureCount; j++ {
				z += coef[j] * x[i][j]
			}
			p := sigmoid(z)
			err := (p - y[i]) * sampleWeights[i]
			for j := 0; j < RerankerFeatureCount; j++ {
				gradCoef[j] += err * x[i][j]
			}
			gradIntercept += err
		}
		for j := 0; j < RerankerFeatureCount; j++ {
			gradCoef[j] = gradCoef[j]/n + l2*coef[j]
			coef[j] -= lr * gradCoef[j]
		}
		intercept -= lr * (gradIntercept / n)
	}
	return coef, intercept
}

// crossValidateAccuracy runs k-fold cross validation and returns mean
// held-out accuracy.
func crossValidateAccuracy(x [][RerankerFeatureCount]float64, y, sampleWeights []float64, k int) float64 {
	n := len(x)
	if n < k {
		k = n
	}
	if k < 2 {
		return 0
	}
	foldSize := n / k
	var totalAcc float64
	for fold := 0; fold < k; fold++ {
		start := fold * foldSize
		end := start + foldSize
		if fold == k-1 {
			end = n
		}
		var trainX [][RerankerFeatureCount]float64
		var trainY, trainW []float64
		for i := 0; i < n; i++ {
			if i >= start && i < end {
				continue
			}
			trainX = append(trainX, x[i])
			trainY = append(trainY, y[i])
			trainW = append(trainW, sampleWeights[i])
		}
		if len(trainX) == 0 {
			continue
		}
		coef, intercept := gradientDescentLogReg(trainX, trainY, trainW, 200, 0.1, 0.001)
		correct := 0
		for i := start; i < end; i++ {
			z := intercept
			for j := 0; j < RerankerFeatureCount; j++ {
				z += coef[j] * x[i][j]
			}
			pred := 0.0
			if sigmoid(z) >= 0.5 {
				pred = 1
			}
			if pred == y[i] {
				correct++
			}
		}
		if end > start {
			totalAcc += float64(correct) / float64(end-start)
		}
	}
	return totalAcc / float64(k)
}
