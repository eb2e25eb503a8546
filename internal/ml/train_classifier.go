package ml

import "math"

// TrainClassifier builds a vocabulary from examples, then fits the binary
// is_signal head (weighted logistic regression over all examples) and
// one-vs-rest type heads (fit over signal-positive examples only, per
// SPEC_FULL.md §4.11.2: "type head ... trained on positives only").
func TrainClassifier(examples []LabeledExample) ClassifierModel {
	vocab, idf := BuildVocabulary(examples)
	dim := len(vocab) + ConversationFeatureCount

	tmp := &Classifier{model: ClassifierModel{Vocabulary: vocab, IDF: idf}}

	x := make([][]float64, len(examples))
	ySignal := make([]float64, len(examples))
	nPos, nNeg := 0, 0
	for i, ex := range examples {
		x[i] = tmp.Features(ex.Turns)
		if ex.IsSignal {
			ySignal[i] = 1
			nPos++
		} else {
			nNeg++
		}
	}
	posW, negW := classWeights(nPos, nNeg)
	sampleWeights := make([]float64, len(examples))
	for i, y := range ySignal {
		if y == 1 {
			sampleWeights[i] = posW
		} else {
			sampleWeights[i] = negW
		}
	}

	isSignalHead := fitLogReg(x, ySignal, sampleWeights, dim, 300, 0.1, 0.001)

	typeHeads := make(map[string]LinearHead)
	types := distinctTypes(examples)
	for _, t := range types {
		yType := make([]float64, 0)
		xType := make([][]float64, 0)
		for i, ex := range examples {
			if !ex.IsSignal {
				continue
			}
			xType = append(xType, x[i])
			if ex.Type == t {
				yType = append(yType, 1)
			} else {
				yType = append(yType, 0)
			}
		}
		if len(xType) == 0 {
			continue
		}
		weights := uniformWeights(len(xType))
		typeHeads[t] = fitLogReg(xType, yType, weights, dim, 300, 0.1, 0.001)
	}

	return ClassifierModel{
		Vocabulary: vocab,
		IDF:        idf,
		IsSignal:   isSignalHead,
		TypeHeads:  typeHeads,
		NSamples:   len(examples),
	}
}

func distinctTypes(examples []LabeledExample) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ex := range examples {
		if ex.IsSignal && ex.Type != "" && !seen[ex.Type] {
			seen[ex.Type] = true
			out = append(out, ex.Type)
		}
	}
	return out
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// fitLogReg is the variable-width counterpart of gradientDescentLogReg in
// reranker.go, used for the classifier's much wider TF-IDF feature space.
func fitLogReg(x [][]float64, y, sampleWeights []float64, dim, epochs int, lr, l2 float64) LinearHead {
	coef := make([]float64, dim)
	var intercept float64
	n := float64(len(x))
	if n == 0 {
		return LinearHead{Weights: coef, Bias: 0}
	}

	for epoch := 0; epoch < epochs; epoch++ {
		gradCoef := make([]float64, dim)
		var gradIntercept float64
		for i := range x {
			z := intercept
			for j := 0; j < dim && j < len(x[i]); j++ {
				z += coef[j] * x[i][j]
			}
			p := 1.0 / (1.0 + math.Exp(-z))
			errTerm := (p - y[i]) * sampleWeights[i]
			for j := 0; j < dim && j < len(x[i]); j++ {
				gradCoef[j] += errTerm * x[i][j]
			}
			gradIntercept += errTerm
		}
		for j := 0; j < dim; j++ {
			gradCoef[j] = gradCoef[j]/n + l2*coef[j]
			coef[j] -= lr * gradCoef[j]
		}
		intercept -= lr * (gradIntercept / n)
	}

	return LinearHead{Weights: coef, Bias: intercept}
}
