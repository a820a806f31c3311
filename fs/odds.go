package fs

import "math"

// Odds and probabilities convert back and forth throughout training and
// scoring. Log-odds are base 10, following the record-linkage literature:
// one point of match weight means "ten times more likely to be a match".

// ProbToOdds converts a probability to odds. p == 1 gives +Inf.
func ProbToOdds(p float64) float64 {
	if p == 1 {
		return math.Inf(1)
	}
	return p / (1 - p)
}

// OddsToProb converts odds to a probability. +Inf gives 1.
func OddsToProb(odds float64) float64 {
	if math.IsInf(odds, 1) {
		return 1
	}
	return odds / (1 + odds)
}

// OddsToLogOdds returns log10 of the odds. Zero odds give -Inf, which is a
// deliberate, valid value: certain non-match evidence, not an error.
func OddsToLogOdds(odds float64) float64 {
	if odds == 0 {
		return math.Inf(-1)
	}
	return math.Log10(odds)
}

// LogOddsToProb converts a log10-odds score to a match probability
// (the logistic function in base-10 log-odds space).
func LogOddsToProb(logOdds float64) float64 {
	if math.IsInf(logOdds, 1) {
		return 1
	}
	if math.IsInf(logOdds, -1) {
		return 0
	}
	return 1 / (1 + math.Pow(10, -logOdds))
}

// PriorFromProbability converts an overall match-rate probability into the
// prior log-odds term of the model.
func PriorFromProbability(p float64) float64 {
	return OddsToLogOdds(ProbToOdds(p))
}
