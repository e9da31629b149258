// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tokens estimates LLM token counts for serialized results.
package tokens

import "math"

// DefaultTokensPerChar approximates one token per four characters.
const DefaultTokensPerChar = 0.25

// Counter returns an estimated token count for text.
type Counter interface {
	Count(text string) int
}

// Estimator is a character-ratio Counter.
type Estimator struct {
	// TokensPerChar is the ratio applied to the byte length.
	// Default: 0.25
	TokensPerChar float64
}

// NewEstimator returns an Estimator using DefaultTokensPerChar.
func NewEstimator() *Estimator {
	return &Estimator{TokensPerChar: DefaultTokensPerChar}
}

// Count returns ceil(len(text) * TokensPerChar), or 0 for empty text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	ratio := e.TokensPerChar
	if ratio <= 0 {
		ratio = DefaultTokensPerChar
	}
	return int(math.Ceil(float64(len(text)) * ratio))
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(text string) int

// Count calls f(text).
func (f CounterFunc) Count(text string) int { return f(text) }
