// Package anyeval decodes captions from a model and scores
// them against reference captions.
package anyeval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/unixpickle/essentials"
)

// ErrMissingReference is returned when a hypothesis has
// no reference captions in the ground truth.
var ErrMissingReference = errors.New("missing reference captions")

// GroundTruth maps image ids to reference captions.
type GroundTruth map[string][]string

// LoadGroundTruth reads a JSON object mapping image ids to
// lists of reference captions.
func LoadGroundTruth(path string) (GroundTruth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load ground truth", err)
	}
	var res GroundTruth
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, essentials.AddCtx("load ground truth", err)
	}
	return res, nil
}

// References looks up the references for an image.
func (g GroundTruth) References(imageID string) ([]string, error) {
	refs := g[imageID]
	if len(refs) == 0 {
		return nil, fmt.Errorf("image %q: %w", imageID, ErrMissingReference)
	}
	return refs, nil
}

// Tokenize lower-cases a caption and splits it into words,
// dropping punctuation.
func Tokenize(caption string) []string {
	return strings.FieldsFunc(strings.ToLower(caption), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
}

type ngramCounts map[string]int

// countNgrams counts the n-grams of every order from 1 to
// maxN.
func countNgrams(words []string, maxN int) ngramCounts {
	res := ngramCounts{}
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(words); i++ {
			res[strings.Join(words[i:i+n], " ")]++
		}
	}
	return res
}

func ngramOrder(ngram string) int {
	return strings.Count(ngram, " ") + 1
}
