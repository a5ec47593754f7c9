// Package validator extracts predicted answer grids from raw model text and
// scores them against a puzzle's expected test outputs.
package validator

import (
	"encoding/json"
	"strings"

	"github.com/gridprobe/gridprobe/internal/core"
)

// Validator scores completed analysis text against ground truth.
type Validator struct{}

// New creates a validator.
func New() *Validator {
	return &Validator{}
}

// predictionPayload is the typed response schema providers are instructed to
// emit. Single- and multi-test field spellings are both accepted.
type predictionPayload struct {
	PredictedOutput   core.Grid   `json:"predictedOutput"`
	PredictedOutputs  []core.Grid `json:"predictedOutputs"`
	MultiplePredicted []core.Grid `json:"multiplePredictedOutputs"`
}

func (p *predictionPayload) grids() []core.Grid {
	if len(p.MultiplePredicted) > 0 {
		return p.MultiplePredicted
	}
	if len(p.PredictedOutputs) > 0 {
		return p.PredictedOutputs
	}
	if len(p.PredictedOutput) > 0 {
		return []core.Grid{p.PredictedOutput}
	}
	return nil
}

// Validate extracts exactly one predicted grid per expected output and
// scores them by position. A count mismatch is an error, never a silent
// best-effort match; the caller keeps the raw text either way.
func (v *Validator) Validate(rawText string, expected []core.Grid) (*core.PredictionValidation, error) {
	if len(expected) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidPuzzle, "no expected outputs to validate against")
	}

	grids, method := v.extract(rawText, len(expected))
	if len(grids) != len(expected) {
		return nil, core.ErrPredictionCountMismatch(len(grids), len(expected))
	}

	perTest := make([]bool, len(expected))
	correct := 0
	for i := range expected {
		if grids[i].Equal(expected[i]) {
			perTest[i] = true
			correct++
		}
	}

	return &core.PredictionValidation{
		Grids:          grids,
		PerTestCorrect: perTest,
		Accuracy:       float64(correct) / float64(len(expected)),
		Method:         method,
	}, nil
}

// extract attempts direct structured-field extraction first, then falls back
// to scanning free text for grid-shaped numeric arrays.
func (v *Validator) extract(rawText string, want int) ([]core.Grid, core.ExtractionMethod) {
	if grids := v.extractDirect(rawText); len(grids) > 0 {
		return grids, core.ExtractionDirect
	}
	return v.extractFreeText(rawText, want), core.ExtractionFreeText
}

// extractDirect scans for a JSON object carrying a typed prediction field.
// Fenced code blocks and surrounding prose are tolerated: every '{' in the
// text is a candidate object start and json.Decoder ignores trailing bytes.
func (v *Validator) extractDirect(rawText string) []core.Grid {
	text := stripFences(rawText)
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var payload predictionPayload
		if err := dec.Decode(&payload); err != nil {
			continue
		}
		grids := payload.grids()
		if !allRectangular(grids) {
			continue
		}
		if len(grids) > 0 {
			return grids
		}
	}
	return nil
}

// extractFreeText recovers bare numeric 2D arrays from prose. Models often
// echo training grids before the answer, so when more grids are found than
// test cases, the last ones are taken.
func (v *Validator) extractFreeText(rawText string, want int) []core.Grid {
	text := stripFences(rawText)
	var grids []core.Grid

	for i := 0; i+1 < len(text); i++ {
		if text[i] != '[' || text[i+1] != '[' {
			continue
		}
		end, ok := matchBracket(text, i)
		if !ok {
			continue
		}
		var grid core.Grid
		if err := json.Unmarshal([]byte(text[i:end+1]), &grid); err != nil {
			continue
		}
		if len(grid) == 0 || !allRectangular([]core.Grid{grid}) {
			continue
		}
		grids = append(grids, grid)
		i = end
	}

	if len(grids) > want {
		grids = grids[len(grids)-want:]
	}
	return grids
}

// matchBracket finds the index of the ']' closing the '[' at start.
func matchBracket(text string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func allRectangular(grids []core.Grid) bool {
	for _, g := range grids {
		if g.Validate() != nil {
			return false
		}
	}
	return true
}

// stripFences removes markdown code fence markers so fenced JSON decodes
// like bare JSON.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
