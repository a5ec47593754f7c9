// Package prompt assembles provider instructions from a puzzle and an
// analysis configuration.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gridprobe/gridprobe/internal/core"
)

// Template ids recognized by the default builder.
const (
	TemplateExplainer = "explainer"
	TemplateSolver    = "solver"

	defaultTemplate = TemplateExplainer
)

// Builder implements core.PromptBuilder with built-in templates.
type Builder struct{}

var _ core.PromptBuilder = (*Builder)(nil)

// NewBuilder creates the default prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles the instruction string for a provider call.
func (b *Builder) Build(req core.PromptRequest) (string, error) {
	if req.Puzzle == nil {
		return "", core.ErrValidation(core.CodeInvalidPuzzle, "prompt request has no puzzle")
	}

	var sb strings.Builder

	if req.Config.CustomInstruction != "" {
		sb.WriteString(req.Config.CustomInstruction)
		sb.WriteString("\n\n")
		b.writePuzzle(&sb, req.Puzzle, req.Config.OmitGroundTruth)
	} else {
		templateID := req.Config.PromptTemplateID
		if templateID == "" {
			templateID = defaultTemplate
		}
		if err := b.writeTemplate(&sb, templateID, req); err != nil {
			return "", err
		}
	}

	b.writeAnswerContract(&sb, len(req.Puzzle.Test))

	if req.ExtraInstruction != "" {
		sb.WriteString("\n\nAdditional instruction:\n")
		sb.WriteString(req.ExtraInstruction)
	}

	return sb.String(), nil
}

func (b *Builder) writeTemplate(sb *strings.Builder, templateID string, req core.PromptRequest) error {
	switch templateID {
	case TemplateExplainer:
		sb.WriteString("You are analyzing an abstract reasoning puzzle. ")
		sb.WriteString("Study the training examples, explain the transformation rule, ")
		sb.WriteString("then apply it to each test input.\n\n")
		b.writePuzzle(sb, req.Puzzle, req.Config.OmitGroundTruth)

	case TemplateSolver:
		// Solver mode never reveals expected outputs, independently of the
		// omit-ground-truth flag.
		sb.WriteString("Solve this abstract reasoning puzzle. ")
		sb.WriteString("Infer the transformation rule from the training examples ")
		sb.WriteString("and produce the output grid for each test input.\n\n")
		b.writePuzzle(sb, req.Puzzle, true)

	default:
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("unknown prompt template: %s", templateID))
	}
	return nil
}

func (b *Builder) writePuzzle(sb *strings.Builder, puzzle *core.Puzzle, omitGroundTruth bool) {
	sb.WriteString("Training examples:\n")
	for i, pair := range puzzle.Train {
		fmt.Fprintf(sb, "Example %d input: %s\n", i+1, gridJSON(pair.Input))
		fmt.Fprintf(sb, "Example %d output: %s\n", i+1, gridJSON(pair.Output))
	}

	sb.WriteString("\nTest cases:\n")
	for i, pair := range puzzle.Test {
		fmt.Fprintf(sb, "Test %d input: %s\n", i+1, gridJSON(pair.Input))
		if !omitGroundTruth && len(pair.Output) > 0 {
			fmt.Fprintf(sb, "Test %d expected output: %s\n", i+1, gridJSON(pair.Output))
		}
	}
}

// writeAnswerContract pins the JSON shape the validator extracts.
func (b *Builder) writeAnswerContract(sb *strings.Builder, testCount int) {
	sb.WriteString("\nEnd your response with a JSON object. ")
	if testCount > 1 {
		fmt.Fprintf(sb, `Use the key "predictedOutputs" holding an array of exactly %d grids, one per test case in order.`, testCount)
	} else {
		sb.WriteString(`Use the key "predictedOutput" holding the predicted grid.`)
	}
	sb.WriteString("\n")
}

func gridJSON(g core.Grid) string {
	data, err := json.Marshal(g)
	if err != nil {
		return "[]"
	}
	return string(data)
}
