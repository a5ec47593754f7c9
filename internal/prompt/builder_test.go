package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridprobe/gridprobe/internal/core"
)

func testPuzzle() *core.Puzzle {
	return &core.Puzzle{
		ID:    "incr",
		Train: []core.Pair{{Input: core.Grid{{0}}, Output: core.Grid{{1}}}},
		Test:  []core.Pair{{Input: core.Grid{{4}}, Output: core.Grid{{5}}}},
	}
}

func TestBuild_DefaultTemplate(t *testing.T) {
	b := NewBuilder()

	prompt, err := b.Build(core.PromptRequest{Puzzle: testPuzzle()})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Training examples:")
	assert.Contains(t, prompt, "[[0]]")
	assert.Contains(t, prompt, "[[1]]")
	assert.Contains(t, prompt, "Test 1 input: [[4]]")
	assert.Contains(t, prompt, "expected output: [[5]]")
	assert.Contains(t, prompt, `"predictedOutput"`)
}

func TestBuild_OmitGroundTruth(t *testing.T) {
	b := NewBuilder()

	prompt, err := b.Build(core.PromptRequest{
		Puzzle: testPuzzle(),
		Config: core.AnalysisConfig{OmitGroundTruth: true},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Test 1 input: [[4]]")
	assert.NotContains(t, prompt, "expected output")
	assert.NotContains(t, prompt, "[[5]]")
}

func TestBuild_SolverTemplateAlwaysHidesAnswers(t *testing.T) {
	b := NewBuilder()

	prompt, err := b.Build(core.PromptRequest{
		Puzzle: testPuzzle(),
		Config: core.AnalysisConfig{PromptTemplateID: TemplateSolver},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Solve this abstract reasoning puzzle")
	assert.NotContains(t, prompt, "[[5]]")
}

func TestBuild_CustomInstruction(t *testing.T) {
	b := NewBuilder()

	prompt, err := b.Build(core.PromptRequest{
		Puzzle: testPuzzle(),
		Config: core.AnalysisConfig{CustomInstruction: "Describe the symmetry only."},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Describe the symmetry only.")
	assert.Contains(t, prompt, "Training examples:")
}

func TestBuild_MultiTestContract(t *testing.T) {
	b := NewBuilder()

	puzzle := testPuzzle()
	puzzle.Test = append(puzzle.Test, core.Pair{Input: core.Grid{{7}}, Output: core.Grid{{8}}})

	prompt, err := b.Build(core.PromptRequest{Puzzle: puzzle})
	require.NoError(t, err)

	assert.Contains(t, prompt, `"predictedOutputs"`)
	assert.Contains(t, prompt, "exactly 2 grids")
}

func TestBuild_ExtraInstructionAppended(t *testing.T) {
	b := NewBuilder()

	prompt, err := b.Build(core.PromptRequest{
		Puzzle:           testPuzzle(),
		ExtraInstruction: "Your previous answer was wrong; the border stays fixed.",
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Additional instruction:")
	assert.Contains(t, prompt, "border stays fixed")
}

func TestBuild_UnknownTemplate(t *testing.T) {
	b := NewBuilder()

	_, err := b.Build(core.PromptRequest{
		Puzzle: testPuzzle(),
		Config: core.AnalysisConfig{PromptTemplateID: "nope"},
	})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestBuild_NilPuzzle(t *testing.T) {
	b := NewBuilder()
	_, err := b.Build(core.PromptRequest{})
	require.Error(t, err)
}
