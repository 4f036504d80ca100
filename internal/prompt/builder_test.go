package prompt

import (
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func ranked(id, text string, rank int) models.RankedChunk {
	return models.RankedChunk{
		Rank:  rank,
		Score: 1.0 / float64(rank),
		Chunk: models.ChunkRef{ChunkID: id, Text: text, Source: "guide.txt"},
	}
}

func TestBuild_IncludesContextInRankOrder(t *testing.T) {
	b := NewBuilder(1536)
	chunks := []models.RankedChunk{
		ranked("c1", "fever management basics", 1),
		ranked("c2", "hydration guidance", 2),
	}
	prompt, included := b.Build("How to manage fever?", chunks)

	for _, section := range []string{"### Instruction:", "### Context:", "### Question:", "### Response:"} {
		if !strings.Contains(prompt, section) {
			t.Errorf("prompt missing section %q", section)
		}
	}
	if !strings.Contains(prompt, "How to manage fever?") {
		t.Error("prompt missing the question")
	}
	i1 := strings.Index(prompt, "[source: c1]")
	i2 := strings.Index(prompt, "[source: c2]")
	if i1 == -1 || i2 == -1 {
		t.Fatalf("prompt missing source tags: %q", prompt)
	}
	if i1 > i2 {
		t.Error("context blocks not in rank order")
	}
	if len(included) != 2 || included[0] != "c1" || included[1] != "c2" {
		t.Errorf("included = %v, want [c1 c2]", included)
	}
}

func TestBuild_StopsAtTokenBudget(t *testing.T) {
	// Each block is roughly (len/4) tokens; a tight budget admits only the
	// first chunk.
	b := NewBuilder(30)
	chunks := []models.RankedChunk{
		ranked("c1", strings.Repeat("a", 80), 1),
		ranked("c2", strings.Repeat("b", 80), 2),
		ranked("c3", strings.Repeat("c", 80), 3),
	}
	prompt, included := b.Build("q?", chunks)
	if len(included) != 1 || included[0] != "c1" {
		t.Fatalf("included = %v, want only c1", included)
	}
	if strings.Contains(prompt, "[source: c2]") {
		t.Error("over-budget chunk leaked into the prompt")
	}
}

func TestBuild_NoChunksFallsBack(t *testing.T) {
	b := NewBuilder(1536)
	prompt, included := b.Build("What is aspirin?", nil)
	if included != nil {
		t.Errorf("included = %v, want nil", included)
	}
	if strings.Contains(prompt, "### Context:") {
		t.Error("no-context prompt should have no context section")
	}
	if !strings.Contains(prompt, "What is aspirin?") {
		t.Error("prompt missing the question")
	}
}

func TestBuild_BudgetTooSmallForAnyChunk(t *testing.T) {
	b := NewBuilder(5)
	chunks := []models.RankedChunk{ranked("c1", strings.Repeat("x", 200), 1)}
	prompt, included := b.Build("q?", chunks)
	if included != nil {
		t.Errorf("included = %v, want nil", included)
	}
	if strings.Contains(prompt, "### Context:") {
		t.Error("expected fallback to the no-context prompt")
	}
}

func TestBuildWithoutContext(t *testing.T) {
	prompt := NewBuilder(1536).BuildWithoutContext("Is rest advised?")
	if !strings.Contains(prompt, "### Instruction:") || !strings.Contains(prompt, "### Response:") {
		t.Error("prompt missing sections")
	}
	if !strings.Contains(prompt, "Is rest advised?") {
		t.Error("prompt missing the question")
	}
}
