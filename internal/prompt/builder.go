// Package prompt assembles instruction prompts from retrieved context.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

const instruction = `You are a careful medical information assistant. Answer the question using only the provided context. Cite the sources you rely on by their [source: ...] tags. If the context does not contain the answer, say so plainly instead of guessing. Do not provide a diagnosis or treatment plan.`

const instructionNoContext = `You are a careful medical information assistant. Answer the question from general medical knowledge. If you are not confident, say so plainly instead of guessing. Do not provide a diagnosis or treatment plan.`

// Builder assembles generation prompts, packing retrieved chunks in rank
// order until a token budget is exhausted. Budgets are estimates
// (roughly four characters per token), not exact model token counts.
type Builder struct {
	tokenBudget int
}

// NewBuilder creates a builder with the given context token budget. The
// budget covers context chunks only; instruction and question are always
// included.
func NewBuilder(tokenBudget int) *Builder {
	return &Builder{tokenBudget: tokenBudget}
}

// Build assembles the prompt for a question with retrieved context. Chunks
// are packed greedily in rank order; a chunk that would overflow the budget
// is skipped and packing stops. Returns the prompt and the chunk IDs that
// made it in. With no chunks, Build falls back to the no-context prompt.
func (b *Builder) Build(question string, chunks []models.RankedChunk) (string, []string) {
	if len(chunks) == 0 {
		return b.BuildWithoutContext(question), nil
	}

	var (
		blocks   []string
		included []string
		used     int
	)
	for _, rc := range chunks {
		block := fmt.Sprintf("[source: %s]\n%s", rc.Chunk.ChunkID, rc.Chunk.Text)
		cost := utils.EstimateTokens(block)
		if used+cost > b.tokenBudget {
			break
		}
		blocks = append(blocks, block)
		included = append(included, rc.Chunk.ChunkID)
		used += cost
	}
	if len(blocks) == 0 {
		return b.BuildWithoutContext(question), nil
	}

	var sb strings.Builder
	sb.WriteString("### Instruction:\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\n### Context:\n")
	sb.WriteString(strings.Join(blocks, "\n\n"))
	sb.WriteString("\n\n### Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\n### Response:\n")
	return sb.String(), included
}

// BuildWithoutContext assembles a prompt that answers from model knowledge
// alone, with no retrieval context section.
func (b *Builder) BuildWithoutContext(question string) string {
	var sb strings.Builder
	sb.WriteString("### Instruction:\n")
	sb.WriteString(instructionNoContext)
	sb.WriteString("\n\n### Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\n### Response:\n")
	return sb.String()
}
