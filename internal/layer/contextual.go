package layer

import (
	"context"

	"github.com/cortexmesh/cascade/internal/backend"
	"github.com/cortexmesh/cascade/internal/track"
)

// Contextual reranks the semantic result using retrieved supporting
// context: prior similar routing decisions and target capability
// documents pulled from the retrieval index. Confidence is a blend of
// the semantic score and the retrieval vote.
type Contextual struct {
	inner     Adapter
	retriever backend.Retriever
	alpha     float64 // weight of the semantic score in the blend
	neighbors int
}

func NewContextual(inner Adapter, retriever backend.Retriever, alpha float64, neighbors int) *Contextual {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.6
	}
	if neighbors <= 0 {
		neighbors = 10
	}
	return &Contextual{inner: inner, retriever: retriever, alpha: alpha, neighbors: neighbors}
}

func (c *Contextual) Name() string { return "contextual" }

func (c *Contextual) Attempt(ctx context.Context, task track.Task) (Candidate, error) {
	base, err := c.inner.Attempt(ctx, task)
	if err != nil {
		return Candidate{}, err
	}

	found, err := c.retriever.Similar(ctx, task.Description, c.neighbors)
	if err != nil {
		return Candidate{}, err
	}
	if len(found) == 0 {
		// Nothing retrieved: pass the semantic result through unchanged
		// rather than blocking the cascade.
		if base.Metadata == nil {
			base.Metadata = map[string]interface{}{}
		}
		base.Metadata["reason"] = "no supporting context retrieved"
		return base, nil
	}

	votes := make(map[string]float64)
	var totalVote float64
	for _, n := range found {
		if n.Score <= 0 {
			continue
		}
		votes[n.Target] += n.Score
		totalVote += n.Score
	}

	scores := make(map[string]float64)
	for name, s := range base.Scores {
		scores[name] = c.alpha * s
	}
	if totalVote > 0 {
		for name, v := range votes {
			scores[name] += (1 - c.alpha) * (v / totalVote)
		}
	}
	for name := range scores {
		scores[name] = clamp01(scores[name])
	}

	target, confidence := Argmax(scores)
	return Candidate{
		Target:     target,
		Confidence: confidence,
		Scores:     scores,
		Metadata: map[string]interface{}{
			"neighbors":   len(found),
			"blend_alpha": c.alpha,
		},
	}, nil
}
