package layer

import (
	"context"
	"strings"

	"github.com/cortexmesh/cascade/internal/registry"
	"github.com/cortexmesh/cascade/internal/track"
)

// Keyword is the cheapest layer: deterministic vocabulary matching
// against each target's configured keywords. Confidence is derived from
// match specificity: how much matched weight the best target holds, and
// how exclusively it holds it.
type Keyword struct {
	registry *registry.Registry
}

func NewKeyword(reg *registry.Registry) *Keyword {
	return &Keyword{registry: reg}
}

func (k *Keyword) Name() string { return "keyword" }

func (k *Keyword) Attempt(_ context.Context, task track.Task) (Candidate, error) {
	description := strings.ToLower(task.Description)

	// Matched weight per target. Multi-word keywords are more specific
	// and weigh proportionally more.
	hits := make(map[string]float64)
	matched := make(map[string][]string)
	var total float64
	for _, target := range k.registry.Targets() {
		for _, kw := range target.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || !strings.Contains(description, kw) {
				continue
			}
			weight := float64(len(strings.Fields(kw)))
			hits[target.Name] += weight
			matched[target.Name] = append(matched[target.Name], kw)
			total += weight
		}
	}

	if total == 0 {
		return Candidate{
			Confidence: 0,
			Metadata:   map[string]interface{}{"reason": "no keyword matches"},
		}, nil
	}

	// share rewards exclusivity across targets, saturation rewards the
	// absolute amount of matched weight.
	scores := make(map[string]float64, len(hits))
	for name, weight := range hits {
		share := weight / total
		saturation := 1 - 1/(1+weight)
		scores[name] = clamp01(share * saturation)
	}

	target, confidence := Argmax(scores)
	return Candidate{
		Target:     target,
		Confidence: confidence,
		Scores:     scores,
		Metadata:   map[string]interface{}{"matched_keywords": matched[target]},
	}, nil
}
