package layer

import (
	"context"

	"github.com/cortexmesh/cascade/internal/backend"
	"github.com/cortexmesh/cascade/internal/registry"
	"github.com/cortexmesh/cascade/internal/track"
)

// Classifier is the most expensive layer: a trained model returning a
// probability distribution over targets. Confidence is the softmax
// probability of the argmax class. Targets still in cold start, below
// the registry's minimum routed-sample count, are excluded until they
// have accumulated enough history to be trusted here.
type Classifier struct {
	classifier backend.Classifier
	registry   *registry.Registry
}

func NewClassifier(clf backend.Classifier, reg *registry.Registry) *Classifier {
	return &Classifier{classifier: clf, registry: reg}
}

func (c *Classifier) Name() string { return "classifier" }

func (c *Classifier) Attempt(ctx context.Context, task track.Task) (Candidate, error) {
	features := make(map[string]interface{}, len(task.Metadata))
	for k, v := range task.Metadata {
		features[k] = v
	}

	scores, err := c.classifier.Classify(ctx, task.Description, features)
	if err != nil {
		return Candidate{}, err
	}

	eligible := make(map[string]float64, len(scores))
	excluded := 0
	for name, p := range scores {
		if !c.registry.ClassifierEligible(name) {
			excluded++
			continue
		}
		eligible[name] = clamp01(p)
	}
	if len(eligible) == 0 {
		return Candidate{
			Confidence: 0,
			Metadata: map[string]interface{}{
				"reason":           "no classifier-eligible targets",
				"excluded_targets": excluded,
			},
		}, nil
	}

	target, confidence := Argmax(eligible)
	candidate := Candidate{
		Target:     target,
		Confidence: confidence,
		Scores:     eligible,
	}
	if excluded > 0 {
		candidate.Metadata = map[string]interface{}{"excluded_targets": excluded}
	}
	return candidate, nil
}
