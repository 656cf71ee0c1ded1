package origin

import "context"

// Classify returns the stored tag for an element. An identity with no entry
// was never seen by any watch or walk — created but never inserted, or
// observed too late — and resolves to the explicit default: server. An
// unseen-but-reachable element almost certainly predates the monitoring
// phase, and defaulting to client would paint false positives all over an
// early-load race. Queries never mutate the map, so repeated calls on an
// unchanged element always agree.
func (c *Classifier) Classify(id NodeID) Tag {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tag, ok := c.origins.get(id); ok {
		return tag
	}
	// Observation-gap default. Deliberate policy, not a fallthrough.
	return TagServer
}

// Aggregate walks the entire current tree and tallies each element's
// verdict. O(tree size) per call — it is meant for on-demand refresh, not
// per-mutation accounting. Total always equals the live element count at
// call time, and Server+Client == Total.
func (c *Classifier) Aggregate(ctx context.Context) (Totals, error) {
	var t Totals
	err := c.host.WalkTree(ctx, func(id NodeID) error {
		switch c.Classify(id) {
		case TagClient:
			t.Client++
		default:
			t.Server++
		}
		t.Total++
		return nil
	})
	if err != nil {
		return Totals{}, err
	}
	return t, nil
}

// CurrentPhase is a read-only diagnostic.
func (c *Classifier) CurrentPhase() Phase {
	return Phase(c.phase.Load())
}
