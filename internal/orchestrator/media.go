package orchestrator

import (
	"context"

	"github.com/skillsenselab/speechd/internal/media"
)

// mediaNormalizer adapts *media.Normalizer to the Normalizer interface.
type mediaNormalizer struct {
	n *media.Normalizer
}

// WrapNormalizer adapts the concrete media normalizer for use by the
// orchestrator.
func WrapNormalizer(n *media.Normalizer) Normalizer {
	return mediaNormalizer{n: n}
}

func (m mediaNormalizer) Normalize(ctx context.Context, path string) (NormalizedAudio, error) {
	audio, err := m.n.Normalize(ctx, path)
	if err != nil {
		return nil, err
	}
	return audio, nil
}
