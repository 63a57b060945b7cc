package scheduler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maxkimambo/dataflow/internal/logger"
)

// ErrArtifactMissing is returned when a producer finished without writing an artifact a consumer expects
var ErrArtifactMissing = errors.New("artifact missing")

// ArtifactError names the missing artifact and the edge that expected it
type ArtifactError struct {
	Producer string
	Consumer string
	Artifact string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact %s expected by %s was not produced by %s", e.Artifact, e.Consumer, e.Producer)
}

// Is reports whether target is ErrArtifactMissing
func (e *ArtifactError) Is(target error) bool {
	return target == ErrArtifactMissing
}

// verifyArtifacts checks every artifact that dependents expect from the producer.
// Artifacts addressed by URI (gs://, s3://, ...) are not checked.
func (s *Scheduler) verifyArtifacts(producer string) error {
	for _, e := range s.graph.Dependents(producer) {
		for _, artifact := range e.Artifacts {
			if strings.Contains(artifact, "://") {
				logger.Op.WithFields(map[string]interface{}{
					"task":     producer,
					"artifact": artifact,
				}).Debug("Skipping verification of remote artifact")
				continue
			}

			path := artifact
			if !filepath.IsAbs(path) && s.config.ArtifactRoot != "" {
				path = filepath.Join(s.config.ArtifactRoot, path)
			}
			if _, err := os.Stat(path); err != nil {
				return &ArtifactError{Producer: producer, Consumer: e.To, Artifact: artifact}
			}
			logger.User.Artifactf("Artifact ready: %s (%s -> %s)", artifact, producer, e.To)
		}
	}
	return nil
}
