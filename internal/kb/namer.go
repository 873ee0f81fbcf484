package kb

import "fmt"

// CollectionName maps a (job, dataset) pair to its vector-store collection.
// Deterministic and collision-free: both ids are embedded verbatim with
// distinct separators. Fails with ErrInvalidArgument on non-positive ids.
func CollectionName(jobID, datasetID int64) (string, error) {
	if jobID <= 0 {
		return "", fmt.Errorf("%w: job id must be positive, got %d", ErrInvalidArgument, jobID)
	}
	if datasetID <= 0 {
		return "", fmt.Errorf("%w: dataset id must be positive, got %d", ErrInvalidArgument, datasetID)
	}
	return fmt.Sprintf("kb_job_%d_ds_%d", jobID, datasetID), nil
}
