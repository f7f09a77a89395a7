package worker

import (
	"encoding/json"
	"fmt"

	"trust-pipeline/internal/models"
)

// decodePayload maps a job's opaque payload onto a handler's typed struct.
// Validation happens here, at handler time: enqueue never rejects on payload
// content.
func decodePayload(job models.Job, dst any) error {
	raw, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
