package delivery

import (
	"fmt"

	"tada-core/internal/models"
)

// PipelineRoom names the bus room for a pipeline's realtime output.
func PipelineRoom(pipelineID string) string {
	return "pipeline:" + pipelineID
}

// sendRealtime broadcasts the output on the in-process bus to every
// subscriber of the pipeline's room. Best effort: no persistence, no
// retry. Fails only when the bus was never initialized.
func (d *Dispatcher) sendRealtime(out *models.OutputRecord) error {
	if d.bus == nil {
		return fmt.Errorf("realtime bus not initialized")
	}
	payload := make(map[string]interface{}, len(out.Data)+5)
	for k, v := range out.Data {
		payload[k] = v
	}
	payload["id"] = out.ID
	payload["signature"] = out.Signature
	payload["timestamp"] = out.Timestamp
	payload["program"] = out.Program
	payload["pipelineId"] = out.PipelineID

	d.bus.Publish(PipelineRoom(out.PipelineID), payload)
	return nil
}
