package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeOrderCreated notifies a supplier about a finalized order.
	TaskTypeOrderCreated = "order:created"
)

// OrderCreatedPayload identifies the order a notification is about.
type OrderCreatedPayload struct {
	OrderID    int64 `json:"order_id"`
	SupplierID int64 `json:"supplier_id"`
}

// NewOrderCreatedTask constructs an Asynq task.
func NewOrderCreatedTask(payload OrderCreatedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOrderCreated, data, asynq.Queue(QueueDefault)), nil
}
