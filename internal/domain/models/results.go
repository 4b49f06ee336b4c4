package models

// ReconcileState labels where a deployment's pipeline currently is. It is
// reported for observability, it is not a durable workflow state.
type ReconcileState string

const (
	StateQueued    ReconcileState = "Queued"
	StateChecking  ReconcileState = "Checking"
	StateUpToDate  ReconcileState = "UpToDate"
	StateUpdating  ReconcileState = "Updating"
	StateNotifying ReconcileState = "Notifying"
	StateDone      ReconcileState = "Done"
	StateFailed    ReconcileState = "Failed"
)

// ReconcileResult is the per-deployment outcome of one reconciliation pass.
// The caller receives one result per discovered deployment, in discovery order.
type ReconcileResult struct {
	Deployment string `json:"deployment"`
	Namespace  string `json:"namespace"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

const (
	StatusSuccess = "Success"
	StatusFailure = "Failure"
)

func NewSuccess(deployment string, namespace string, message string) ReconcileResult {
	return ReconcileResult{
		Deployment: deployment,
		Namespace:  namespace,
		Status:     StatusSuccess,
		Message:    message,
	}
}

func NewFailure(deployment string, namespace string, message string) ReconcileResult {
	return ReconcileResult{
		Deployment: deployment,
		Namespace:  namespace,
		Status:     StatusFailure,
		Message:    message,
	}
}

func (r ReconcileResult) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// ErrorResponse is the response sent to the client if there was an error
type ErrorResponse struct {
	Status  string
	Message string
}
