package dto

// DepositIDRequest binds the :id path parameter
type DepositIDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// StatusCallbackRequest is a status pushed by a repository. Term is in the
// repository's vocabulary; Status is a deposit status name.
type StatusCallbackRequest struct {
	EventID string `json:"event_id" binding:"omitempty,max=256"`
	Term    string `json:"term" binding:"required_without=Status,excluded_with=Status,max=256"`
	Status  string `json:"status" binding:"omitempty,max=32"`
}

// StatusCallbackResponse reports what a callback did to the deposit
type StatusCallbackResponse struct {
	DepositID string `json:"deposit_id"`
	Outcome   string `json:"outcome"`
	Status    string `json:"status,omitempty"`
	Duplicate bool   `json:"duplicate"`
}
