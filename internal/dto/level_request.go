package dto

// CreateLevelRequest is submitted by a student.
type CreateLevelRequest struct {
	RequestedLevel *int   `json:"requestedLevel" validate:"required,min=1"`
	Message        string `json:"message" validate:"omitempty,max=2000"`
}

// DecisionRequest accompanies an approve or reject decision.
type DecisionRequest struct {
	AdminResponse string `json:"adminResponse" validate:"omitempty,max=2000"`
}

// PendingCountResponse feeds the admin notification badge.
type PendingCountResponse struct {
	Count int `json:"count"`
}
