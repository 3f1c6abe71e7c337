package dto

// LoginRequest is shared by the admin and student password logins.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest registers a local student account. Self-signup always starts
// at level 1; higher levels go through a level request.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone" validate:"omitempty,max=50"`
	Address  string `json:"address" validate:"omitempty,max=500"`
}

// CreateStudentRequest is the admin create-student payload, which may place
// the student at any starting level.
type CreateStudentRequest struct {
	SignupRequest
	Level *int `json:"level" validate:"omitempty,min=1"`
}

// GoogleLoginRequest carries an identity-provider token. Role defaults to student.
type GoogleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
	Role    string `json:"role" validate:"omitempty,oneof=admin student"`
}
