package dto

// UpdateStudentRequest applies a partial update; nil fields are left untouched.
type UpdateStudentRequest struct {
	Name             *string `json:"name" validate:"omitempty,min=1,max=255"`
	Email            *string `json:"email" validate:"omitempty,email"`
	Phone            *string `json:"phone" validate:"omitempty,max=50"`
	Address          *string `json:"address" validate:"omitempty,max=500"`
	Level            *int    `json:"level" validate:"omitempty,min=1"`
	AccessibleLevels []int   `json:"accessibleLevels" validate:"omitempty,dive,min=1"`
}

// ActivityRequest records a student opening a sheet slide.
type ActivityRequest struct {
	Sheet int `json:"sheet" validate:"required,min=1"`
	Slide int `json:"slide" validate:"min=0"`
	Level int `json:"level" validate:"required,min=1"`
}

// StudentListQuery binds the admin list filters.
type StudentListQuery struct {
	Search   string `form:"search"`
	Level    *int   `form:"level" validate:"omitempty,min=1"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}
