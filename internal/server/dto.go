package server

import (
	"obraline/internal/domain"
	"obraline/internal/engine"
)

// Request payloads

type SignUpRequest struct {
	Email    string `json:"email" format:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	Current string `json:"current"`
	New     string `json:"new"`
}

type UpdateProfileRequest struct {
	Username     *string `json:"username,omitempty"`
	ProfileImage *string `json:"profile_image,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Client      *string `json:"client,omitempty"`
	Location    *string `json:"location,omitempty"`
	Description *string `json:"description,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
}

type InviteRequest struct {
	Email string `json:"email" format:"email"`
	Role  string `json:"role" enum:"Gerente,Supervisor,Empleado"`
}

type MaterialAllocationRequest struct {
	MaterialID string `json:"material_id"`
	Quantity   int    `json:"quantity" minimum:"1"`
}

type CreateTaskRequest struct {
	Title       string                      `json:"title"`
	Description *string                     `json:"description,omitempty"`
	AssigneeID  string                      `json:"assignee_id"`
	Priority    string                      `json:"priority,omitempty" enum:"alta,media,baja,"`
	DueDate     string                      `json:"due_date"`
	Materials   []MaterialAllocationRequest `json:"materials,omitempty"`
}

type CompleteTaskRequest struct {
	Comment     string `json:"comment"`
	EvidenceURL string `json:"evidence_url" format:"uri"`
}

type ChangeDueDateRequest struct {
	DueDate string  `json:"due_date"`
	Reason  *string `json:"reason,omitempty"`
}

type CreateMaterialRequest struct {
	Name        string  `json:"name"`
	Unit        *string `json:"unit,omitempty"`
	Quantity    int     `json:"quantity" minimum:"0"`
	Description *string `json:"description,omitempty"`
}

type SetStockRequest struct {
	Quantity int `json:"quantity" minimum:"0"`
}

// Response payloads

type UserResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	ProfileImage string `json:"profile_image,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		ProfileImage: u.ProfileImage,
		CreatedAt:    u.CreatedAt,
	}
}

func mapMembers(items []domain.Membership) []domain.Membership {
	if items == nil {
		return []domain.Membership{}
	}
	return items
}

func mapProjects(items []domain.Project) []domain.Project {
	if items == nil {
		return []domain.Project{}
	}
	return items
}

func mapMaterials(items []domain.Material) []domain.Material {
	if items == nil {
		return []domain.Material{}
	}
	return items
}

func mapFeed(items []engine.FeedItem) []engine.FeedItem {
	if items == nil {
		return []engine.FeedItem{}
	}
	return items
}

// WeatherAdvisoryResponse pairs the raw observation with the work verdict.
type WeatherAdvisoryResponse struct {
	Observation struct {
		City        string  `json:"city,omitempty"`
		TempC       float64 `json:"temp_c"`
		WindKmh     float64 `json:"wind_kmh"`
		Humidity    int     `json:"humidity"`
		Condition   string  `json:"condition"`
		Description string  `json:"description,omitempty"`
	} `json:"observation"`
	Favorable bool     `json:"favorable"`
	Reasons   []string `json:"reasons,omitempty"`
}
