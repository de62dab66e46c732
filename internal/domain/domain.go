package domain

// Role is the closed set of membership roles within a project.
type Role string

const (
	RoleGerente    Role = "Gerente"
	RoleSupervisor Role = "Supervisor"
	RoleEmpleado   Role = "Empleado"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGerente, RoleSupervisor, RoleEmpleado:
		return true
	}
	return false
}

// ProjectState is the project lifecycle state. Finalizado is terminal.
type ProjectState string

const (
	ProjectActivo     ProjectState = "Activo"
	ProjectPendiente  ProjectState = "Pendiente"
	ProjectFinalizado ProjectState = "Finalizado"
)

// TaskStatus is the closed set of task states. Completada is terminal.
type TaskStatus string

const (
	TaskPendiente  TaskStatus = "Pendiente"
	TaskEnProgreso TaskStatus = "En Progreso"
	TaskCompletada TaskStatus = "Completada"
)

type Priority string

const (
	PriorityAlta  Priority = "alta"
	PriorityMedia Priority = "media"
	PriorityBaja  Priority = "baja"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityAlta, PriorityMedia, PriorityBaja:
		return true
	}
	return false
}

// MembershipStatus tracks the invitation lifecycle.
type MembershipStatus string

const (
	MembershipPendiente MembershipStatus = "pendiente"
	MembershipAceptado  MembershipStatus = "aceptado"
)

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	ProfileImage string `json:"profile_image,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Client      string       `json:"client,omitempty"`
	Location    string       `json:"location,omitempty"`
	Description string       `json:"description,omitempty"`
	StartDate   string       `json:"start_date,omitempty" format:"date"`
	EndDate     string       `json:"end_date,omitempty" format:"date"`
	State       ProjectState `json:"state" enum:"Activo,Pendiente,Finalizado"`
	ManagerID   string       `json:"manager_id"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
	FinalizedAt *string      `json:"finalized_at,omitempty" format:"date-time"`
}

// Membership links a user (or a not-yet-registered email) to a project.
// UserID stays empty until the invitation is accepted.
type Membership struct {
	ID         string           `json:"id"`
	ProjectID  string           `json:"project_id"`
	UserID     string           `json:"user_id,omitempty"`
	Email      string           `json:"email"`
	Username   string           `json:"username,omitempty"`
	Role       Role             `json:"role" enum:"Gerente,Supervisor,Empleado"`
	Status     MembershipStatus `json:"status" enum:"pendiente,aceptado"`
	InvitedAt  string           `json:"invited_at" format:"date-time"`
	AcceptedAt *string          `json:"accepted_at,omitempty" format:"date-time"`
}

// MaterialAllocation records the units of a material consumed by a task at
// creation time. Stock is deducted then and never restored.
type MaterialAllocation struct {
	MaterialID string `json:"material_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
}

// DueDateChange is an append-only history entry on a task.
type DueDateChange struct {
	PreviousDate string `json:"previous_date" format:"date"`
	NewDate      string `json:"new_date" format:"date"`
	Reason       string `json:"reason,omitempty"`
	ActorID      string `json:"actor_id"`
	ChangedAt    string `json:"changed_at" format:"date-time"`
}

type Task struct {
	ID                string               `json:"id"`
	ProjectID         string               `json:"project_id"`
	Title             string               `json:"title"`
	Description       string               `json:"description,omitempty"`
	AssigneeID        string               `json:"assignee_id"`
	AssigneeName      string               `json:"assignee_name,omitempty"`
	Priority          Priority             `json:"priority" enum:"alta,media,baja"`
	DueDate           string               `json:"due_date" format:"date"`
	Status            TaskStatus           `json:"status" enum:"Pendiente,En Progreso,Completada"`
	CreatedBy         string               `json:"created_by"`
	CreatedAt         string               `json:"created_at" format:"date-time"`
	CompletionComment string               `json:"completion_comment,omitempty"`
	EvidenceURL       string               `json:"evidence_url,omitempty"`
	CompletedAt       *string              `json:"completed_at,omitempty" format:"date-time"`
	Materials         []MaterialAllocation `json:"materials,omitempty"`
	DueDateHistory    []DueDateChange      `json:"due_date_history,omitempty"`
}

type Material struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Unit        string `json:"unit,omitempty"`
	Quantity    int    `json:"quantity"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// Notification is a persisted due-date-change notice for a user. Invitation
// and assigned-task notices are derived at read time, not stored.
type Notification struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Type      string  `json:"type"`
	ProjectID string  `json:"project_id,omitempty"`
	TaskID    string  `json:"task_id,omitempty"`
	Message   string  `json:"message,omitempty"`
	Read      bool    `json:"read"`
	ReadAt    *string `json:"read_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
