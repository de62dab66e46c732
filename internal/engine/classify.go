package engine

import (
	"obraline/internal/dates"
	"obraline/internal/domain"
)

// Buckets groups a task list by state relative to a reference date.
type Buckets struct {
	Active    []domain.Task `json:"active"`
	Completed []domain.Task `json:"completed"`
	Overdue   []domain.Task `json:"overdue"`
}

// Classify splits tasks into active, completed and overdue. Completion wins
// regardless of date. The comparison is calendar-date only; a task due today
// is still active. Tasks whose due date does not parse are left out of both
// active and overdue rather than guessed at.
func Classify(tasks []domain.Task, asOf dates.Date) Buckets {
	var b Buckets
	for _, t := range tasks {
		if t.Status == domain.TaskCompletada {
			b.Completed = append(b.Completed, t)
			continue
		}
		due, err := dates.Parse(t.DueDate)
		if err != nil {
			continue
		}
		if due.Before(asOf) {
			b.Overdue = append(b.Overdue, t)
		} else {
			b.Active = append(b.Active, t)
		}
	}
	return b
}

// Statistics summarizes a task list for the project dashboard. Overdue is
// derived from the due date, the same field Classify uses.
type Statistics struct {
	Total       int `json:"total"`
	Completadas int `json:"completadas"`
	EnProgreso  int `json:"en_progreso"`
	Vencidas    int `json:"vencidas"`
}

func ComputeStatistics(tasks []domain.Task, asOf dates.Date) Statistics {
	s := Statistics{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskCompletada:
			s.Completadas++
			continue
		case domain.TaskEnProgreso:
			s.EnProgreso++
		}
		if due, err := dates.Parse(t.DueDate); err == nil && due.Before(asOf) {
			s.Vencidas++
		}
	}
	return s
}

// VisibleTasks filters tasks by the viewer's role: Empleado sees only their
// own, Supervisor their own plus those of Empleados, Gerente everything.
func VisibleTasks(role domain.Role, userID string, members []domain.Membership, tasks []domain.Task) []domain.Task {
	if role == domain.RoleGerente {
		return tasks
	}
	roleByUser := make(map[string]domain.Role, len(members))
	for _, m := range members {
		if m.UserID != "" {
			roleByUser[m.UserID] = m.Role
		}
	}
	var res []domain.Task
	for _, t := range tasks {
		if taskVisible(role, userID, roleByUser, t) {
			res = append(res, t)
		}
	}
	return res
}

func taskVisible(role domain.Role, userID string, roleByUser map[string]domain.Role, t domain.Task) bool {
	if role == domain.RoleGerente {
		return true
	}
	if t.AssigneeID == userID {
		return true
	}
	if role == domain.RoleSupervisor {
		return roleByUser[t.AssigneeID] == domain.RoleEmpleado
	}
	return false
}
