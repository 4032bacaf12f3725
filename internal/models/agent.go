package models

import (
	"time"
)

// Agent statuses as reported by the fleet.
const (
	AgentIdle    = "idle"
	AgentWorking = "working"
	AgentOffline = "offline"
)

// Agent is an autonomous worker belonging to at most one department.
type Agent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Role         string      `json:"role"`
	Model        string      `json:"model"`
	Status       string      `json:"status"`
	HealthScore  int         `json:"health_score"`
	DepartmentID *string     `json:"department_id,omitempty"`
	LastActivity *time.Time  `json:"last_activity,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	Department   *Department `json:"department,omitempty"`
	ActiveTasks  int         `json:"active_tasks"`
	TotalTasks   int         `json:"total_tasks"`
}

// AgentEvent is an append-only audit row keyed by agent.
type AgentEvent struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name,omitempty"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Department groups agents and tasks.
type Department struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Icon        *string   `json:"icon,omitempty"`
	IsCore      bool      `json:"is_core"`
	CreatedAt   time.Time `json:"created_at"`
	AgentCount  int       `json:"agent_count"`
	ActiveTasks int       `json:"active_tasks"`
}

// User is a dashboard operator account. PasswordHash never serializes.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
