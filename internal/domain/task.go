package domain

import "time"

type Task struct {
	ID          int64     `json:"id" db:"id"`
	Key         string    `json:"key" db:"k"`
	Name        string    `json:"name" db:"name"`
	OwnerID     string    `json:"userId" db:"user_id"`
	LimitPeople bool      `json:"limitPeople" db:"limit_people"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

const (
	PersonPending   = 0
	PersonSubmitted = 1
)

type Person struct {
	ID             int64      `json:"id" db:"id"`
	TaskKey        string     `json:"taskKey" db:"task_key"`
	OwnerID        string     `json:"userId" db:"user_id"`
	Name           string     `json:"name" db:"name"`
	Status         int        `json:"status" db:"status"`
	SubmitCount    int        `json:"count" db:"submit_count"`
	LastSubmitDate *time.Time `json:"lastDate,omitempty" db:"submit_date"`
}

type PersonFilter struct {
	TaskKey string
	Name    string
	OwnerID string
}

// PersonUpdate: nil поля не изменяются
type PersonUpdate struct {
	Status         *int
	SubmitCountInc int
	LastSubmitDate *time.Time
}
