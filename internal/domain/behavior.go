package domain

import "time"

type Behavior struct {
	ID        int64                  `json:"id" db:"id"`
	Module    string                 `json:"module" db:"module"`
	Msg       string                 `json:"msg" db:"msg"`
	Data      map[string]interface{} `json:"data,omitempty" db:"-"`
	CreatedAt time.Time              `json:"createdAt" db:"created_at"`
}
