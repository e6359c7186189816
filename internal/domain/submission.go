package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Submission описывает одну запись о загруженном файле
type Submission struct {
	ID          int64     `json:"id" db:"id"`
	TaskKey     string    `json:"taskKey" db:"task_key"`
	TaskName    string    `json:"taskName" db:"task_name"`
	Name        string    `json:"name" db:"name"`
	OriginName  string    `json:"originName" db:"origin_name"`
	Hash        string    `json:"hash" db:"hash"`
	Size        int64     `json:"size" db:"size"`
	LegacyKey   string    `json:"categoryKey" db:"category_key"`
	PersonName  string    `json:"people" db:"people"`
	Info        InfoList  `json:"info" db:"info"`
	OwnerID     string    `json:"userId" db:"user_id"`
	SubmittedAt time.Time `json:"date" db:"date"`
}

// ContentTriple идентифицирует физическое содержимое
type ContentTriple struct {
	TaskKey string
	Hash    string
	Name    string
}

func (s Submission) Triple() ContentTriple {
	return ContentTriple{TaskKey: s.TaskKey, Hash: s.Hash, Name: s.Name}
}

func (s Submission) IsLegacy() bool {
	return s.LegacyKey != ""
}

func (t ContentTriple) String() string {
	return t.TaskKey + "/" + t.Hash + "/" + t.Name
}

// InfoItem одна пара поле/значение формы
type InfoItem struct {
	Label string `json:"text"`
	Value string `json:"value"`
}

// InfoList хранится в колонке info как JSON
type InfoList []InfoItem

func (l InfoList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *InfoList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = InfoList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported info type %T", src)
	}
	if len(raw) == 0 {
		*l = InfoList{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

// UnmarshalJSON принимает как массив, так и строку с JSON-массивом
func (l *InfoList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*l = InfoList{}
			return nil
		}
		data = []byte(s)
	}
	var items []InfoItem
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// SubmissionFilter: пустые поля не участвуют в отборе.
// PersonName указатель, так как пустое имя тоже валидный фильтр.
type SubmissionFilter struct {
	IDs        []int64
	TaskKey    string
	TaskName   string
	Name       string
	Hash       string
	PersonName *string
	OwnerID    string
}

// DownloadLink результат выдачи ссылки на скачивание
type DownloadLink struct {
	Link     string   `json:"link"`
	MimeType string   `json:"mimeType,omitempty"`
	Info     InfoList `json:"info,omitempty"`
}
