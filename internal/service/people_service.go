package service

import (
	"context"
	"fmt"
	"strings"

	"filecollector/internal/domain"
)

type PeopleService struct {
	people PersonStore
	tasks  TaskStore
}

func NewPeopleService(people PersonStore, tasks TaskStore) *PeopleService {
	return &PeopleService{people: people, tasks: tasks}
}

// ImportResult итог загрузки списка участников
type ImportResult struct {
	Success int      `json:"success"`
	Fail    []string `json:"fail"`
}

func (s *PeopleService) List(ctx context.Context, ownerID, taskKey string) ([]domain.Person, error) {
	return s.people.Find(ctx, domain.PersonFilter{TaskKey: taskKey, OwnerID: ownerID})
}

func (s *PeopleService) Check(ctx context.Context, taskKey, name string) (bool, error) {
	if taskKey == "" || name == "" {
		return false, domain.ErrInvalidParams
	}
	people, err := s.people.Find(ctx, domain.PersonFilter{TaskKey: taskKey, Name: name})
	if err != nil {
		return false, err
	}
	return len(people) > 0, nil
}

// Import добавляет новых участников; уже существующие и повторы попадают в Fail
func (s *PeopleService) Import(ctx context.Context, ownerID, taskKey string, names []string) (*ImportResult, error) {
	task, err := s.tasks.GetByKey(ctx, taskKey)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != ownerID {
		return nil, fmt.Errorf("task %s: %w", taskKey, domain.ErrNotFound)
	}

	existing, err := s.people.Find(ctx, domain.PersonFilter{TaskKey: taskKey, OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		known[p.Name] = struct{}{}
	}

	result := &ImportResult{Fail: []string{}}
	var fresh []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := known[name]; ok {
			result.Fail = append(result.Fail, name)
			continue
		}
		known[name] = struct{}{}
		fresh = append(fresh, name)
	}

	if err := s.people.InsertNames(ctx, taskKey, ownerID, fresh); err != nil {
		return nil, err
	}
	result.Success = len(fresh)
	return result, nil
}
