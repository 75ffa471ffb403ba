package memory

import (
	"context"
	"sync"
)

// ProfileRepository keeps teacher time zones in a map.
type ProfileRepository struct {
	mu        sync.RWMutex
	timezones map[int64]string
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{timezones: make(map[int64]string)}
}

func (r *ProfileRepository) SetTeacherTimezone(teacherID int64, tz string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timezones[teacherID] = tz
}

func (r *ProfileRepository) TeacherTimezone(_ context.Context, teacherID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timezones[teacherID], nil
}
