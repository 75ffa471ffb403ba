package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository читает часовой пояс учителя из профиля (только чтение)
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// TeacherTimezone возвращает сохранённую зону или пустую строку
func (r *ProfileRepository) TeacherTimezone(ctx context.Context, teacherID int64) (string, error) {
	query := `SELECT COALESCE(timezone, '') FROM teacher_profiles WHERE teacher_id = $1`

	var tz string
	err := r.pool.QueryRow(ctx, query, teacherID).Scan(&tz)
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("get teacher timezone: %w", err)
	}

	return tz, nil
}
