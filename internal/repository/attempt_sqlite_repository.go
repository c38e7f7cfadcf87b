package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"quizo/internal/model"
)

// SQLiteAttemptRepository 本地文件存储，表结构由 pkg/database 的内嵌迁移创建
type SQLiteAttemptRepository struct {
	sqlDB *sql.DB
}

func NewSQLiteAttemptRepository(sqlDB *sql.DB) *SQLiteAttemptRepository {
	return &SQLiteAttemptRepository{sqlDB: sqlDB}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func (r *SQLiteAttemptRepository) Append(ctx context.Context, attempt *model.Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil || r.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	createdAt := attempt.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var selected sql.NullString
	if attempt.SelectedAnswer != nil {
		selected = sql.NullString{String: *attempt.SelectedAnswer, Valid: true}
	}

	correct := 0
	if attempt.Correct {
		correct = 1
	}

	res, err := r.sqlDB.ExecContext(
		ctx,
		`INSERT INTO attempts (
		   session_id,
		   question,
		   selected_answer,
		   correct,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?)`,
		attempt.SessionID,
		attempt.Question,
		selected,
		correct,
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read attempt id: %w", err)
	}
	attempt.ID = uint(id)
	attempt.CreatedAt = fromMillis(toMillis(createdAt))
	return nil
}

func (r *SQLiteAttemptRepository) Recent(ctx context.Context, limit int) ([]model.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r == nil || r.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := r.sqlDB.QueryContext(
		ctx,
		`SELECT id, session_id, question, selected_answer, correct, created_at
		   FROM attempts
		  ORDER BY id DESC
		  LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var (
			a         model.Attempt
			id        int64
			selected  sql.NullString
			correct   int
			createdAt int64
		)
		if err := rows.Scan(&id, &a.SessionID, &a.Question, &selected, &correct, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.ID = uint(id)
		if selected.Valid {
			v := selected.String
			a.SelectedAnswer = &v
		}
		a.Correct = correct != 0
		a.CreatedAt = fromMillis(createdAt)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

func (r *SQLiteAttemptRepository) Ping(ctx context.Context) error {
	if r == nil || r.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return r.sqlDB.PingContext(ctx)
}

func (r *SQLiteAttemptRepository) Close() error {
	if r == nil || r.sqlDB == nil {
		return nil
	}
	return r.sqlDB.Close()
}
