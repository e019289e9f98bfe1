package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Setup creates the schema if it does not exist and seeds the three
// bootstrap accounts. Statements are idempotent so it is safe to run
// on every startup.
func Setup(ctx context.Context, conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('ADMIN', 'TEACHER', 'STUDENT'))
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		// One group per student: user_id alone is the primary key, so
		// setting a group replaces the previous membership.
		`CREATE TABLE IF NOT EXISTS group_members (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS tests (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			total_marks INTEGER,
			attempts INTEGER NOT NULL CHECK (attempts > 0),
			creator_id BIGINT REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id BIGSERIAL PRIMARY KEY,
			test_id BIGINT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('SINGLE', 'MULTI'))
		)`,
		`CREATE TABLE IF NOT EXISTS answers (
			id BIGSERIAL PRIMARY KEY,
			question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			is_correct BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS assignments (
			student_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			test_id BIGINT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
			assigner_id BIGINT NOT NULL REFERENCES users(id),
			remaining_attempts INTEGER NOT NULL CHECK (remaining_attempts >= 0),
			PRIMARY KEY (student_id, test_id)
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id BIGSERIAL PRIMARY KEY,
			student_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			test_id BIGINT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS student_answers (
			id BIGSERIAL PRIMARY KEY,
			attempt_id BIGINT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
			question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			selected_answer_id BIGINT REFERENCES answers(id)
		)`,
		`CREATE TABLE IF NOT EXISTS auth_sessions (
			token TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_test ON questions(test_id)`,
		`CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_pair ON attempts(student_id, test_id)`,
		`CREATE INDEX IF NOT EXISTS idx_student_answers_attempt ON student_answers(attempt_id)`,
		`INSERT INTO users (name, username, password, role)
			VALUES ('Admin User', 'admin', 'admin', 'ADMIN')
			ON CONFLICT (username) DO NOTHING`,
		`INSERT INTO users (name, username, password, role)
			VALUES ('Teacher User', 'teacher', 'teacher', 'TEACHER')
			ON CONFLICT (username) DO NOTHING`,
		`INSERT INTO users (name, username, password, role)
			VALUES ('Student User', 'student', 'student', 'STUDENT')
			ON CONFLICT (username) DO NOTHING`,
	}

	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("setup schema: %w", err)
		}
	}
	return nil
}
