package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
    id SERIAL PRIMARY KEY,
    username TEXT UNIQUE NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    email TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    is_admin BOOLEAN NOT NULL DEFAULT false,
    email_notifications BOOLEAN NOT NULL DEFAULT true,
    notify_new_issues BOOLEAN NOT NULL DEFAULT true,
    notify_new_hints BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS issues (
    id SERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    pdf_filename TEXT,
    available_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS puzzles (
    id SERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    answer_hash TEXT NOT NULL,
    issue_id INTEGER REFERENCES issues(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS hints (
    id SERIAL PRIMARY KEY,
    puzzle_id INTEGER NOT NULL REFERENCES puzzles(id) ON DELETE CASCADE,
    hint_text TEXT NOT NULL,
    unlock_date DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
    id SERIAL PRIMARY KEY,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    puzzle_id INTEGER NOT NULL REFERENCES puzzles(id) ON DELETE CASCADE,
    submitted_answer TEXT NOT NULL,
    is_correct BOOLEAN NOT NULL,
    submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS submissions_user_puzzle_idx ON submissions (user_id, puzzle_id);
CREATE UNIQUE INDEX IF NOT EXISTS submissions_one_correct_idx ON submissions (user_id, puzzle_id) WHERE is_correct;
CREATE INDEX IF NOT EXISTS issues_available_at_idx ON issues (available_at);
CREATE INDEX IF NOT EXISTS hints_unlock_date_idx ON hints (unlock_date);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return err
	}

	// Adding notified_at to an existing schema marks content that is already
	// live as announced, so the poller only picks up what goes live later.
	// Hint dates are compared on the UTC calendar, like everywhere else.
	alters := `
DO $$ BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns WHERE table_name='issues' AND column_name='notified_at'
    ) THEN
        ALTER TABLE issues ADD COLUMN notified_at TIMESTAMPTZ;
        UPDATE issues SET notified_at = NOW() WHERE available_at <= NOW();
    END IF;
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns WHERE table_name='hints' AND column_name='notified_at'
    ) THEN
        ALTER TABLE hints ADD COLUMN notified_at TIMESTAMPTZ;
        UPDATE hints SET notified_at = NOW() WHERE unlock_date <= (NOW() AT TIME ZONE 'UTC')::date;
    END IF;
END $$;`
	_, err := db.ExecContext(ctx, alters)
	return err
}
