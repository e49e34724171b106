// Package memory persists the per-session conversation log and short-lived
// "active context" records. Reads and writes are best-effort from the
// orchestrator's point of view: a memory failure never interrupts a request.
// Supports PostgreSQL and SQLite via database/sql.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	// Database drivers
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/finsightai/finsight/pkg/intents"
	"github.com/finsightai/finsight/pkg/model"
)

// Store is the SQL-backed memory layer.
type Store struct {
	db      *sql.DB
	dialect string // "postgres" or "sqlite"
	mu      sync.Mutex
	now     func() time.Time
}

const createMessagesTableSQLite = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    turn_index INTEGER NOT NULL,
    role VARCHAR(50) NOT NULL,
    content TEXT NOT NULL,
    intent VARCHAR(64),
    entities TEXT,
    sql_executed TEXT,
    result_summary TEXT,
    execution_time_ms REAL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, turn_index);
CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id);
`

const createMessagesTablePostgres = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id SERIAL PRIMARY KEY,
    session_id VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    turn_index BIGINT NOT NULL,
    role VARCHAR(50) NOT NULL,
    content TEXT NOT NULL,
    intent VARCHAR(64),
    entities TEXT,
    sql_executed TEXT,
    result_summary TEXT,
    execution_time_ms DOUBLE PRECISION,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, turn_index);
CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id);
`

const createContextsTableSQL = `
CREATE TABLE IF NOT EXISTS session_contexts (
    session_id VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    context_type VARCHAR(64) NOT NULL,
    context_value TEXT NOT NULL,
    relevance_score REAL NOT NULL,
    ttl_minutes INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, context_type)
);
`

// NewStore wires the memory schema onto an existing database handle.
func NewStore(db *sql.DB, dialect string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, sqlite)", dialect)
	}

	s := &Store{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize memory schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messagesSQL := createMessagesTableSQLite
	if s.dialect == "postgres" {
		messagesSQL = createMessagesTablePostgres
	}

	if _, err := s.db.ExecContext(ctx, messagesSQL); err != nil {
		return fmt.Errorf("failed to create chat_messages table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createContextsTableSQL); err != nil {
		return fmt.Errorf("failed to create session_contexts table: %w", err)
	}
	return nil
}

// placeholder renders the nth positional placeholder for the dialect.
func (s *Store) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// StoreMessage appends one conversation turn. Turn indexes are assigned per
// session under the store lock, so user and assistant turns observe strict
// happens-before within one session.
func (s *Store) StoreMessage(ctx context.Context, rec *model.MemoryRecord) error {
	if rec == nil || rec.SessionID == "" || rec.UserID == "" {
		return fmt.Errorf("memory record requires session and user ids")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next int
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(turn_index), -1) + 1 FROM chat_messages WHERE session_id = %s", s.placeholder(1)),
		rec.SessionID)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("failed to assign turn index: %w", err)
	}

	var entitiesJSON any
	if rec.Entities != nil {
		data, err := json.Marshal(rec.Entities)
		if err == nil {
			entitiesJSON = string(data)
		}
	}

	query := fmt.Sprintf(`INSERT INTO chat_messages
(session_id, user_id, turn_index, role, content, intent, entities, sql_executed, result_summary, execution_time_ms, created_at)
VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8),
		s.placeholder(9), s.placeholder(10), s.placeholder(11))

	_, err := s.db.ExecContext(ctx, query,
		rec.SessionID, rec.UserID, next, rec.Role, rec.Content,
		string(rec.Intent), entitiesJSON, nullable(rec.SQLExecuted),
		nullable(rec.ResultSummary), rec.ExecutionTimeMS, s.now())
	if err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RecentMessages returns the session's last n turns, oldest first.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, n int) ([]model.MemoryRecord, error) {
	if n <= 0 {
		n = 10
	}

	query := fmt.Sprintf(`SELECT session_id, user_id, turn_index, role, content, intent, entities, sql_executed, result_summary, execution_time_ms, created_at
FROM chat_messages
WHERE session_id = %s
ORDER BY turn_index DESC
LIMIT %s`, s.placeholder(1), s.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MemoryRecord
	for rows.Next() {
		var rec model.MemoryRecord
		var intentStr string
		var entitiesJSON, sqlExecuted, resultSummary sql.NullString
		var execMS sql.NullFloat64
		if err := rows.Scan(&rec.SessionID, &rec.UserID, &rec.TurnIndex, &rec.Role,
			&rec.Content, &intentStr, &entitiesJSON, &sqlExecuted, &resultSummary,
			&execMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Intent = intents.Intent(intentStr)
		if entitiesJSON.Valid && entitiesJSON.String != "" {
			var ents model.Entities
			if json.Unmarshal([]byte(entitiesJSON.String), &ents) == nil {
				rec.Entities = &ents
			}
		}
		rec.SQLExecuted = sqlExecuted.String
		rec.ResultSummary = resultSummary.String
		rec.ExecutionTimeMS = execMS.Float64
		out = append(out, rec)
	}

	// Reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// ActiveContext is one short-lived per-session context record.
type ActiveContext struct {
	SessionID      string         `json:"session_id"`
	ContextType    string         `json:"context_type"`
	ContextValue   map[string]any `json:"context_value"`
	RelevanceScore float64        `json:"relevance_score"`
	TTLMinutes     int            `json:"ttl_minutes"`
	CreatedAt      time.Time      `json:"created_at"`
}

// StoreContext upserts an active-context record keyed by (session,
// context_type).
func (s *Store) StoreContext(ctx context.Context, userID string, ac *ActiveContext) error {
	if ac == nil || ac.SessionID == "" || ac.ContextType == "" {
		return fmt.Errorf("active context requires session id and type")
	}
	if ac.TTLMinutes <= 0 {
		ac.TTLMinutes = 30
	}

	value, err := json.Marshal(ac.ContextValue)
	if err != nil {
		return fmt.Errorf("failed to encode context value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	del := fmt.Sprintf("DELETE FROM session_contexts WHERE session_id = %s AND context_type = %s",
		s.placeholder(1), s.placeholder(2))
	if _, err := s.db.ExecContext(ctx, del, ac.SessionID, ac.ContextType); err != nil {
		return err
	}

	ins := fmt.Sprintf(`INSERT INTO session_contexts
(session_id, user_id, context_type, context_value, relevance_score, ttl_minutes, created_at)
VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7))
	_, err = s.db.ExecContext(ctx, ins,
		ac.SessionID, userID, ac.ContextType, string(value), ac.RelevanceScore, ac.TTLMinutes, s.now())
	return err
}

// ActiveContexts returns the session's unexpired context records.
func (s *Store) ActiveContexts(ctx context.Context, sessionID string) ([]ActiveContext, error) {
	query := fmt.Sprintf(`SELECT session_id, context_type, context_value, relevance_score, ttl_minutes, created_at
FROM session_contexts
WHERE session_id = %s
ORDER BY relevance_score DESC`, s.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := s.now()
	var out []ActiveContext
	for rows.Next() {
		var ac ActiveContext
		var value string
		if err := rows.Scan(&ac.SessionID, &ac.ContextType, &value,
			&ac.RelevanceScore, &ac.TTLMinutes, &ac.CreatedAt); err != nil {
			return nil, err
		}
		if now.After(ac.CreatedAt.Add(time.Duration(ac.TTLMinutes) * time.Minute)) {
			continue
		}
		_ = json.Unmarshal([]byte(value), &ac.ContextValue)
		out = append(out, ac)
	}
	return out, rows.Err()
}

// Close closes the database handle that was passed to NewStore, including
// for any other user of that handle, so call it at shutdown only.
func (s *Store) Close() error {
	return s.db.Close()
}
