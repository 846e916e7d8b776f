package convo

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is RFC 3339 with a fixed-width fraction so that stored
// timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists conversation messages, per-conversation modes, and
// the watcher ledger in a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "aihub.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that
// haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Messages ---

// Append stores one message. Missing IDs and timestamps are filled in.
func (s *Store) Append(m Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Modality == "" {
		m.Modality = ModalityText
	}

	var author any
	if m.AuthorID != "" {
		author = m.AuthorID
	}
	_, err := s.db.Exec(`
		INSERT INTO messages (id, conversation_id, author_id, role, content, modality, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, author, string(m.Role), m.Content, string(m.Modality),
		m.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// Recent returns the last limit messages of a conversation,
// oldest first.
func (s *Store) Recent(conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, author_id, role, content, modality, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Volume returns the total stored content length of a conversation in
// characters.
func (s *Store) Volume(conversationID string) (int, error) {
	var n sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(LENGTH(content)) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("querying volume: %w", err)
	}
	return int(n.Int64), nil
}

// Compact atomically replaces every message older than the keep most
// recent ones with a single system-role summary. The summary is
// timestamped just before the retained tail so chronological reads see
// it first. No-op when nothing older exists.
func (s *Store) Compact(conversationID string, keep int, summary string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning compact transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		delRes    sql.Result
		summaryAt time.Time
	)
	if keep > 0 {
		var boundaryRowID int64
		var boundaryAt string
		err = tx.QueryRow(`
			SELECT rowid, created_at FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT 1 OFFSET ?`,
			conversationID, keep-1,
		).Scan(&boundaryRowID, &boundaryAt)
		if err == sql.ErrNoRows {
			return nil // fewer than keep messages, nothing older
		}
		if err != nil {
			return fmt.Errorf("finding compact boundary: %w", err)
		}

		boundary, err := time.Parse(time.RFC3339Nano, boundaryAt)
		if err != nil {
			return fmt.Errorf("parsing boundary timestamp: %w", err)
		}
		summaryAt = boundary.Add(-time.Microsecond)

		delRes, err = tx.Exec(`
			DELETE FROM messages WHERE conversation_id = ?
			AND (created_at < ? OR (created_at = ? AND rowid < ?))`,
			conversationID, boundaryAt, boundaryAt, boundaryRowID,
		)
		if err != nil {
			return fmt.Errorf("deleting compacted messages: %w", err)
		}
	} else {
		summaryAt = time.Now()
		delRes, err = tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID)
		if err != nil {
			return fmt.Errorf("deleting compacted messages: %w", err)
		}
	}

	deleted, err := delRes.RowsAffected()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return nil
	}

	_, err = tx.Exec(`
		INSERT INTO messages (id, conversation_id, author_id, role, content, modality, created_at)
		VALUES (?, ?, NULL, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, string(RoleSystem), summary, string(ModalityText),
		summaryAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting summary message: %w", err)
	}
	return tx.Commit()
}

func scanMessage(rows *sql.Rows) (Message, error) {
	var m Message
	var author sql.NullString
	var role, modality, createdAt string
	if err := rows.Scan(&m.ID, &m.ConversationID, &author, &role, &m.Content, &modality, &createdAt); err != nil {
		return Message{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Message{}, fmt.Errorf("parsing created_at: %w", err)
	}
	m.AuthorID = author.String
	m.Role = Role(role)
	m.Modality = Modality(modality)
	m.CreatedAt = t
	return m, nil
}

// --- Conversation modes ---

// SetMode records the handling mode a user chose for a conversation.
func (s *Store) SetMode(conversationID, mode string) error {
	_, err := s.db.Exec(`
		INSERT INTO conversation_modes (conversation_id, mode, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET mode = excluded.mode, updated_at = excluded.updated_at`,
		conversationID, mode, time.Now().UTC().Format(timeLayout),
	)
	return err
}

// Mode returns the stored mode for a conversation, or ErrNotFound.
func (s *Store) Mode(conversationID string) (string, error) {
	var mode string
	err := s.db.QueryRow(`SELECT mode FROM conversation_modes WHERE conversation_id = ?`, conversationID).Scan(&mode)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return mode, err
}

// --- Watcher ledger ---

// MarkProcessed records that a watcher item has been handled.
func (s *Store) MarkProcessed(source, itemID string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO processed_items (source, item_id, processed_at) VALUES (?, ?, ?)`,
		source, itemID, time.Now().UTC().Format(timeLayout),
	)
	return err
}

// Processed reports whether a watcher item was already handled.
func (s *Store) Processed(source, itemID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM processed_items WHERE source = ? AND item_id = ?`, source, itemID).Scan(&n)
	return n > 0, err
}
