package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// Store is a local sqlite cache of the SSI list. The roster collaborator
// writes it as it receives SSI updates; the message core only reads it.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the roster database at path. Use ":memory:" for
// a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster database: %w", err)
	}

	// An in-memory database exists per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ssi_items (
		group_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		item_type INTEGER NOT NULL,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		awaiting_auth INTEGER NOT NULL DEFAULT 0,
		alias TEXT,
		attrs BLOB,
		PRIMARY KEY (group_id, item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_ssi_items_name ON ssi_items(normalized_name);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Save adds or replaces an entry.
func (s *Store) Save(ctx context.Context, c Contact) error {
	attrs, err := c.Attrs.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	query := `
		INSERT INTO ssi_items (
			group_id, item_id, item_type, name, normalized_name,
			awaiting_auth, alias, attrs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, item_id) DO UPDATE SET
			item_type = excluded.item_type,
			name = excluded.name,
			normalized_name = excluded.normalized_name,
			awaiting_auth = excluded.awaiting_auth,
			alias = excluded.alias,
			attrs = excluded.attrs
	`

	_, err = s.db.ExecContext(ctx, query,
		c.GroupID,
		c.ItemID,
		c.Type.WireTag(),
		c.Name,
		NormalizeHandle(c.Name),
		boolToInt(c.AwaitingAuth),
		c.Alias,
		attrs,
	)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}

	return nil
}

// Get retrieves an entry by its SSI identity.
func (s *Store) Get(ctx context.Context, groupID, itemID uint16) (*Contact, error) {
	query := `
		SELECT group_id, item_id, item_type, name, awaiting_auth, alias, attrs
		FROM ssi_items WHERE group_id = ? AND item_id = ?
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, groupID, itemID))
}

// LookupByHandle returns the entry that decides how messages from handle are
// treated. When a handle appears more than once, an Ignore entry wins over an
// Invisible entry, which wins over a Buddy entry.
func (s *Store) LookupByHandle(ctx context.Context, handle string) (*Contact, error) {
	query := `
		SELECT group_id, item_id, item_type, name, awaiting_auth, alias, attrs
		FROM ssi_items
		WHERE normalized_name = ? AND item_type IN (?, ?, ?)
		ORDER BY CASE item_type
			WHEN ? THEN 0
			WHEN ? THEN 1
			ELSE 2
		END, group_id, item_id
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query,
		NormalizeHandle(handle),
		ItemIgnore.WireTag(), ItemInvisible.WireTag(), ItemBuddy.WireTag(),
		ItemIgnore.WireTag(), ItemInvisible.WireTag(),
	)
	return s.scanOne(row)
}

// All returns every entry ordered by group and item id.
func (s *Store) All(ctx context.Context) ([]*Contact, error) {
	query := `
		SELECT group_id, item_id, item_type, name, awaiting_auth, alias, attrs
		FROM ssi_items
		ORDER BY group_id ASC, item_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, groupID, itemID uint16) error {
	query := `DELETE FROM ssi_items WHERE group_id = ? AND item_id = ?`
	result, err := s.db.ExecContext(ctx, query, groupID, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOne(row *sql.Row) (*Contact, error) {
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func scanContact(row scanner) (*Contact, error) {
	var c Contact
	var tag uint16
	var awaitingAuth int
	var alias sql.NullString
	var attrs []byte

	if err := row.Scan(&c.GroupID, &c.ItemID, &tag, &c.Name, &awaitingAuth, &alias, &attrs); err != nil {
		return nil, err
	}

	itemType, err := ItemTypeFromWire(tag)
	if err != nil {
		return nil, err
	}
	c.Type = itemType
	c.AwaitingAuth = intToBool(awaitingAuth)
	c.Alias = alias.String

	if len(attrs) > 0 {
		if c.Attrs, err = wire.ParseTLVChain(attrs); err != nil {
			return nil, fmt.Errorf("failed to decode attributes: %w", err)
		}
	}

	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
