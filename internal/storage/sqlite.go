package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "eventbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (creating if needed) the sqlite store at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if log.IsZero() {
		log = logx.Nop()
	}
	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- events ----

func (s *sqliteStore) PutEvent(ctx context.Context, r EventRecord) error {
	var ping any
	if r.PingMessageID != 0 {
		ping = r.PingMessageID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(uuid, start, duration_sec, recurrence, title, details, channel_id, message_id, ping_message_id)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(uuid) DO UPDATE SET
		   start=excluded.start, duration_sec=excluded.duration_sec,
		   recurrence=excluded.recurrence, title=excluded.title,
		   details=excluded.details, channel_id=excluded.channel_id,
		   message_id=excluded.message_id, ping_message_id=excluded.ping_message_id`,
		r.UUID, r.Start.Format(time.RFC3339Nano), int64(r.Duration/time.Second),
		r.Recurrence, r.Title, r.Details, r.ChannelID, r.MessageID, ping,
	)
	return err
}

func (s *sqliteStore) GetEvent(ctx context.Context, uuid string) (EventRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT uuid, start, duration_sec, recurrence, title, details, channel_id, message_id, ping_message_id
		 FROM events WHERE uuid = ?`, uuid)
	r, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return EventRecord{}, false, nil
	}
	if err != nil {
		return EventRecord{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) DeleteEvent(ctx context.Context, uuid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE uuid = ?`, uuid)
	return err
}

func (s *sqliteStore) ListEvents(ctx context.Context) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid, start, duration_sec, recurrence, title, details, channel_id, message_id, ping_message_id
		 FROM events ORDER BY start`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		r, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanEvent(row rowScanner) (EventRecord, error) {
	var (
		r        EventRecord
		startStr string
		durSec   int64
		ping     sql.NullInt64
	)
	err := row.Scan(&r.UUID, &startStr, &durSec, &r.Recurrence, &r.Title, &r.Details, &r.ChannelID, &r.MessageID, &ping)
	if err != nil {
		return EventRecord{}, err
	}
	r.Start, err = time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return EventRecord{}, fmt.Errorf("event %s: bad start %q: %w", r.UUID, startStr, err)
	}
	r.Duration = time.Duration(durSec) * time.Second
	if ping.Valid {
		r.PingMessageID = int(ping.Int64)
	}
	return r, nil
}

// ---- chat settings ----

func (s *sqliteStore) ChatSettings(ctx context.Context, chatID int64) (ChatSettings, bool, error) {
	var (
		cs       ChatSettings
		adminRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, admin_ids, event_channel_id FROM chat_settings WHERE chat_id = ?`, chatID).
		Scan(&cs.ChatID, &adminRaw, &cs.EventChannelID)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatSettings{}, false, nil
	}
	if err != nil {
		return ChatSettings{}, false, err
	}
	if err := json.Unmarshal([]byte(adminRaw), &cs.AdminIDs); err != nil {
		return ChatSettings{}, false, fmt.Errorf("chat %d: bad admin_ids: %w", chatID, err)
	}
	return cs, true, nil
}

func (s *sqliteStore) PutChatSettings(ctx context.Context, cs ChatSettings) error {
	adminRaw, err := json.Marshal(cs.AdminIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_settings(chat_id, admin_ids, event_channel_id) VALUES(?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET admin_ids=excluded.admin_ids, event_channel_id=excluded.event_channel_id`,
		cs.ChatID, string(adminRaw), cs.EventChannelID,
	)
	return err
}

// ---- notification groups ----

func (s *sqliteStore) CreateGroup(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO groups(name) VALUES(?)`, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GroupByName(ctx context.Context, name string) (GroupRow, bool, error) {
	var g GroupRow
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM groups WHERE name = ?`, name).Scan(&g.ID, &g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return GroupRow{}, false, nil
	}
	if err != nil {
		return GroupRow{}, false, err
	}
	return g, true, nil
}

func (s *sqliteStore) ListGroups(ctx context.Context) ([]GroupRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GroupRow
	for rows.Next() {
		var g GroupRow
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *sqliteStore) RenameGroup(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE groups SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteGroup(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members(group_id, user_id) VALUES(?,?)
		 ON CONFLICT(group_id, user_id) DO NOTHING`, groupID, userID)
	return err
}

func (s *sqliteStore) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	return err
}

func (s *sqliteStore) IsGroupMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) GroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
