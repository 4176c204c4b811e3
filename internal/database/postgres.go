package database

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"roomchat/internal/models"
	"roomchat/pkg/logger"
)

//go:embed schema.sql
var schema string

type PostgresDB struct {
	pool *pgxpool.Pool
}

var _ Directory = (*PostgresDB)(nil)

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Rooms

const roomColumns = `id::text, name, description, visibility, password_hash, members, admins, created_by, created_at, updated_at`

func (db *PostgresDB) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1::uuid`, id)
	return scanRoom(row)
}

func (db *PostgresDB) FindRoomByName(ctx context.Context, name string) (*models.Room, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE name = $1 LIMIT 1`, name)
	return scanRoom(row)
}

func (db *PostgresDB) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []*models.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (db *PostgresDB) CreateRoom(ctx context.Context, data *models.NewRoom) (*models.Room, error) {
	members, err := storeParam(data.Members)
	if err != nil {
		return nil, err
	}
	admins, err := storeParam(data.Admins)
	if err != nil {
		return nil, err
	}
	createdBy, err := jsonParam(data.CreatedBy)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO rooms (name, description, visibility, password_hash, members, admins, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, NOW(), NOW())
		RETURNING ` + roomColumns

	row := db.pool.QueryRow(ctx, query,
		data.Name, data.Description, string(data.Visibility), data.PasswordHash, members, admins, createdBy,
	)
	room, err := scanRoom(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return room, nil
}

func (db *PostgresDB) MergeRoomFields(ctx context.Context, id string, f models.RoomFields) error {
	if f.Empty() {
		return nil
	}

	var (
		sets []string
		args = []any{id}
	)
	add := func(column, cast string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d%s", column, len(args), cast))
	}

	if f.Members != nil {
		v, err := storeParam(*f.Members)
		if err != nil {
			return err
		}
		add("members", "::jsonb", v)
	}
	if f.Admins != nil {
		v, err := storeParam(*f.Admins)
		if err != nil {
			return err
		}
		add("admins", "::jsonb", v)
	}
	if f.PasswordHash != nil {
		add("password_hash", "", *f.PasswordHash)
	}
	if f.Touch {
		sets = append(sets, "updated_at = NOW()")
	}

	query := `UPDATE rooms SET ` + strings.Join(sets, ", ") + ` WHERE id = $1::uuid`
	ct, err := db.pool.Exec(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) RemoveRoomMember(ctx context.Context, roomID, memberID string) error {
	query := `
		UPDATE rooms
		SET members = COALESCE(members, '{}'::jsonb) - $2::text, updated_at = NOW()
		WHERE id = $1::uuid`

	ct, err := db.pool.Exec(ctx, query, roomID, memberID)
	if err != nil {
		return translate(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Messages

func (db *PostgresDB) QueryMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id::text, room_id::text, content, sender, created_at
		FROM messages
		WHERE room_id = $1::uuid
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		msg := &models.Message{}
		var sender []byte
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Content, &sender, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(sender, &msg.Sender); err != nil {
			return nil, fmt.Errorf("decode message sender: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PostgresDB) AppendMessage(ctx context.Context, data *models.NewMessage) (*models.Message, error) {
	sender, err := jsonParam(data.Sender)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO messages (room_id, content, sender)
		VALUES ($1::uuid, $2, $3::jsonb)
		RETURNING id::text, created_at`

	msg := &models.Message{RoomID: data.RoomID, Content: data.Content, Sender: data.Sender}
	if err := db.pool.QueryRow(ctx, query, data.RoomID, data.Content, sender).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", translate(err))
	}
	return msg, nil
}

// Invitations

const invitationColumns = `id::text, room_id::text, room_name, email, token, status, COALESCE(pending_lookup_key, ''), created_by, created_at, accepted_at, accepted_by`

func (db *PostgresDB) QueryInvitationByField(ctx context.Context, field models.InvitationField, value string) (*models.Invitation, error) {
	var column string
	switch field {
	case models.InvitationByToken:
		column = "token"
	case models.InvitationByPendingKey:
		column = "pending_lookup_key"
	default:
		return nil, fmt.Errorf("unsupported invitation field %q", field)
	}

	row := db.pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE `+column+` = $1 LIMIT 1`, value)
	return scanInvitation(row)
}

func (db *PostgresDB) AppendInvitation(ctx context.Context, data *models.NewInvitation) (*models.Invitation, error) {
	createdBy, err := jsonParam(data.CreatedBy)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO invitations (room_id, room_name, email, token, status, pending_lookup_key, created_by)
		VALUES ($1::uuid, $2, $3, $4, $5, NULLIF($6, ''), $7::jsonb)
		RETURNING ` + invitationColumns

	row := db.pool.QueryRow(ctx, query,
		data.RoomID, data.RoomName, data.Email, data.Token, string(models.InvitationPending), data.PendingLookupKey, createdBy,
	)
	inv, err := scanInvitation(row)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (db *PostgresDB) MergeInvitationFields(ctx context.Context, id string, f models.InvitationFields) error {
	var (
		sets []string
		args = []any{id}
	)

	if f.Status != nil {
		args = append(args, string(*f.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.AcceptedBy != nil {
		v, err := jsonParam(*f.AcceptedBy)
		if err != nil {
			return err
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("accepted_by = $%d::jsonb", len(args)))
	}
	if f.StampAccepted {
		sets = append(sets, "accepted_at = NOW()")
	}
	if f.ClearPendingKey {
		sets = append(sets, "pending_lookup_key = NULL")
	}
	if len(sets) == 0 {
		return nil
	}

	ct, err := db.pool.Exec(ctx, `UPDATE invitations SET `+strings.Join(sets, ", ")+` WHERE id = $1::uuid`, args...)
	if err != nil {
		return translate(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PostgresDB) DeleteInvitation(ctx context.Context, id string) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM invitations WHERE id = $1::uuid`, id)
	if err != nil {
		return translate(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// helpers

func scanRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	var (
		visibility                 string
		members, admins, createdBy []byte
	)
	err := row.Scan(
		&room.ID, &room.Name, &room.Description, &visibility, &room.PasswordHash,
		&members, &admins, &createdBy, &room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}

	room.Visibility = models.ParseVisibility(visibility)
	if err := decodeStore(members, &room.Members); err != nil {
		return nil, err
	}
	if err := decodeStore(admins, &room.Admins); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(createdBy, &room.CreatedBy); err != nil {
		return nil, fmt.Errorf("decode room creator: %w", err)
	}
	return room, nil
}

func scanInvitation(row pgx.Row) (*models.Invitation, error) {
	inv := &models.Invitation{}
	var (
		status                string
		createdBy, acceptedBy []byte
	)
	err := row.Scan(
		&inv.ID, &inv.RoomID, &inv.RoomName, &inv.Email, &inv.Token, &status, &inv.PendingLookupKey,
		&createdBy, &inv.CreatedAt, &inv.AcceptedAt, &acceptedBy,
	)
	if err != nil {
		return nil, translate(err)
	}

	inv.Status = models.InvitationStatus(status)
	if err := json.Unmarshal(createdBy, &inv.CreatedBy); err != nil {
		return nil, fmt.Errorf("decode invitation creator: %w", err)
	}
	if len(acceptedBy) > 0 {
		var m models.Member
		if err := json.Unmarshal(acceptedBy, &m); err != nil {
			return nil, fmt.Errorf("decode invitation acceptor: %w", err)
		}
		inv.AcceptedBy = &m
	}
	return inv, nil
}

func decodeStore(raw []byte, dst *models.MemberStore) error {
	if len(raw) == 0 {
		*dst = models.MemberStore{}
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// storeParam encodes a member store for a jsonb parameter. Absent stores
// become SQL NULL.
func storeParam(s models.MemberStore) (*string, error) {
	if s.Shape == models.ShapeAbsent {
		return nil, nil
	}
	return jsonParam(s)
}

func jsonParam(v any) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	s := string(b)
	return &s, nil
}

// translate maps driver errors onto the directory sentinels. Malformed ids
// and dangling room references read as not found.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "22P02", "23503":
			return ErrNotFound
		}
	}
	return err
}
