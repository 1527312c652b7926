// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faceoff-gg/faceoff/internal/models"
)

// Postgres is the pgx-backed Store implementation.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres builds a pool from DATABASE_URL (or the POSTGRES_* pieces)
// and verifies connectivity.
func ConnectPostgres(ctx context.Context) (*Postgres, error) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		connStr = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			os.Getenv("PG_HOST"),
			os.Getenv("PG_PORT"),
			os.Getenv("PG_DATABASE"),
		)
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Pool exposes the underlying pgx pool for callers that run their own
// queries, like the historian's event sink.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const lobbyColumns = `id, code, status, max_players, current_players, countdown_start_time, created_at, updated_at`

func scanLobby(row pgx.Row) (*models.Lobby, error) {
	var l models.Lobby
	err := row.Scan(
		&l.ID, &l.Code, &l.Status, &l.MaxPlayers, &l.CurrentPlayers,
		&l.CountdownStartTime, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &l, nil
}

func (p *Postgres) InsertLobby(ctx context.Context, lobby *models.Lobby) error {
	q := `
	INSERT INTO lobbies (` + lobbyColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			lobby.ID, lobby.Code, lobby.Status, lobby.MaxPlayers, lobby.CurrentPlayers,
			lobby.CountdownStartTime, lobby.CreatedAt, lobby.UpdatedAt,
		)
		return err
	})
}

func (p *Postgres) GetLobbyByID(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1`
	return scanLobby(p.pool.QueryRow(ctx, q, id))
}

func (p *Postgres) GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error) {
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE code = $1`
	return scanLobby(p.pool.QueryRow(ctx, q, code))
}

func (p *Postgres) CodeExists(ctx context.Context, code string) (bool, error) {
	var tmp int
	err := p.pool.QueryRow(ctx, `SELECT 1 FROM lobbies WHERE code = $1 LIMIT 1`, code).Scan(&tmp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Postgres) UpdateLobby(ctx context.Context, lobby *models.Lobby) error {
	q := `
	UPDATE lobbies
	SET status=$2, current_players=$3, countdown_start_time=$4, updated_at=$5
	WHERE id=$1
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q,
			lobby.ID, lobby.Status, lobby.CurrentPlayers,
			lobby.CountdownStartTime, time.Now().UTC(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (p *Postgres) DeleteLobby(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM lobby_members WHERE lobby_id=$1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM lobbies WHERE id=$1`, id)
		return err
	})
}

func (p *Postgres) InsertMember(ctx context.Context, member *models.LobbyMember) error {
	q := `
	INSERT INTO lobby_members (lobby_id, device_id, is_ready, joined_at)
	VALUES ($1, $2, $3, $4)
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, member.LobbyID, member.DeviceID, member.IsReady, member.JoinedAt)
		return err
	})
}

func (p *Postgres) GetMemberByDevice(ctx context.Context, deviceID string) (*models.LobbyMember, error) {
	var m models.LobbyMember
	q := `SELECT lobby_id, device_id, is_ready, joined_at FROM lobby_members WHERE device_id = $1`
	err := p.pool.QueryRow(ctx, q, deviceID).Scan(&m.LobbyID, &m.DeviceID, &m.IsReady, &m.JoinedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (p *Postgres) ListMembers(ctx context.Context, lobbyID uuid.UUID) ([]models.LobbyMember, error) {
	q := `
	SELECT lobby_id, device_id, is_ready, joined_at
	FROM lobby_members
	WHERE lobby_id = $1
	ORDER BY joined_at
	`
	rows, err := p.pool.Query(ctx, q, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.LobbyMember
	for rows.Next() {
		var m models.LobbyMember
		if err := rows.Scan(&m.LobbyID, &m.DeviceID, &m.IsReady, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (p *Postgres) UpdateMemberReady(ctx context.Context, lobbyID uuid.UUID, deviceID string, isReady bool) error {
	q := `UPDATE lobby_members SET is_ready=$3 WHERE lobby_id=$1 AND device_id=$2`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, lobbyID, deviceID, isReady)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (p *Postgres) ResetMembersReady(ctx context.Context, lobbyID uuid.UUID) error {
	q := `UPDATE lobby_members SET is_ready=false WHERE lobby_id=$1`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, lobbyID)
		return err
	})
}

func (p *Postgres) DeleteMember(ctx context.Context, lobbyID uuid.UUID, deviceID string) error {
	q := `DELETE FROM lobby_members WHERE lobby_id=$1 AND device_id=$2`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, lobbyID, deviceID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (p *Postgres) InsertQueueEntry(ctx context.Context, entry *models.QueueEntry) error {
	q := `INSERT INTO matchmaking_queue (device_id, queue_time) VALUES ($1, $2)`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, entry.DeviceID, entry.QueueTime)
		return err
	})
}

func (p *Postgres) GetQueueEntry(ctx context.Context, deviceID string) (*models.QueueEntry, error) {
	var e models.QueueEntry
	q := `SELECT device_id, queue_time FROM matchmaking_queue WHERE device_id = $1`
	err := p.pool.QueryRow(ctx, q, deviceID).Scan(&e.DeviceID, &e.QueueTime)
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (p *Postgres) ListQueue(ctx context.Context) ([]models.QueueEntry, error) {
	q := `SELECT device_id, queue_time FROM matchmaking_queue ORDER BY queue_time`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		if err := rows.Scan(&e.DeviceID, &e.QueueTime); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *Postgres) DeleteQueueEntry(ctx context.Context, deviceID string) (bool, error) {
	var removed bool
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM matchmaking_queue WHERE device_id=$1`, deviceID)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected() > 0
		return nil
	})
	return removed, err
}

// PopOldestQueueEntry claims the oldest waiting entry inside one transaction.
// SKIP LOCKED keeps concurrent matchers from racing on the same row.
func (p *Postgres) PopOldestQueueEntry(ctx context.Context) (*models.QueueEntry, error) {
	var entry *models.QueueEntry
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
		SELECT device_id, queue_time
		FROM matchmaking_queue
		ORDER BY queue_time
		LIMIT 1
		FOR UPDATE SKIP LOCKED
		`
		var e models.QueueEntry
		err := tx.QueryRow(ctx, q).Scan(&e.DeviceID, &e.QueueTime)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM matchmaking_queue WHERE device_id=$1`, e.DeviceID); err != nil {
			return err
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (p *Postgres) DeleteQueueEntriesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var removed int
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM matchmaking_queue WHERE queue_time < $1`, cutoff)
		if err != nil {
			return err
		}
		removed = int(tag.RowsAffected())
		return nil
	})
	return removed, err
}

const playerColumns = `device_id, user_name, gold, diamond, elo, last_online, created_at, updated_at`

func (p *Postgres) InsertPlayer(ctx context.Context, player *models.Player) error {
	q := `
	INSERT INTO players (` + playerColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			player.DeviceID, player.UserName, player.Gold, player.Diamond, player.Elo,
			player.LastOnline, player.CreatedAt, player.UpdatedAt,
		)
		return err
	})
}

func (p *Postgres) GetPlayer(ctx context.Context, deviceID string) (*models.Player, error) {
	var pl models.Player
	q := `SELECT ` + playerColumns + ` FROM players WHERE device_id = $1`
	err := p.pool.QueryRow(ctx, q, deviceID).Scan(
		&pl.DeviceID, &pl.UserName, &pl.Gold, &pl.Diamond, &pl.Elo,
		&pl.LastOnline, &pl.CreatedAt, &pl.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &pl, nil
}

func (p *Postgres) GetPlayerNames(ctx context.Context, deviceIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return names, nil
	}
	q := `SELECT device_id, user_name FROM players WHERE device_id = ANY($1) AND user_name IS NOT NULL`
	rows, err := p.pool.Query(ctx, q, deviceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var deviceID, name string
		if err := rows.Scan(&deviceID, &name); err != nil {
			return nil, err
		}
		names[deviceID] = name
	}
	return names, rows.Err()
}

func (p *Postgres) UpdatePlayerUsername(ctx context.Context, deviceID, username string) error {
	q := `UPDATE players SET user_name=$2, updated_at=$3 WHERE device_id=$1`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, deviceID, username, time.Now().UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (p *Postgres) TouchPlayer(ctx context.Context, deviceID string) error {
	q := `UPDATE players SET last_online=$2 WHERE device_id=$1`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, deviceID, time.Now().UTC())
		return err
	})
}

func (p *Postgres) UsernameTaken(ctx context.Context, username, excludeDeviceID string) (bool, error) {
	var tmp int
	q := `SELECT 1 FROM players WHERE user_name = $1 AND device_id <> $2 LIMIT 1`
	err := p.pool.QueryRow(ctx, q, username, excludeDeviceID).Scan(&tmp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Postgres) DeletePlayer(ctx context.Context, deviceID string) error {
	q := `DELETE FROM players WHERE device_id=$1`
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, deviceID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
