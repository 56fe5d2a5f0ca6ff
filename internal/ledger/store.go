package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"skindrop/internal/config"
)

var (
	// ErrNotConfigured indicates the ledger pool was not initialised.
	ErrNotConfigured = errors.New("ledger: pool not configured")
	// ErrUserNotFound indicates the requested user row does not exist.
	ErrUserNotFound = errors.New("ledger: user not found")
	// ErrSelfReferral indicates a user tried to refer themselves.
	ErrSelfReferral = errors.New("ledger: self-referral rejected")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS users (
        id             BIGSERIAL PRIMARY KEY,
        telegram_id    BIGINT UNIQUE NOT NULL,
        referred_by    BIGINT NULL,
        referrals      INTEGER NOT NULL DEFAULT 0,
        items_received TEXT NOT NULL DEFAULT '[]',
        steam_profile  TEXT NULL,
        trade_link     TEXT NULL,
        has_gift       BOOLEAN NOT NULL DEFAULT FALSE,
        gift_item      TEXT NULL
    );`

	selectUserSQL = `SELECT telegram_id, referred_by, referrals, items_received,
        steam_profile, trade_link, has_gift, gift_item
    FROM users WHERE telegram_id = $1;`

	insertUserSQL = `INSERT INTO users (telegram_id)
    VALUES ($1)
    ON CONFLICT (telegram_id) DO NOTHING;`

	selectUserForUpdateSQL = `SELECT telegram_id, referred_by, referrals, items_received,
        steam_profile, trade_link, has_gift, gift_item
    FROM users WHERE telegram_id = $1 FOR UPDATE;`

	setReferredBySQL = `UPDATE users SET referred_by = $2 WHERE telegram_id = $1;`

	incrementReferralsSQL = `UPDATE users SET referrals = referrals + 1
    WHERE telegram_id = $1 RETURNING referrals;`

	setGiftClaimedSQL = `UPDATE users SET has_gift = $2 WHERE telegram_id = $1;`

	setGiftItemSQL = `UPDATE users SET gift_item = $2,
        items_received = (items_received::jsonb || to_jsonb($2::text))::text
    WHERE telegram_id = $1;`

	setTradeDestinationSQL = `UPDATE users SET steam_profile = $2, trade_link = $3
    WHERE telegram_id = $1;`
)

// UserStore defines the transactional collaborator interface consumed by
// the eligibility machine and the request layer.
type UserStore interface {
	GetUser(ctx context.Context, telegramID int64) (User, error)
	CreateUser(ctx context.Context, telegramID int64) (User, bool, error)
	AddReferral(ctx context.Context, referrerID, invitedID int64) (int, bool, error)
	SetGiftClaimed(ctx context.Context, telegramID int64, claimed bool) error
	RecordGiftItem(ctx context.Context, telegramID int64, item string) error
	SetTradeDestination(ctx context.Context, telegramID int64, profile, tradeLink string) error
}

// Store is the PostgreSQL-backed user ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the users table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetUser fetches one user row by telegram id.
func (s *Store) GetUser(ctx context.Context, telegramID int64) (User, error) {
	pool, err := s.getPool()
	if err != nil {
		return User{}, err
	}
	return scanUser(pool.QueryRow(ctx, selectUserSQL, telegramID))
}

// CreateUser inserts a user row if absent and reports whether a new row
// was created.
func (s *Store) CreateUser(ctx context.Context, telegramID int64) (User, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return User{}, false, err
	}

	tag, err := pool.Exec(ctx, insertUserSQL, telegramID)
	if err != nil {
		return User{}, false, fmt.Errorf("create user: %w", err)
	}

	user, err := s.GetUser(ctx, telegramID)
	if err != nil {
		return User{}, false, err
	}
	return user, tag.RowsAffected() > 0, nil
}

// AddReferral binds invited to referrer and increments the referrer's
// count, all in one transaction. The binding is set at most once: a repeat
// or conflicting invitation is ignored and not counted. Self-referral is
// rejected outright. Returns the referrer's new count and whether the
// referral was counted.
func (s *Store) AddReferral(ctx context.Context, referrerID, invitedID int64) (int, bool, error) {
	if referrerID == invitedID {
		return 0, false, ErrSelfReferral
	}

	pool, err := s.getPool()
	if err != nil {
		return 0, false, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin referral tx: %w", err)
	}
	defer tx.Rollback(ctx)

	invited, err := scanUser(tx.QueryRow(ctx, selectUserForUpdateSQL, invitedID))
	if err != nil {
		return 0, false, err
	}

	referrer, err := scanUser(tx.QueryRow(ctx, selectUserForUpdateSQL, referrerID))
	if err != nil {
		return 0, false, err
	}

	if invited.ReferredBy != nil {
		// Already bound; repeat or conflicting invitations never recount.
		return referrer.Referrals, false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, setReferredBySQL, invitedID, referrerID); err != nil {
		return 0, false, fmt.Errorf("bind referral: %w", err)
	}

	var newCount int
	if err := tx.QueryRow(ctx, incrementReferralsSQL, referrerID).Scan(&newCount); err != nil {
		return 0, false, fmt.Errorf("increment referrals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit referral tx: %w", err)
	}
	return newCount, true, nil
}

// SetGiftClaimed flips the one-shot gift flag.
func (s *Store) SetGiftClaimed(ctx context.Context, telegramID int64, claimed bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, setGiftClaimedSQL, telegramID, claimed)
	if err != nil {
		return fmt.Errorf("set gift claimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordGiftItem stores the granted item name and appends it to the
// received-items history.
func (s *Store) RecordGiftItem(ctx context.Context, telegramID int64, item string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, setGiftItemSQL, telegramID, item)
	if err != nil {
		return fmt.Errorf("record gift item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetTradeDestination binds the user's Steam profile and trade link.
func (s *Store) SetTradeDestination(ctx context.Context, telegramID int64, profile, tradeLink string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, setTradeDestinationSQL, telegramID, profile, tradeLink)
	if err != nil {
		return fmt.Errorf("set trade destination: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(
		&u.TelegramID,
		&u.ReferredBy,
		&u.Referrals,
		&u.ItemsJSON,
		&u.SteamProfile,
		&u.TradeLink,
		&u.HasGift,
		&u.GiftItem,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

var _ UserStore = (*Store)(nil)
