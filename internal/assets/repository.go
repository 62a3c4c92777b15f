package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vnmarket/internal/classify"
	"vnmarket/internal/provider"
)

// ErrNotFound is returned when no asset is stored under a symbol.
var ErrNotFound = errors.New("asset not found")

// Asset is one tracked symbol.
type Asset struct {
	ID        string             `json:"id"`
	Symbol    string             `json:"symbol"`
	Name      string             `json:"name"`
	AssetType provider.AssetType `json:"asset_type"`
	Exchange  string             `json:"exchange"`
	Currency  string             `json:"currency"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Repository stores assets in the vn_assets table, one row per symbol.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new asset repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Upsert inserts a by symbol or updates the existing row's metadata, keeping
// its id and creation time. It returns the stored asset.
func (r *Repository) Upsert(ctx context.Context, a Asset) (Asset, error) {
	a.Symbol = classify.Normalize(a.Symbol)
	if a.Symbol == "" {
		return Asset{}, errors.New("asset symbol is required")
	}
	if !a.AssetType.Valid() {
		return Asset{}, fmt.Errorf("invalid asset type %q", a.AssetType)
	}
	if a.Currency == "" {
		a.Currency = provider.Currency
	}

	now := r.now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vn_assets (id, symbol, name, asset_type, exchange, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			asset_type = excluded.asset_type,
			exchange = excluded.exchange,
			currency = excluded.currency,
			updated_at = excluded.updated_at`,
		uuid.NewString(), a.Symbol, a.Name, string(a.AssetType), a.Exchange, a.Currency, now, now)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to upsert asset %s: %w", a.Symbol, err)
	}
	return r.Get(ctx, a.Symbol)
}

// Get returns the asset stored under symbol, or ErrNotFound.
func (r *Repository) Get(ctx context.Context, symbol string) (Asset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, symbol, name, asset_type, exchange, currency, created_at, updated_at
		FROM vn_assets WHERE symbol = ?`, classify.Normalize(symbol))
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, ErrNotFound
	}
	if err != nil {
		return Asset{}, fmt.Errorf("failed to get asset %s: %w", symbol, err)
	}
	return a, nil
}

// List returns all assets ordered by symbol, restricted to assetType unless
// it is empty.
func (r *Repository) List(ctx context.Context, assetType provider.AssetType) ([]Asset, error) {
	query := `SELECT id, symbol, name, asset_type, exchange, currency, created_at, updated_at FROM vn_assets`
	var args []any
	if assetType != "" {
		query += ` WHERE asset_type = ?`
		args = append(args, string(assetType))
	}
	query += ` ORDER BY symbol`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	out := []Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes the asset stored under symbol, or returns ErrNotFound.
func (r *Repository) Delete(ctx context.Context, symbol string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vn_assets WHERE symbol = ?`, classify.Normalize(symbol))
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", symbol, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(s scanner) (Asset, error) {
	var (
		a                Asset
		assetType        string
		created, updated int64
	)
	if err := s.Scan(&a.ID, &a.Symbol, &a.Name, &assetType, &a.Exchange, &a.Currency, &created, &updated); err != nil {
		return Asset{}, err
	}
	a.AssetType = provider.AssetType(assetType)
	a.CreatedAt = time.Unix(created, 0).UTC()
	a.UpdatedAt = time.Unix(updated, 0).UTC()
	return a, nil
}
