package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/playspot/internal/model"
)

// GroundRepo provides read access to the grounds table plus the insert
// used when seeding.
type GroundRepo struct{ db *sql.DB }

func NewGroundRepo(db *sql.DB) *GroundRepo { return &GroundRepo{db: db} }

const groundColumns = `id, owner_id, name, location, sports, price_per_hour, open_hour, close_hour, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGround(s rowScanner) (*model.Ground, error) {
	var g model.Ground
	var sports string
	if err := s.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Location, &sports, &g.PricePerHour,
		&g.OpenHour, &g.CloseHour, &g.IsActive, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Sports = splitSports(sports)
	return &g, nil
}

func splitSports(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Create inserts g after validating its window and sets g.ID.
func (r *GroundRepo) Create(ctx context.Context, g *model.Ground) error {
	if err := g.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO grounds (owner_id, name, location, sports, price_per_hour, open_hour, close_hour, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.OwnerID, g.Name, g.Location, strings.Join(g.Sports, ","), g.PricePerHour, g.OpenHour, g.CloseHour, g.IsActive,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = uint64(id)
	return nil
}

// GetByID returns ErrGroundNotFound when no ground has the id.
func (r *GroundRepo) GetByID(ctx context.Context, id uint64) (*model.Ground, error) {
	g, err := scanGround(r.db.QueryRowContext(ctx,
		`SELECT `+groundColumns+` FROM grounds WHERE id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroundNotFound
	}
	return g, err
}

// ListActive returns every ground that accepts bookings ordered by name.
func (r *GroundRepo) ListActive(ctx context.Context) ([]model.Ground, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+groundColumns+` FROM grounds WHERE is_active = 1 ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ground
	for rows.Next() {
		g, err := scanGround(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}
