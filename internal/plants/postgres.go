package plants

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

//go:embed schema.sql
var schema string

// Postgres is a Repository backed by the plants table. Its change feed is
// fed by a trigger that calls pg_notify on every row change.
type Postgres struct {
	pool   *pgxpool.Pool
	dbURL  string
	logger *slog.Logger
}

// NewPostgres opens and verifies a connection pool.
func NewPostgres(ctx context.Context, dbURL string, maxConns int, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool, dbURL: dbURL, logger: logger}, nil
}

// Migrate creates the plants table and its change trigger.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

const selectPlant = `SELECT id, name, last_watered, watering_frequency FROM plants`

func (p *Postgres) GetPlant(ctx context.Context, id int64) (model.Plant, error) {
	plant, err := scanPlant(p.pool.QueryRow(ctx, selectPlant+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Plant{}, fmt.Errorf("plant %d: %w", id, model.ErrPlantNotFound)
	}
	if err != nil {
		return model.Plant{}, fmt.Errorf("get plant %d: %w", id, err)
	}
	return plant, nil
}

func (p *Postgres) List(ctx context.Context) ([]model.Plant, error) {
	rows, err := p.pool.Query(ctx, selectPlant+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	defer rows.Close()

	var out []model.Plant
	for rows.Next() {
		plant, err := scanPlant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plant: %w", err)
		}
		out = append(out, plant)
	}
	return out, rows.Err()
}

func (p *Postgres) Create(ctx context.Context, plant model.Plant) (model.Plant, error) {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO plants (name, last_watered, watering_frequency) VALUES ($1, $2, $3) RETURNING id`,
		plant.Name, plant.LastWatered, nullableFrequency(plant.WateringFrequencyDays),
	).Scan(&plant.ID)
	if err != nil {
		return model.Plant{}, fmt.Errorf("create plant: %w", err)
	}
	return plant, nil
}

func (p *Postgres) Update(ctx context.Context, plant model.Plant) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE plants SET name = $2, last_watered = $3, watering_frequency = $4 WHERE id = $1`,
		plant.ID, plant.Name, plant.LastWatered, nullableFrequency(plant.WateringFrequencyDays),
	)
	if err != nil {
		return fmt.Errorf("update plant %d: %w", plant.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plant %d: %w", plant.ID, model.ErrPlantNotFound)
	}
	return nil
}

func (p *Postgres) UpdateLastWatered(ctx context.Context, id int64, t time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE plants SET last_watered = $2 WHERE id = $1`, id, t)
	if err != nil {
		return fmt.Errorf("update last watered for plant %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plant %d: %w", id, model.ErrPlantNotFound)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM plants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plant %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plant %d: %w", id, model.ErrPlantNotFound)
	}
	return nil
}

// Changes starts a listener on a dedicated connection. The channel is
// closed once ctx is done.
func (p *Postgres) Changes(ctx context.Context) <-chan model.PlantChange {
	out := make(chan model.PlantChange, 16)
	go func() {
		defer close(out)
		listen(ctx, p.dbURL, out, p.logger)
	}()
	return out
}

func scanPlant(row pgx.Row) (model.Plant, error) {
	var (
		plant model.Plant
		freq  *int32
	)
	if err := row.Scan(&plant.ID, &plant.Name, &plant.LastWatered, &freq); err != nil {
		return model.Plant{}, err
	}
	if freq != nil {
		plant.WateringFrequencyDays = int(*freq)
	}
	return plant, nil
}

func nullableFrequency(days int) *int32 {
	if days < 1 {
		return nil
	}
	v := int32(days)
	return &v
}
