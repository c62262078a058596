// Package plants stores plants and publishes a feed of their changes.
package plants

import (
	"context"
	"time"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

type Repository interface {
	GetPlant(ctx context.Context, id int64) (model.Plant, error)
	List(ctx context.Context) ([]model.Plant, error)
	Create(ctx context.Context, p model.Plant) (model.Plant, error)
	Update(ctx context.Context, p model.Plant) error
	UpdateLastWatered(ctx context.Context, id int64, t time.Time) error
	Delete(ctx context.Context, id int64) error

	// Changes streams INSERT, UPDATE and DELETE events until ctx is done.
	Changes(ctx context.Context) <-chan model.PlantChange
}
