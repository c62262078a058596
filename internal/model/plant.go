package model

import (
	"errors"
	"time"
)

// ErrPlantNotFound is returned by plant repositories for an unknown id.
var ErrPlantNotFound = errors.New("plant not found")

type Plant struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	LastWatered           *time.Time `json:"last_watered"`
	WateringFrequencyDays int        `json:"watering_frequency"`
}

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// PlantChange is one event of the plants change feed. Old is nil for
// inserts and New is nil for deletes.
type PlantChange struct {
	EventType ChangeType `json:"eventType"`
	New       *Plant     `json:"new"`
	Old       *Plant     `json:"old"`
}
