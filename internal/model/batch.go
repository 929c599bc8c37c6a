package model

import "time"

type BatchStatus string

const (
	BatchSubmitted BatchStatus = "SUBMITTED"
	BatchCreated   BatchStatus = "CREATED"
)

// Batch groups the top-level recipes created by one reprocess or submission request.
type Batch struct {
	ID                 int64
	Title              string
	RecipeTypeName     string
	RecipeTypeRevision int
	Status             BatchStatus
	RecipeMetrics
	RecipesTotal     int
	RecipesCompleted int

	Created      time.Time
	LastModified time.Time
}

func (b *Batch) DeepCopy() *Batch {
	c := *b
	return &c
}
