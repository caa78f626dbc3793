package models

import "time"

// RubricCriterion describes one scoring dimension reviewers follow.
type RubricCriterion struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight" validate:"gte=0,lte=100"`
}

// Rubric is a reusable review guideline a submission may reference.
type Rubric struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Criteria    []byte    `db:"criteria" json:"-"`
	CreatedBy   string    `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
