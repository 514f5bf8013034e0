package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Track is a catalog work under rights protection. The catalog owns the row;
// this service only reads it and accumulates license revenue on it.
type Track struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	Title        string
	ArtistName   string
	TotalRevenue decimal.Decimal
}

// Profile is the rights holder issuing licenses.
type Profile struct {
	ID          uuid.UUID
	DisplayName string
	Email       string
}
