package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OperatorType string

const (
	OperatorMobile OperatorType = "MOBILE"
	OperatorDTH    OperatorType = "DTH"
)

// Operator is seeded reference data, immutable at runtime.
type Operator struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Code       string          `json:"code" db:"code"`
	Type       OperatorType    `json:"type" db:"type"`
	Commission decimal.Decimal `json:"commission" db:"commission"` // percent
}
