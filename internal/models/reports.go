package coloyalty

import (
	"time"

	"github.com/google/uuid"
)

const (
	TreasuryReport = "treasury"
	MerchantReport = "merchant"
)

// Отчет советника
type Report struct {
	ID         uuid.UUID `bson:"id" json:"id"`
	Kind       string    `bson:"kind" json:"kind"`
	MerchantID string    `bson:"merchantId,omitempty" json:"merchantId,omitempty"`
	Prompt     string    `bson:"prompt" json:"prompt"`
	Context    string    `bson:"context" json:"context"` // JSON данных, переданных советнику
	Text       string    `bson:"text" json:"text"`
	Fallback   bool      `bson:"fallback" json:"fallback"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}
