package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a booked transaction subject to monitoring.
type Transaction struct {
	// Core identifiers
	ID            string `json:"id"`
	AccountNumber string `json:"accountNumber"`

	// Institution type code (e.g., "CASH DEP", "WIRE", "ATM WDL")
	TypeCode string `json:"typeCode"`

	// Financial details. Amount is fixed-point; never a float.
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// Counterparty and routing
	CounterpartyAccount string `json:"counterpartyAccount,omitempty"`
	CounterpartyCountry string `json:"counterpartyCountry,omitempty"`
	OriginCountry       string `json:"originCountry,omitempty"`
	DestinationCountry  string `json:"destinationCountry,omitempty"`
	Channel             string `json:"channel,omitempty"`
	Reference           string `json:"reference,omitempty"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Monitoring state
	Processed bool `json:"processed"`

	// Optional metadata
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Transaction flow directions, derived from the type group of a type code.
const (
	DirectionInbound  = "IN"
	DirectionOutbound = "OUT"
)

// TransactionRequest is the API request payload for transaction ingestion.
type TransactionRequest struct {
	AccountNumber       string                 `json:"accountNumber" validate:"required"`
	TypeCode            string                 `json:"typeCode" validate:"required"`
	Amount              decimal.Decimal        `json:"amount" validate:"required"`
	Currency            string                 `json:"currency" validate:"required,len=3"`
	CounterpartyAccount string                 `json:"counterpartyAccount,omitempty"`
	CounterpartyCountry string                 `json:"counterpartyCountry,omitempty"`
	OriginCountry       string                 `json:"originCountry,omitempty"`
	DestinationCountry  string                 `json:"destinationCountry,omitempty"`
	Channel             string                 `json:"channel,omitempty"`
	Reference           string                 `json:"reference,omitempty"`
	Timestamp           *time.Time             `json:"timestamp,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
// A missing timestamp defaults to ingestion time.
func (r *TransactionRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	ts := now
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}
	return &Transaction{
		AccountNumber:       r.AccountNumber,
		TypeCode:            r.TypeCode,
		Amount:              r.Amount,
		Currency:            r.Currency,
		CounterpartyAccount: r.CounterpartyAccount,
		CounterpartyCountry: r.CounterpartyCountry,
		OriginCountry:       r.OriginCountry,
		DestinationCountry:  r.DestinationCountry,
		Channel:             r.Channel,
		Reference:           r.Reference,
		Timestamp:           ts,
		CreatedAt:           now,
		Metadata:            r.Metadata,
	}
}
