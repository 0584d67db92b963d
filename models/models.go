package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Статусы RFP. Переходы только вперёд: DRAFT -> OPEN -> CLOSED.
const (
	StatusDraft  = "DRAFT"
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

const DefaultCurrency = "USD"

// Позиция запроса
type LineItem struct {
	Name     string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Specs    string `json:"specs"`
}

// LineItems хранится в колонке jsonb
type LineItems []LineItem

func (li LineItems) Value() (driver.Value, error) {
	if li == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(li)
}

func (li *LineItems) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*li = LineItems{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("line items: unsupported scan type")
	}
	return json.Unmarshal(data, li)
}

// Сущность RFP (Request for Proposal)
type RFP struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Budget      float64    `db:"budget" json:"budget"`
	Currency    string     `db:"currency" json:"currency"`
	Deadline    *time.Time `db:"deadline" json:"deadline,omitempty"`
	Items       LineItems  `db:"items" json:"items"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"-"`
}

// Сущность Поставщика
type Vendor struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	ContactPerson string    `db:"contact_person" json:"contactPerson,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Сущность Предложения поставщика по RFP
type Proposal struct {
	ID              string    `db:"id" json:"id"`
	RFPID           string    `db:"rfp_id" json:"rfpId"`
	VendorID        string    `db:"vendor_id" json:"vendorId"`
	VendorName      string    `db:"vendor_name" json:"vendorName,omitempty"`
	RawEmailContent string    `db:"raw_email_content" json:"rawEmailContent"`
	Price           float64   `db:"extracted_price" json:"extractedPrice"`
	Timeline        string    `db:"extracted_timeline" json:"extractedTimeline"`
	Warranty        string    `db:"extracted_warranty" json:"extractedWarranty"`
	Summary         string    `db:"ai_summary" json:"aiSummary"`
	Score           *float64  `db:"score" json:"score,omitempty"`
	SourceMessageID *string   `db:"source_message_id" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// Оценка одного предложения моделью
type Ranking struct {
	VendorID string  `json:"vendor_id"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

// Отчёт сравнения: RFP, его предложения и оценки
type ComparisonReport struct {
	RFP        *RFP       `json:"rfp"`
	Proposals  []Proposal `json:"proposals"`
	AIAnalysis []Ranking  `json:"aiAnalysis"`
	// NoProposals выставляется, когда сравнивать нечего и модель не вызывалась
	NoProposals bool `json:"noProposals,omitempty"`
}
