package db

import (
	"time"

	"github.com/google/uuid"
)

// Contact is one recipient in the address book. Phone is unique and is the
// raw operator-entered string; normalization happens at the gateway boundary.
type Contact struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Tag       *string   `json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Template is a message blueprint. Variations are alternate full bodies owned
// by the template (deleting a template cascades to them).
type Template struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	MediaPath *string   `json:"media_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type TemplateVariation struct {
	ID         uuid.UUID `json:"id"`
	TemplateID uuid.UUID `json:"template_id"`
	Body       string    `json:"body"`
}

// Campaign associates one template with a set of queued recipients.
type Campaign struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	TemplateID *uuid.UUID `json:"template_id,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CampaignSummary is a campaign joined with its queue counters, for listing.
type CampaignSummary struct {
	Campaign
	QueueTotal  int `json:"queue_total"`
	SentCount   int `json:"sent_count"`
	FailedCount int `json:"failed_count"`
}

// QueueItem is one (campaign, contact) unit of work. Status is terminal once
// it leaves pending; only the scheduler moves it there.
type QueueItem struct {
	ID         uuid.UUID `json:"id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	ContactID  uuid.UUID `json:"contact_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeliveryLog is one append-only record of an attempted send. It is the sole
// source of truth for the daily quota and for historical reporting.
type DeliveryLog struct {
	ID         uuid.UUID  `json:"id"`
	ContactID  *uuid.UUID `json:"contact_id,omitempty"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	Outcome    string     `json:"outcome"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Group is a named contact list used by the configuration flow.
type Group struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Campaign status constants
const (
	CampaignDraft     = "draft"
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignArchived  = "archived"
)

// Queue item status constants
const (
	ItemPending = "pending"
	ItemSent    = "sent"
	ItemFailed  = "failed"
)

// Delivery outcome constants
const (
	OutcomeSent   = "SENT"
	OutcomeFailed = "FAILED"
)

// Template kind constants
const (
	KindText  = "text"
	KindImage = "image"
	KindVideo = "video"
)
