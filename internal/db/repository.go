package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database operations for the campaign pipeline.
// It is the single durable store: contacts, templates, campaigns, the
// global send queue, and the append-only delivery log.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new campaign repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ---- Scheduler-facing queries ----

// NextPendingItem returns the single oldest pending queue item belonging to
// any active campaign, or (nil, nil) when no eligible work remains. Ordering
// is global by creation time regardless of campaign.
func (r *Repository) NextPendingItem(ctx context.Context) (*QueueItem, error) {
	query := `
		SELECT q.id, q.campaign_id, q.contact_id, q.status, q.created_at
		FROM campaign_queue q
		JOIN campaigns c ON c.id = q.campaign_id
		WHERE q.status = 'pending' AND c.status = 'active'
		ORDER BY q.created_at, q.id
		LIMIT 1
	`

	var item QueueItem
	err := r.db.Pool().QueryRow(ctx, query).Scan(
		&item.ID,
		&item.CampaignID,
		&item.ContactID,
		&item.Status,
		&item.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next pending item: %w", err)
	}

	return &item, nil
}

// ContactByID returns (nil, nil) when the contact does not exist, so the
// scheduler can distinguish a data-integrity failure from a store error.
func (r *Repository) ContactByID(ctx context.Context, id uuid.UUID) (*Contact, error) {
	query := `SELECT id, name, phone, tag, created_at FROM contacts WHERE id = $1`

	var c Contact
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Tag, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query contact: %w", err)
	}
	return &c, nil
}

// TemplateByID returns (nil, nil) when the template does not exist.
func (r *Repository) TemplateByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	query := `SELECT id, title, kind, body, media_path, created_at FROM templates WHERE id = $1`

	var t Template
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(&t.ID, &t.Title, &t.Kind, &t.Body, &t.MediaPath, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return &t, nil
}

// VariationsByTemplate returns all alternate bodies owned by a template.
func (r *Repository) VariationsByTemplate(ctx context.Context, templateID uuid.UUID) ([]TemplateVariation, error) {
	query := `SELECT id, template_id, body FROM template_variations WHERE template_id = $1 ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("query variations: %w", err)
	}
	defer rows.Close()

	var variations []TemplateVariation
	for rows.Next() {
		var v TemplateVariation
		if err := rows.Scan(&v.ID, &v.TemplateID, &v.Body); err != nil {
			return nil, fmt.Errorf("scan variation: %w", err)
		}
		variations = append(variations, v)
	}
	return variations, rows.Err()
}

// UpdateQueueItemStatus moves one queue item to a terminal status.
func (r *Repository) UpdateQueueItemStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE campaign_queue SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		r.logger.Error("failed to update queue item status",
			zap.Error(err),
			zap.String("item_id", id.String()),
			zap.String("status", status),
		)
		return fmt.Errorf("update queue item status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("queue item not found: %s", id)
	}
	return nil
}

// AppendDeliveryLog appends one attempt record. The log is append-only; rows
// are never updated and only removed by an explicit bulk clear or reset.
func (r *Repository) AppendDeliveryLog(ctx context.Context, entry *DeliveryLog) error {
	query := `
		INSERT INTO delivery_logs (contact_id, campaign_id, outcome, error)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		entry.ContactID, entry.CampaignID, entry.Outcome, entry.Error,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		r.logger.Error("failed to append delivery log", zap.Error(err))
		return fmt.Errorf("insert delivery log: %w", err)
	}
	return nil
}

// PendingCount returns how many pending items remain for one campaign.
func (r *Repository) PendingCount(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM campaign_queue WHERE campaign_id = $1 AND status = 'pending'`,
		campaignID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending items: %w", err)
	}
	return count, nil
}

// PendingTotal returns the depth of the global queue across active campaigns.
func (r *Repository) PendingTotal(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx, `
		SELECT COUNT(*)
		FROM campaign_queue q
		JOIN campaigns c ON c.id = q.campaign_id
		WHERE q.status = 'pending' AND c.status = 'active'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count queue depth: %w", err)
	}
	return count, nil
}

// SetCampaignStatus updates one campaign's status.
func (r *Repository) SetCampaignStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE campaigns SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		r.logger.Error("failed to update campaign status",
			zap.Error(err),
			zap.String("campaign_id", id.String()),
			zap.String("status", status),
		)
		return fmt.Errorf("update campaign status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("campaign not found: %s", id)
	}
	return nil
}

// PauseActiveCampaigns moves every active campaign to paused in one statement
// and returns the affected ids. The daily quota is an account-wide resource,
// so exhaustion pauses everything at once.
func (r *Repository) PauseActiveCampaigns(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Pool().Query(ctx,
		`UPDATE campaigns SET status = 'paused' WHERE status = 'active' RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("pause active campaigns: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CompleteDrainedCampaigns moves active campaigns with no pending items left
// to completed and returns the affected ids.
func (r *Repository) CompleteDrainedCampaigns(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Pool().Query(ctx, `
		UPDATE campaigns SET status = 'completed'
		WHERE status = 'active'
		  AND NOT EXISTS (
			SELECT 1 FROM campaign_queue q
			WHERE q.campaign_id = campaigns.id AND q.status = 'pending'
		  )
		RETURNING id
	`)
	if err != nil {
		return nil, fmt.Errorf("complete drained campaigns: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CountSentSince counts SENT log entries at or after the given instant.
// The quota tracker passes the start of the local calendar day; the count is
// recomputed from the log on every call so it survives process restarts.
func (r *Repository) CountSentSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM delivery_logs WHERE outcome = 'SENT' AND created_at >= $1`,
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sent since: %w", err)
	}
	return count, nil
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- Configuration flow ----

// CreateContact inserts a new contact
func (r *Repository) CreateContact(ctx context.Context, c *Contact) error {
	query := `
		INSERT INTO contacts (name, phone, tag)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.Pool().QueryRow(ctx, query, c.Name, c.Phone, c.Tag).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

// ListContacts returns all contacts ordered by name
func (r *Repository) ListContacts(ctx context.Context) ([]*Contact, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT id, name, phone, tag, created_at FROM contacts ORDER BY name, phone`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Tag, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}

// CreateTemplate inserts a template and its variations in one transaction.
func (r *Repository) CreateTemplate(ctx context.Context, t *Template, variations []string) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO templates (title, kind, body, media_path)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, t.Title, t.Kind, t.Body, t.MediaPath).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	for _, body := range variations {
		if body == "" {
			continue
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO template_variations (template_id, body) VALUES ($1, $2)`,
			t.ID, body)
		if err != nil {
			return fmt.Errorf("insert variation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	r.logger.Info("template created",
		zap.String("template_id", t.ID.String()),
		zap.String("kind", t.Kind),
		zap.Int("variations", len(variations)),
	)
	return nil
}

// CreateCampaign inserts a new draft campaign
func (r *Repository) CreateCampaign(ctx context.Context, c *Campaign) error {
	query := `
		INSERT INTO campaigns (name, template_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if c.Status == "" {
		c.Status = CampaignDraft
	}
	err := r.db.Pool().QueryRow(ctx, query, c.Name, c.TemplateID, c.Status).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// CampaignByID retrieves a campaign by ID
func (r *Repository) CampaignByID(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	query := `SELECT id, name, template_id, status, created_at FROM campaigns WHERE id = $1`

	var c Campaign
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.TemplateID, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query campaign: %w", err)
	}
	return &c, nil
}

// ListCampaigns returns all campaigns newest first, joined with queue counts.
func (r *Repository) ListCampaigns(ctx context.Context) ([]*CampaignSummary, error) {
	query := `
		SELECT c.id, c.name, c.template_id, c.status, c.created_at,
		       COUNT(q.id) AS queue_total,
		       COUNT(q.id) FILTER (WHERE q.status = 'sent') AS sent_count,
		       COUNT(q.id) FILTER (WHERE q.status = 'failed') AS failed_count
		FROM campaigns c
		LEFT JOIN campaign_queue q ON q.campaign_id = c.id
		GROUP BY c.id
		ORDER BY c.created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*CampaignSummary
	for rows.Next() {
		var s CampaignSummary
		err := rows.Scan(&s.ID, &s.Name, &s.TemplateID, &s.Status, &s.CreatedAt,
			&s.QueueTotal, &s.SentCount, &s.FailedCount)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, &s)
	}
	return campaigns, rows.Err()
}

// ActivateCampaign attaches a template and marks the campaign active.
func (r *Repository) ActivateCampaign(ctx context.Context, campaignID, templateID uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE campaigns SET template_id = $1, status = 'active' WHERE id = $2`,
		templateID, campaignID)
	if err != nil {
		return fmt.Errorf("activate campaign: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("campaign not found: %s", campaignID)
	}
	return nil
}

// EnqueueRecipients inserts pending queue items for the given contacts in one
// transaction. Duplicate (campaign, contact) pairs are skipped, keeping the
// uniqueness invariant. Returns how many rows were actually inserted.
func (r *Repository) EnqueueRecipients(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) (int, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, contactID := range contactIDs {
		result, err := tx.Exec(ctx, `
			INSERT INTO campaign_queue (campaign_id, contact_id, status)
			VALUES ($1, $2, 'pending')
			ON CONFLICT (campaign_id, contact_id) DO NOTHING
		`, campaignID, contactID)
		if err != nil {
			return 0, fmt.Errorf("enqueue contact %s: %w", contactID, err)
		}
		inserted += int(result.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	r.logger.Info("recipients enqueued",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("requested", len(contactIDs)),
		zap.Int("inserted", inserted),
	)
	return inserted, nil
}

// RemovePendingRecipients deletes not-yet-attempted queue items for the given
// contacts. Items already sent or failed are never touched.
func (r *Repository) RemovePendingRecipients(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) (int, error) {
	result, err := r.db.Pool().Exec(ctx, `
		DELETE FROM campaign_queue
		WHERE campaign_id = $1 AND contact_id = ANY($2) AND status = 'pending'
	`, campaignID, contactIDs)
	if err != nil {
		return 0, fmt.Errorf("remove pending recipients: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// RecentLogs returns the newest delivery log entries, newest first.
func (r *Repository) RecentLogs(ctx context.Context, limit int) ([]*DeliveryLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, contact_id, campaign_id, outcome, error, created_at
		FROM delivery_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query delivery logs: %w", err)
	}
	defer rows.Close()

	var logs []*DeliveryLog
	for rows.Next() {
		var l DeliveryLog
		if err := rows.Scan(&l.ID, &l.ContactID, &l.CampaignID, &l.Outcome, &l.Error, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// ClearDeliveryLogs is the explicit bulk removal of the delivery history.
// Note this also resets the derived daily quota count.
func (r *Repository) ClearDeliveryLogs(ctx context.Context) error {
	_, err := r.db.Pool().Exec(ctx, `DELETE FROM delivery_logs`)
	if err != nil {
		return fmt.Errorf("clear delivery logs: %w", err)
	}
	r.logger.Warn("delivery logs cleared")
	return nil
}

// CreateGroup inserts a contact group
func (r *Repository) CreateGroup(ctx context.Context, g *Group) error {
	err := r.db.Pool().QueryRow(ctx,
		`INSERT INTO groups (name, description) VALUES ($1, $2) RETURNING id, created_at`,
		g.Name, g.Description,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// AddGroupMember adds a contact to a group; repeat adds are no-ops.
func (r *Repository) AddGroupMember(ctx context.Context, groupID, contactID uuid.UUID) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO group_members (group_id, contact_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID, contactID)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// GroupMembers returns the contacts in a group ordered by name.
func (r *Repository) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]*Contact, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT c.id, c.name, c.phone, c.tag, c.created_at
		FROM contacts c
		JOIN group_members gm ON gm.contact_id = c.id
		WHERE gm.group_id = $1
		ORDER BY c.name
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Tag, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}

// ResetAll wipes every table in dependency order inside one transaction.
// Destructive; exposed only behind the explicit admin reset endpoint.
func (r *Repository) ResetAll(ctx context.Context) error {
	tables := []string{
		"delivery_logs",
		"campaign_queue",
		"group_members",
		"campaigns",
		"template_variations",
		"groups",
		"contacts",
		"templates",
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range tables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	r.logger.Warn("database reset: all data deleted")
	return nil
}
