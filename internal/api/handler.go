package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/gateway"
	"github.com/lalithlochan/courier/internal/metrics"
	"github.com/lalithlochan/courier/internal/redis"
)

// CampaignStore defines the database operations the API needs
type CampaignStore interface {
	CreateContact(ctx context.Context, c *db.Contact) error
	ListContacts(ctx context.Context) ([]*db.Contact, error)
	CreateTemplate(ctx context.Context, t *db.Template, variations []string) error
	CreateCampaign(ctx context.Context, c *db.Campaign) error
	CampaignByID(ctx context.Context, id uuid.UUID) (*db.Campaign, error)
	ListCampaigns(ctx context.Context) ([]*db.CampaignSummary, error)
	ActivateCampaign(ctx context.Context, campaignID, templateID uuid.UUID) error
	SetCampaignStatus(ctx context.Context, id uuid.UUID, status string) error
	EnqueueRecipients(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) (int, error)
	RemovePendingRecipients(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) (int, error)
	PendingTotal(ctx context.Context) (int, error)
	RecentLogs(ctx context.Context, limit int) ([]*db.DeliveryLog, error)
	ClearDeliveryLogs(ctx context.Context) error
	CreateGroup(ctx context.Context, g *db.Group) error
	AddGroupMember(ctx context.Context, groupID, contactID uuid.UUID) error
	GroupMembers(ctx context.Context, groupID uuid.UUID) ([]*db.Contact, error)
	ResetAll(ctx context.Context) error
}

// Dispatcher is the control surface of the dispatch loop
type Dispatcher interface {
	Start()
	Stop()
	Running() bool
}

// QuotaReader reports daily quota usage. *quota.Tracker satisfies it.
type QuotaReader interface {
	TodayCount(ctx context.Context) (int, error)
	Limit() int
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	store       CampaignStore
	dispatcher  Dispatcher
	quota       QuotaReader
	idempotency *redis.IdempotencyService // nil if Redis not configured
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, store CampaignStore, dispatcher Dispatcher, quota QuotaReader) *Handler {
	return &Handler{
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		quota:      quota,
	}
}

// NewHandlerWithIdempotency creates a handler with idempotency support
func NewHandlerWithIdempotency(logger *zap.Logger, store CampaignStore, dispatcher Dispatcher, quota QuotaReader, idempotency *redis.IdempotencyService) *Handler {
	h := NewHandler(logger, store, dispatcher, quota)
	h.idempotency = idempotency
	return h
}

// ContactRequest represents the incoming contact body
type ContactRequest struct {
	Name  string  `json:"name"`
	Phone string  `json:"phone"`
	Tag   *string `json:"tag,omitempty"`
}

// CreateContact handles POST /v1/contacts
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Phone == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "phone is required")
		return
	}
	if gateway.NormalizeRecipient(req.Phone) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid phone", "phone must contain at least one significant digit")
		return
	}

	contact := &db.Contact{
		ID:    uuid.New(),
		Name:  req.Name,
		Phone: req.Phone,
		Tag:   req.Tag,
	}
	if err := h.store.CreateContact(ctx, contact); err != nil {
		h.logger.Error("failed to create contact", zap.Error(err), zap.String("phone", req.Phone))
		h.writeError(w, http.StatusConflict, "database_error", "Failed to create contact", "phone may already exist")
		return
	}

	h.logger.Info("contact created",
		zap.String("id", contact.ID.String()),
		zap.String("phone", contact.Phone),
	)
	h.writeJSON(w, http.StatusCreated, contact)
}

// ListContacts handles GET /v1/contacts
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.store.ListContacts(r.Context())
	if err != nil {
		h.logger.Error("failed to list contacts", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list contacts", "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  contacts,
		"count": len(contacts),
	})
}

// TemplateRequest represents the incoming template body
type TemplateRequest struct {
	Title      string   `json:"title"`
	Kind       string   `json:"kind"`
	Body       string   `json:"body"`
	MediaPath  *string  `json:"media_path,omitempty"`
	Variations []string `json:"variations,omitempty"`
}

func (r TemplateRequest) validate() string {
	if r.Title == "" || r.Body == "" {
		return "title and body are required"
	}
	switch r.Kind {
	case db.KindText, db.KindImage, db.KindVideo:
	case "":
		return "kind is required"
	default:
		return "kind must be text, image, or video"
	}
	if r.Kind != db.KindText && (r.MediaPath == nil || *r.MediaPath == "") {
		return "media_path is required for image and video templates"
	}
	return ""
}

// CreateTemplate handles POST /v1/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if detail := req.validate(); detail != "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid template", detail)
		return
	}

	tmpl := &db.Template{
		ID:        uuid.New(),
		Title:     req.Title,
		Kind:      req.Kind,
		Body:      req.Body,
		MediaPath: req.MediaPath,
	}
	if err := h.store.CreateTemplate(ctx, tmpl, req.Variations); err != nil {
		h.logger.Error("failed to create template", zap.Error(err), zap.String("title", req.Title))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create template", "")
		return
	}

	h.logger.Info("template created",
		zap.String("id", tmpl.ID.String()),
		zap.String("title", tmpl.Title),
		zap.Int("variations", len(req.Variations)),
	)
	h.writeJSON(w, http.StatusCreated, tmpl)
}

// CreateCampaign handles POST /v1/campaigns
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name is required")
		return
	}

	campaign := &db.Campaign{
		ID:     uuid.New(),
		Name:   req.Name,
		Status: db.CampaignDraft,
	}
	if err := h.store.CreateCampaign(ctx, campaign); err != nil {
		h.logger.Error("failed to create campaign", zap.Error(err), zap.String("name", req.Name))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create campaign", "")
		return
	}

	h.logger.Info("campaign created",
		zap.String("id", campaign.ID.String()),
		zap.String("name", campaign.Name),
	)
	h.writeJSON(w, http.StatusCreated, campaign)
}

// ListCampaigns handles GET /v1/campaigns
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.store.ListCampaigns(r.Context())
	if err != nil {
		h.logger.Error("failed to list campaigns", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list campaigns", "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  campaigns,
		"count": len(campaigns),
	})
}

// GetCampaign handles GET /v1/campaigns/{id}
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	campaign, err := h.store.CampaignByID(r.Context(), campaignID)
	if err != nil {
		h.logger.Error("failed to get campaign", zap.Error(err), zap.String("id", campaignID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}
	if campaign == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
		return
	}
	h.writeJSON(w, http.StatusOK, campaign)
}

// StartCampaignRequest is the body for POST /v1/campaigns/{id}/start
type StartCampaignRequest struct {
	Template   TemplateRequest `json:"template"`
	ContactIDs []string        `json:"contact_ids,omitempty"`
	GroupID    *string         `json:"group_id,omitempty"`
}

// StartCampaignResponse is returned after a campaign is started
type StartCampaignResponse struct {
	CampaignID string `json:"campaign_id"`
	Enqueued   int    `json:"enqueued"`
	Status     string `json:"status"`
}

// StartCampaign handles POST /v1/campaigns/{id}/start
// It creates the message template, enqueues the recipients, marks the
// campaign active, and launches the dispatch loop. Supports replay
// protection via the Idempotency-Key header.
func (h *Handler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	campaignID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" && h.idempotency != nil {
		cached, err := h.idempotency.Check(ctx, "campaign-start", idempotencyKey)
		if err != nil {
			if errors.Is(err, redis.ErrIdempotencyInProgress) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cached != nil {
			metrics.RecordIdempotencyHit()
			w.Header().Set("X-Idempotency-Replayed", "true")
			h.writeJSON(w, cached.StatusCode, StartCampaignResponse{
				CampaignID: cached.CampaignID.String(),
				Status:     db.CampaignActive,
			})
			return
		} else {
			reserved, err := h.idempotency.Reserve(ctx, "campaign-start", idempotencyKey)
			if err != nil {
				h.logger.Warn("idempotency reserve failed, proceeding", zap.Error(err))
			} else if !reserved {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
		}
	}

	var req StartCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.releaseIdempotency(ctx, idempotencyKey)
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if detail := req.Template.validate(); detail != "" {
		h.releaseIdempotency(ctx, idempotencyKey)
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid template", detail)
		return
	}

	contactIDs, detail := h.resolveRecipients(ctx, req)
	if detail != "" {
		h.releaseIdempotency(ctx, idempotencyKey)
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipients", detail)
		return
	}

	campaign, err := h.store.CampaignByID(ctx, campaignID)
	if err != nil {
		h.releaseIdempotency(ctx, idempotencyKey)
		h.logger.Error("failed to get campaign", zap.Error(err), zap.String("id", campaignID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}
	if campaign == nil {
		h.releaseIdempotency(ctx, idempotencyKey)
		h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
		return
	}

	tmpl := &db.Template{
		ID:        uuid.New(),
		Title:     req.Template.Title,
		Kind:      req.Template.Kind,
		Body:      req.Template.Body,
		MediaPath: req.Template.MediaPath,
	}
	if err := h.store.CreateTemplate(ctx, tmpl, req.Template.Variations); err != nil {
		h.releaseIdempotency(ctx, idempotencyKey)
		h.logger.Error("failed to create template", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create template", "")
		return
	}

	if err := h.store.ActivateCampaign(ctx, campaignID, tmpl.ID); err != nil {
		h.releaseIdempotency(ctx, idempotencyKey)
		h.logger.Error("failed to activate campaign", zap.Error(err), zap.String("id", campaignID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to activate campaign", "")
		return
	}

	enqueued, err := h.store.EnqueueRecipients(ctx, campaignID, contactIDs)
	if err != nil {
		h.releaseIdempotency(ctx, idempotencyKey)
		h.logger.Error("failed to enqueue recipients", zap.Error(err), zap.String("id", campaignID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to enqueue recipients", "")
		return
	}

	h.dispatcher.Start()

	h.logger.Info("campaign started",
		zap.String("campaign_id", campaignID.String()),
		zap.String("template_id", tmpl.ID.String()),
		zap.Int("enqueued", enqueued),
		zap.Int("requested", len(contactIDs)),
	)

	if idempotencyKey != "" && h.idempotency != nil {
		err := h.idempotency.Store(ctx, "campaign-start", idempotencyKey, redis.IdempotencyResult{
			CampaignID: campaignID,
			StatusCode: http.StatusAccepted,
		})
		if err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	h.writeJSON(w, http.StatusAccepted, StartCampaignResponse{
		CampaignID: campaignID.String(),
		Enqueued:   enqueued,
		Status:     db.CampaignActive,
	})
}

// resolveRecipients turns the request's contact list or group into contact IDs.
func (h *Handler) resolveRecipients(ctx context.Context, req StartCampaignRequest) ([]uuid.UUID, string) {
	if req.GroupID != nil {
		groupID, err := uuid.Parse(*req.GroupID)
		if err != nil {
			return nil, "group_id must be a valid UUID"
		}
		members, err := h.store.GroupMembers(ctx, groupID)
		if err != nil {
			h.logger.Error("failed to load group members", zap.Error(err), zap.String("group_id", groupID.String()))
			return nil, "failed to load group members"
		}
		if len(members) == 0 {
			return nil, "group has no members"
		}
		ids := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		return ids, ""
	}

	if len(req.ContactIDs) == 0 {
		return nil, "contact_ids or group_id is required"
	}
	ids := make([]uuid.UUID, 0, len(req.ContactIDs))
	for _, raw := range req.ContactIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, "contact_ids must be valid UUIDs"
		}
		ids = append(ids, id)
	}
	return ids, ""
}

func (h *Handler) releaseIdempotency(ctx context.Context, key string) {
	if key == "" || h.idempotency == nil {
		return
	}
	if err := h.idempotency.Release(ctx, "campaign-start", key); err != nil {
		h.logger.Warn("failed to release idempotency key", zap.Error(err), zap.String("idempotency_key", key))
	}
}

// ResumeCampaign handles POST /v1/campaigns/{id}/resume
// Reactivates a paused campaign and relaunches the dispatch loop; pending
// items are picked up where they were left.
func (h *Handler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	campaignID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	campaign, err := h.store.CampaignByID(ctx, campaignID)
	if err != nil {
		h.logger.Error("failed to get campaign", zap.Error(err), zap.String("id", campaignID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get campaign", "")
		return
	}
	if campaign == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Campaign not found", "")
		return
	}
	if campaign.Status == db.CampaignCompleted || campaign.Status == db.CampaignArchived {
		h.writeError(w, http.StatusConflict, "invalid_state", "Campaign cannot be resumed",
			"campaign is "+campaign.Status)
		return
	}

	if err := h.store.SetCampaignStatus(ctx, campaignID, db.CampaignActive); err != nil {
		h.logger.Error("failed to resume campaign", zap.Error(err), zap.String("id", campaignID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to resume campaign", "")
		return
	}

	h.dispatcher.Start()

	h.logger.Info("campaign resumed", zap.String("campaign_id", campaignID.String()))
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"campaign_id": campaignID.String(),
		"status":      db.CampaignActive,
	})
}

// RecipientsRequest is the body for add/remove recipient calls
type RecipientsRequest struct {
	ContactIDs []string `json:"contact_ids"`
}

func (r RecipientsRequest) parse() ([]uuid.UUID, string) {
	if len(r.ContactIDs) == 0 {
		return nil, "contact_ids is required"
	}
	ids := make([]uuid.UUID, 0, len(r.ContactIDs))
	for _, raw := range r.ContactIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, "contact_ids must be valid UUIDs"
		}
		ids = append(ids, id)
	}
	return ids, ""
}

// AddRecipients handles POST /v1/campaigns/{id}/recipients
// Duplicates already enqueued for the campaign are skipped.
func (h *Handler) AddRecipients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	campaignID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req RecipientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	contactIDs, detail := req.parse()
	if detail != "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipients", detail)
		return
	}

	enqueued, err := h.store.EnqueueRecipients(ctx, campaignID, contactIDs)
	if err != nil {
		h.logger.Error("failed to enqueue recipients", zap.Error(err), zap.String("campaign_id", campaignID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to enqueue recipients", "")
		return
	}

	h.logger.Info("recipients added",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("enqueued", enqueued),
		zap.Int("requested", len(contactIDs)),
	)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": campaignID.String(),
		"enqueued":    enqueued,
		"skipped":     len(contactIDs) - enqueued,
	})
}

// RemoveRecipients handles DELETE /v1/campaigns/{id}/recipients
// Only pending items are removed; sent and failed history stays.
func (h *Handler) RemoveRecipients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	campaignID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req RecipientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	contactIDs, detail := req.parse()
	if detail != "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipients", detail)
		return
	}

	removed, err := h.store.RemovePendingRecipients(ctx, campaignID, contactIDs)
	if err != nil {
		h.logger.Error("failed to remove recipients", zap.Error(err), zap.String("campaign_id", campaignID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to remove recipients", "")
		return
	}

	h.logger.Info("recipients removed",
		zap.String("campaign_id", campaignID.String()),
		zap.Int("removed", removed),
	)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": campaignID.String(),
		"removed":     removed,
	})
}

// StopDispatch handles POST /v1/dispatch/stop
// The in-flight message, if any, still completes; everything after it stays
// queued for a later resume.
func (h *Handler) StopDispatch(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Stop()
	h.logger.Info("dispatch stop requested")
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "stopping",
	})
}

// DispatchStatusResponse is returned by GET /v1/dispatch/status
type DispatchStatusResponse struct {
	Running    bool `json:"running"`
	QueueDepth int  `json:"queue_depth"`
	TodayCount int  `json:"today_count"`
	DailyLimit int  `json:"daily_limit"`
}

// DispatchStatus handles GET /v1/dispatch/status
func (h *Handler) DispatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	depth, err := h.store.PendingTotal(ctx)
	if err != nil {
		h.logger.Error("failed to read queue depth", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to read queue depth", "")
		return
	}
	todayCount, err := h.quota.TodayCount(ctx)
	if err != nil {
		h.logger.Error("failed to read quota usage", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to read quota usage", "")
		return
	}

	h.writeJSON(w, http.StatusOK, DispatchStatusResponse{
		Running:    h.dispatcher.Running(),
		QueueDepth: depth,
		TodayCount: todayCount,
		DailyLimit: h.quota.Limit(),
	})
}

// RecentLogs handles GET /v1/logs?limit=50
func (h *Handler) RecentLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	logs, err := h.store.RecentLogs(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list delivery logs", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list delivery logs", "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  logs,
		"count": len(logs),
		"limit": limit,
	})
}

// ClearLogs handles DELETE /v1/logs
// Note: clearing logs resets what the daily quota is counted from.
func (h *Handler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearDeliveryLogs(r.Context()); err != nil {
		h.logger.Error("failed to clear delivery logs", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to clear delivery logs", "")
		return
	}
	h.logger.Info("delivery logs cleared")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// GroupRequest represents the incoming group body
type GroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// CreateGroup handles POST /v1/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name is required")
		return
	}

	group := &db.Group{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.store.CreateGroup(ctx, group); err != nil {
		h.logger.Error("failed to create group", zap.Error(err), zap.String("name", req.Name))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create group", "")
		return
	}

	h.logger.Info("group created",
		zap.String("id", group.ID.String()),
		zap.String("name", group.Name),
	)
	h.writeJSON(w, http.StatusCreated, group)
}

// AddGroupMember handles POST /v1/groups/{id}/members
func (h *Handler) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		ContactID string `json:"contact_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid contact_id", "contact_id must be a valid UUID")
		return
	}

	if err := h.store.AddGroupMember(ctx, groupID, contactID); err != nil {
		h.logger.Error("failed to add group member", zap.Error(err), zap.String("group_id", groupID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to add group member", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"group_id":   groupID.String(),
		"contact_id": contactID.String(),
	})
}

// ListGroupMembers handles GET /v1/groups/{id}/members
func (h *Handler) ListGroupMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	members, err := h.store.GroupMembers(r.Context(), groupID)
	if err != nil {
		h.logger.Error("failed to list group members", zap.Error(err), zap.String("group_id", groupID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list group members", "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  members,
		"count": len(members),
	})
}

// ResetDatabase handles POST /v1/admin/reset
// Deletes all operator data. The dispatch loop is stopped first so it never
// races the deletes.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Stop()

	if err := h.store.ResetAll(r.Context()); err != nil {
		h.logger.Error("failed to reset database", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to reset database", "")
		return
	}

	h.logger.Warn("database reset")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, name)
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid ID", "ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
