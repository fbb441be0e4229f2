package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
)

// Common test errors
var ErrDatabaseError = errors.New("database error")

// MockStore is a fake database for testing
type MockStore struct {
	contacts  map[uuid.UUID]*db.Contact
	templates map[uuid.UUID]*db.Template
	campaigns map[uuid.UUID]*db.Campaign
	groups    map[uuid.UUID]*db.Group
	members   map[uuid.UUID][]uuid.UUID
	queue     map[uuid.UUID]map[uuid.UUID]bool // campaign -> contact set
	logs      []*db.DeliveryLog

	logsCleared bool
	resetCalled bool
	shouldFail  bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		contacts:  make(map[uuid.UUID]*db.Contact),
		templates: make(map[uuid.UUID]*db.Template),
		campaigns: make(map[uuid.UUID]*db.Campaign),
		groups:    make(map[uuid.UUID]*db.Group),
		members:   make(map[uuid.UUID][]uuid.UUID),
		queue:     make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *MockStore) CreateContact(ctx context.Context, c *db.Contact) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	m.contacts[c.ID] = c
	return nil
}

func (m *MockStore) ListContacts(ctx context.Context) ([]*db.Contact, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}
	var out []*db.Contact
	for _, c := range m.contacts {
		out = append(out, c)
	}
	return out, nil
}

func (m *MockStore) CreateTemplate(ctx context.Context, t *db.Template, variations []string) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	m.templates[t.ID] = t
	return nil
}

func (m *MockStore) CreateCampaign(ctx context.Context, c *db.Campaign) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	m.campaigns[c.ID] = c
	return nil
}

func (m *MockStore) CampaignByID(ctx context.Context, id uuid.UUID) (*db.Campaign, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}
	return m.campaigns[id], nil
}

func (m *MockStore) ListCampaigns(ctx context.Context) ([]*db.CampaignSummary, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}
	var out []*db.CampaignSummary
	for _, c := range m.campaigns {
		out = append(out, &db.CampaignSummary{Campaign: *c})
	}
	return out, nil
}

func (m *MockStore) ActivateCampaign(ctx context.Context, campaignID, templateID uuid.UUID) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	c, ok := m.campaigns[campaignID]
	if !ok {
		return errors.New("campaign not found")
	}
	tid := templateID
	c.TemplateID = &tid
	c.Status = db.CampaignActive
	return nil
}

func (m *MockStore) SetCampaignStatus(ctx context.Context, id uuid.UUID, status string) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	c, ok := m.campaigns[id]
	if !ok {
		return errors.New("campaign not found")
	}
	c.Status = status
	return nil
}

func (m *MockStore) EnqueueRecipients(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) (int, error) {
	if m.shouldFail {
		return 0, ErrDatabaseError
	}
	set, ok := m.queue[campaignID]
	if !ok {
		set = make(map[uuid.UUID]bool)
		m.queue[campaignID] = set
	}
	added := 0
	for _, id := range contactIDs {
		if !set[id] {
			set[id] = true
			added++
		}
	}
	return added, nil
}

func (m *MockStore) RemovePendingRecipients(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) (int, error) {
	if m.shouldFail {
		return 0, ErrDatabaseError
	}
	set := m.queue[campaignID]
	removed := 0
	for _, id := range contactIDs {
		if set[id] {
			delete(set, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MockStore) PendingTotal(ctx context.Context) (int, error) {
	if m.shouldFail {
		return 0, ErrDatabaseError
	}
	n := 0
	for _, set := range m.queue {
		n += len(set)
	}
	return n, nil
}

func (m *MockStore) RecentLogs(ctx context.Context, limit int) ([]*db.DeliveryLog, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}
	if len(m.logs) > limit {
		return m.logs[:limit], nil
	}
	return m.logs, nil
}

func (m *MockStore) ClearDeliveryLogs(ctx context.Context) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	m.logs = nil
	m.logsCleared = true
	return nil
}

func (m *MockStore) CreateGroup(ctx context.Context, g *db.Group) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	m.groups[g.ID] = g
	return nil
}

func (m *MockStore) AddGroupMember(ctx context.Context, groupID, contactID uuid.UUID) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	m.members[groupID] = append(m.members[groupID], contactID)
	return nil
}

func (m *MockStore) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]*db.Contact, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}
	var out []*db.Contact
	for _, id := range m.members[groupID] {
		if c, ok := m.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockStore) ResetAll(ctx context.Context) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	m.resetCalled = true
	return nil
}

// MockDispatcher records start/stop calls
type MockDispatcher struct {
	startCalled bool
	stopCalled  bool
	running     bool
}

func (m *MockDispatcher) Start() { m.startCalled = true; m.running = true }
func (m *MockDispatcher) Stop()  { m.stopCalled = true; m.running = false }
func (m *MockDispatcher) Running() bool {
	return m.running
}

// MockQuota returns fixed quota numbers
type MockQuota struct {
	count int
	limit int
}

func (m *MockQuota) TodayCount(ctx context.Context) (int, error) { return m.count, nil }
func (m *MockQuota) Limit() int                                  { return m.limit }

func newTestHandler() (*Handler, *MockStore, *MockDispatcher) {
	store := NewMockStore()
	dispatcher := &MockDispatcher{}
	h := NewHandler(zap.NewNop(), store, dispatcher, &MockQuota{count: 12, limit: 80})
	return h, store, dispatcher
}

func testRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Post("/contacts", h.CreateContact)
		r.Get("/contacts", h.ListContacts)
		r.Post("/templates", h.CreateTemplate)
		r.Post("/campaigns", h.CreateCampaign)
		r.Get("/campaigns", h.ListCampaigns)
		r.Get("/campaigns/{id}", h.GetCampaign)
		r.Post("/campaigns/{id}/start", h.StartCampaign)
		r.Post("/campaigns/{id}/resume", h.ResumeCampaign)
		r.Post("/campaigns/{id}/recipients", h.AddRecipients)
		r.Delete("/campaigns/{id}/recipients", h.RemoveRecipients)
		r.Post("/dispatch/stop", h.StopDispatch)
		r.Get("/dispatch/status", h.DispatchStatus)
		r.Get("/logs", h.RecentLogs)
		r.Delete("/logs", h.ClearLogs)
		r.Post("/groups", h.CreateGroup)
		r.Post("/groups/{id}/members", h.AddGroupMember)
		r.Get("/groups/{id}/members", h.ListGroupMembers)
		r.Post("/admin/reset", h.ResetDatabase)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateContact_Success(t *testing.T) {
	h, store, _ := newTestHandler()
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/v1/contacts", ContactRequest{Name: "Asha", Phone: "+91 98765-43210"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.contacts) != 1 {
		t.Errorf("expected 1 contact stored, got %d", len(store.contacts))
	}
}

func TestCreateContact_MissingPhone(t *testing.T) {
	h, _, _ := newTestHandler()
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/v1/contacts", ContactRequest{Name: "Asha"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateContact_PhoneWithoutDigits(t *testing.T) {
	h, _, _ := newTestHandler()
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/v1/contacts", ContactRequest{Name: "Asha", Phone: "000"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for all-zero phone, got %d", rec.Code)
	}
}

func TestCreateTemplate_Validation(t *testing.T) {
	h, _, _ := newTestHandler()
	router := testRouter(h)

	tests := []struct {
		name string
		req  TemplateRequest
		want int
	}{
		{"valid text", TemplateRequest{Title: "t", Kind: db.KindText, Body: "Hi {name}"}, http.StatusCreated},
		{"missing body", TemplateRequest{Title: "t", Kind: db.KindText}, http.StatusBadRequest},
		{"bad kind", TemplateRequest{Title: "t", Kind: "audio", Body: "x"}, http.StatusBadRequest},
		{"image without media", TemplateRequest{Title: "t", Kind: db.KindImage, Body: "x"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, "POST", "/v1/templates", tt.req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestStartCampaign_Success(t *testing.T) {
	h, store, dispatcher := newTestHandler()
	router := testRouter(h)

	campaign := &db.Campaign{ID: uuid.New(), Name: "launch", Status: db.CampaignDraft}
	store.campaigns[campaign.ID] = campaign
	c1 := uuid.New()
	c2 := uuid.New()

	rec := doJSON(t, router, "POST", "/v1/campaigns/"+campaign.ID.String()+"/start", StartCampaignRequest{
		Template:   TemplateRequest{Title: "launch", Kind: db.KindText, Body: "Hi {name}", Variations: []string{"Hey {name}"}},
		ContactIDs: []string{c1.String(), c2.String()},
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp StartCampaignResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Enqueued != 2 {
		t.Errorf("expected 2 enqueued, got %d", resp.Enqueued)
	}
	if campaign.Status != db.CampaignActive {
		t.Errorf("expected campaign active, got %q", campaign.Status)
	}
	if campaign.TemplateID == nil {
		t.Error("expected template assigned to campaign")
	}
	if !dispatcher.startCalled {
		t.Error("expected dispatcher to be started")
	}
}

func TestStartCampaign_NotFound(t *testing.T) {
	h, _, _ := newTestHandler()
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/v1/campaigns/"+uuid.NewString()+"/start", StartCampaignRequest{
		Template:   TemplateRequest{Title: "t", Kind: db.KindText, Body: "x"},
		ContactIDs: []string{uuid.NewString()},
	})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStartCampaign_NoRecipients(t *testing.T) {
	h, store, _ := newTestHandler()
	router := testRouter(h)

	campaign := &db.Campaign{ID: uuid.New(), Name: "launch", Status: db.CampaignDraft}
	store.campaigns[campaign.ID] = campaign

	rec := doJSON(t, router, "POST", "/v1/campaigns/"+campaign.ID.String()+"/start", StartCampaignRequest{
		Template: TemplateRequest{Title: "t", Kind: db.KindText, Body: "x"},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStartCampaign_GroupRecipients(t *testing.T) {
	h, store, _ := newTestHandler()
	router := testRouter(h)

	campaign := &db.Campaign{ID: uuid.New(), Name: "launch", Status: db.CampaignDraft}
	store.campaigns[campaign.ID] = campaign

	group := &db.Group{ID: uuid.New(), Name: "vips"}
	store.groups[group.ID] = group
	contact := &db.Contact{ID: uuid.New(), Name: "Asha", Phone: "911"}
	store.contacts[contact.ID] = contact
	store.members[group.ID] = []uuid.UUID{contact.ID}

	gid := group.ID.String()
	rec := doJSON(t, router, "POST", "/v1/campaigns/"+campaign.ID.String()+"/start", StartCampaignRequest{
		Template: TemplateRequest{Title: "t", Kind: db.KindText, Body: "x"},
		GroupID:  &gid,
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp StartCampaignResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Enqueued != 1 {
		t.Errorf("expected 1 enqueued from group, got %d", resp.Enqueued)
	}
}

func TestResumeCampaign_Paused(t *testing.T) {
	h, store, dispatcher := newTestHandler()
	router := testRouter(h)

	campaign := &db.Campaign{ID: uuid.New(), Name: "launch", Status: db.CampaignPaused}
	store.campaigns[campaign.ID] = campaign

	rec := doJSON(t, router, "POST", "/v1/campaigns/"+campaign.ID.String()+"/resume", nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if campaign.Status != db.CampaignActive {
		t.Errorf("expected campaign active, got %q", campaign.Status)
	}
	if !dispatcher.startCalled {
		t.Error("expected dispatcher to be started")
	}
}

func TestResumeCampaign_Completed(t *testing.T) {
	h, store, _ := newTestHandler()
	router := testRouter(h)

	campaign := &db.Campaign{ID: uuid.New(), Name: "done", Status: db.CampaignCompleted}
	store.campaigns[campaign.ID] = campaign

	rec := doJSON(t, router, "POST", "/v1/campaigns/"+campaign.ID.String()+"/resume", nil)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for completed campaign, got %d", rec.Code)
	}
}

func TestAddRecipients_SkipsDuplicates(t *testing.T) {
	h, store, _ := newTestHandler()
	router := testRouter(h)

	campaignID := uuid.New()
	store.campaigns[campaignID] = &db.Campaign{ID: campaignID, Status: db.CampaignActive}
	c1 := uuid.New()
	store.queue[campaignID] = map[uuid.UUID]bool{c1: true}

	c2 := uuid.New()
	rec := doJSON(t, router, "POST", "/v1/campaigns/"+campaignID.String()+"/recipients", RecipientsRequest{
		ContactIDs: []string{c1.String(), c2.String()},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if int(resp["enqueued"].(float64)) != 1 {
		t.Errorf("expected 1 enqueued, got %v", resp["enqueued"])
	}
	if int(resp["skipped"].(float64)) != 1 {
		t.Errorf("expected 1 skipped, got %v", resp["skipped"])
	}
}

func TestRemoveRecipients(t *testing.T) {
	h, store, _ := newTestHandler()
	router := testRouter(h)

	campaignID := uuid.New()
	c1 := uuid.New()
	store.queue[campaignID] = map[uuid.UUID]bool{c1: true}

	rec := doJSON(t, router, "DELETE", "/v1/campaigns/"+campaignID.String()+"/recipients", RecipientsRequest{
		ContactIDs: []string{c1.String()},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(store.queue[campaignID]) != 0 {
		t.Error("expected recipient removed from queue")
	}
}

func TestStopDispatch(t *testing.T) {
	h, _, dispatcher := newTestHandler()
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/v1/dispatch/stop", nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !dispatcher.stopCalled {
		t.Error("expected dispatcher stop to be called")
	}
}

func TestDispatchStatus(t *testing.T) {
	h, store, dispatcher := newTestHandler()
	router := testRouter(h)

	dispatcher.running = true
	campaignID := uuid.New()
	store.queue[campaignID] = map[uuid.UUID]bool{uuid.New(): true, uuid.New(): true}

	rec := doJSON(t, router, "GET", "/v1/dispatch/status", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp DispatchStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Running {
		t.Error("expected running true")
	}
	if resp.QueueDepth != 2 {
		t.Errorf("expected queue depth 2, got %d", resp.QueueDepth)
	}
	if resp.TodayCount != 12 || resp.DailyLimit != 80 {
		t.Errorf("unexpected quota numbers: %d/%d", resp.TodayCount, resp.DailyLimit)
	}
}

func TestRecentLogs_DefaultLimit(t *testing.T) {
	h, store, _ := newTestHandler()
	router := testRouter(h)

	for i := 0; i < 60; i++ {
		store.logs = append(store.logs, &db.DeliveryLog{ID: uuid.New(), Outcome: db.OutcomeSent})
	}

	rec := doJSON(t, router, "GET", "/v1/logs", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if int(resp["count"].(float64)) != 50 {
		t.Errorf("expected default limit of 50 entries, got %v", resp["count"])
	}
}

func TestClearLogs(t *testing.T) {
	h, store, _ := newTestHandler()
	router := testRouter(h)

	store.logs = []*db.DeliveryLog{{ID: uuid.New(), Outcome: db.OutcomeSent}}

	rec := doJSON(t, router, "DELETE", "/v1/logs", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !store.logsCleared {
		t.Error("expected logs to be cleared")
	}
}

func TestGroups_CreateAndMembers(t *testing.T) {
	h, store, _ := newTestHandler()
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/v1/groups", GroupRequest{Name: "vips"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var group db.Group
	_ = json.Unmarshal(rec.Body.Bytes(), &group)

	contact := &db.Contact{ID: uuid.New(), Name: "Asha", Phone: "911"}
	store.contacts[contact.ID] = contact

	rec = doJSON(t, router, "POST", "/v1/groups/"+group.ID.String()+"/members", map[string]string{
		"contact_id": contact.ID.String(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "GET", "/v1/groups/"+group.ID.String()+"/members", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("expected 1 member, got %v", resp["count"])
	}
}

func TestResetDatabase_StopsDispatchFirst(t *testing.T) {
	h, store, dispatcher := newTestHandler()
	router := testRouter(h)

	rec := doJSON(t, router, "POST", "/v1/admin/reset", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !dispatcher.stopCalled {
		t.Error("expected dispatcher stopped before reset")
	}
	if !store.resetCalled {
		t.Error("expected reset to be executed")
	}
}

func TestGetCampaign_InvalidID(t *testing.T) {
	h, _, _ := newTestHandler()
	router := testRouter(h)

	rec := doJSON(t, router, "GET", "/v1/campaigns/not-a-uuid", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem+json errors, got %q", ct)
	}
}
