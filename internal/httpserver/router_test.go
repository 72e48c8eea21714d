package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubportal/internal/handler"
	"clubportal/internal/model"
	"clubportal/internal/service"
	"clubportal/internal/util"
	"clubportal/pkg/rbac"
	"clubportal/pkg/trace"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryDirectory struct {
	members []model.Member
}

func (d *memoryDirectory) ActiveMembers(_ context.Context, _ bool) ([]model.Member, error) {
	return d.members, nil
}

func (d *memoryDirectory) BookedMembers(_ context.Context, _ int) ([]model.Member, error) {
	return d.members, nil
}

func (d *memoryDirectory) ElevatedActiveMembers(_ context.Context) ([]model.Member, error) {
	return nil, nil
}

// memoryStore mirrors the persistence rules of the SQL store: read_at is
// written once and never cleared, dismissing fills read_at if it is still
// empty, and the recipient feed omits dismissed and expired notifications.
type memoryStore struct {
	notifications []*model.Notification
	records       map[string]map[int]*model.DeliveryRecord
	seq           int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		records: make(map[string]map[int]*model.DeliveryRecord),
	}
}

// tick returns a strictly increasing timestamp, standing in for NOW().
func (s *memoryStore) tick() time.Time {
	s.seq++
	return time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

func (s *memoryStore) record(id string, memberID int) *model.DeliveryRecord {
	return s.records[id][memberID]
}

func (s *memoryStore) Insert(_ context.Context, n *model.Notification) error {
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *memoryStore) InsertDelivery(_ context.Context, id string, memberID int) error {
	if s.records[id] == nil {
		s.records[id] = make(map[int]*model.DeliveryRecord)
	}
	s.records[id][memberID] = &model.DeliveryRecord{
		NotificationID: id,
		MemberID:       memberID,
		DeliveredAt:    s.tick(),
	}
	return nil
}

func (s *memoryStore) ListForRecipient(_ context.Context, memberID int, limit int) ([]model.FeedItem, error) {
	var items []model.FeedItem
	for _, n := range s.notifications {
		rec := s.record(n.ID, memberID)
		if rec == nil || rec.DismissedAt != nil {
			continue
		}
		if n.ExpiresAt != nil && !n.ExpiresAt.After(time.Now()) {
			continue
		}
		items = append(items, model.FeedItem{
			Notification: *n,
			DeliveredAt:  rec.DeliveredAt,
			ReadAt:       rec.ReadAt,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].DeliveredAt.After(items[j].DeliveredAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *memoryStore) MarkRead(_ context.Context, id string, memberID int) error {
	rec := s.record(id, memberID)
	if rec == nil || rec.ReadAt != nil {
		return nil
	}
	t := s.tick()
	rec.ReadAt = &t
	return nil
}

func (s *memoryStore) Dismiss(_ context.Context, id string, memberID int) error {
	rec := s.record(id, memberID)
	if rec == nil || rec.DismissedAt != nil {
		return nil
	}
	t := s.tick()
	rec.DismissedAt = &t
	if rec.ReadAt == nil {
		rec.ReadAt = &t
	}
	return nil
}

type nullPublisher struct{}

func (nullPublisher) PublishWithContext(_ context.Context, _ string, _ any) error { return nil }

type zeroSendCounter struct{}

func (zeroSendCounter) CountOnDay(_ context.Context, _ time.Time) (int, error) { return 0, nil }

type staticRuns struct {
	run *model.Run
}

func (r *staticRuns) GetRun(_ context.Context, _ int) (*model.Run, error) {
	return r.run, nil
}

type fakeBroker struct {
	connected bool
}

func (f fakeBroker) IsConnected() bool { return f.connected }

func setupPortal(t *testing.T) (*Router, *memoryStore) {
	t.Helper()
	return setupPortalWithBroker(t, nil)
}

func setupPortalWithBroker(t *testing.T, broker BrokerStatus) (*Router, *memoryStore) {
	t.Helper()

	dir := &memoryDirectory{members: []model.Member{
		{ID: 1, Name: "Sam", Email: "sam@example.com", MembershipStatus: model.MembershipActive, EmailNotificationsEnabled: true},
	}}
	store := newMemoryStore()

	resolver := service.NewRecipientResolver(dir)
	quota := service.NewQuotaTracker(zeroSendCounter{}, 0)
	notifications := service.NewNotificationService(store, resolver, nullPublisher{}, zap.NewNop())

	runs := &staticRuns{run: &model.Run{ID: 4, Title: "Tuesday 5k", LedBy: 10}}
	nh := handler.NewNotificationHandler(notifications, quota, runs, zap.NewNop())

	return NewPortalRouter(nh, testSecret, nil, broker), store
}

func token(t *testing.T, memberID int, role string) string {
	t.Helper()
	tok, err := util.GenerateJWT(memberID, role, testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

func doRequest(router *Router, method, path, bearer string, body any) *httptest.ResponseRecorder {
	var reqBody bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = *bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, req)
	return w
}

func TestCreateRequiresAuth(t *testing.T) {
	router, _ := setupPortal(t)

	w := doRequest(router, http.MethodPost, "/api/notifications", "", gin.H{})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestCreateForbiddenForPlainMember(t *testing.T) {
	router, _ := setupPortal(t)

	w := doRequest(router, http.MethodPost, "/api/notifications", token(t, 1, rbac.RoleMember), gin.H{
		"title":   "Club AGM",
		"message": "Next Thursday.",
		"type":    model.TypeGeneral,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestCreateGeneralAsLIRF(t *testing.T) {
	router, store := setupPortal(t)

	w := doRequest(router, http.MethodPost, "/api/notifications", token(t, 10, rbac.RoleLIRF), gin.H{
		"title":   "Club AGM",
		"message": "Next Thursday.",
		"type":    model.TypeGeneral,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if len(store.notifications) != 1 {
		t.Errorf("expected 1 stored notification, got %d", len(store.notifications))
	}

	var resp struct {
		Recipients int `json:"recipients"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Recipients != 1 {
		t.Errorf("recipients = %d, want 1", resp.Recipients)
	}
}

func TestCreateRunSpecificOwnership(t *testing.T) {
	tests := []struct {
		name     string
		memberID int
		role     string
		want     int
	}{
		{"leading lirf", 10, rbac.RoleLIRF, http.StatusCreated},
		{"other lirf", 11, rbac.RoleLIRF, http.StatusForbidden},
		{"admin", 99, rbac.RoleAdmin, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupPortal(t)

			w := doRequest(router, http.MethodPost, "/api/notifications", token(t, tt.memberID, tt.role), gin.H{
				"title":   "Route change",
				"message": "We start from the east gate.",
				"type":    model.TypeRunSpecific,
				"run_id":  4,
			})
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCreateInvalidPayload(t *testing.T) {
	router, _ := setupPortal(t)

	w := doRequest(router, http.MethodPost, "/api/notifications", token(t, 10, rbac.RoleLIRF), gin.H{
		"title": "missing message and type",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListNotifications(t *testing.T) {
	router, _ := setupPortal(t)

	w := doRequest(router, http.MethodGet, "/api/notifications", token(t, 1, rbac.RoleMember), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Notifications []model.FeedItem `json:"notifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Notifications == nil {
		t.Error("notifications should marshal as an empty array, not null")
	}
}

func TestMarkReadAndDismiss(t *testing.T) {
	router, store := setupPortal(t)
	bearer := token(t, 1, rbac.RoleMember)
	store.InsertDelivery(context.Background(), "n1", 1)

	if w := doRequest(router, http.MethodPut, "/api/notifications/n1/read", bearer, nil); w.Code != http.StatusNoContent {
		t.Fatalf("read status = %d, want 204", w.Code)
	}
	rec := store.record("n1", 1)
	if rec.ReadAt == nil {
		t.Fatal("read_at was not set")
	}
	first := *rec.ReadAt

	// A second read is a no-op: the original timestamp survives.
	if w := doRequest(router, http.MethodPut, "/api/notifications/n1/read", bearer, nil); w.Code != http.StatusNoContent {
		t.Fatalf("repeat read status = %d, want 204", w.Code)
	}
	if !rec.ReadAt.Equal(first) {
		t.Errorf("read_at moved from %v to %v on repeat read", first, *rec.ReadAt)
	}

	if w := doRequest(router, http.MethodPut, "/api/notifications/n1/dismiss", bearer, nil); w.Code != http.StatusNoContent {
		t.Fatalf("dismiss status = %d, want 204", w.Code)
	}
	if rec.DismissedAt == nil {
		t.Error("dismissed_at was not set")
	}
	if !rec.ReadAt.Equal(first) {
		t.Errorf("dismissing an already-read notification must keep read_at, got %v", *rec.ReadAt)
	}
}

func TestDismissBackfillsReadAt(t *testing.T) {
	router, store := setupPortal(t)
	bearer := token(t, 1, rbac.RoleMember)
	store.InsertDelivery(context.Background(), "n1", 1)

	if w := doRequest(router, http.MethodPut, "/api/notifications/n1/dismiss", bearer, nil); w.Code != http.StatusNoContent {
		t.Fatalf("dismiss status = %d, want 204", w.Code)
	}

	rec := store.record("n1", 1)
	if rec.DismissedAt == nil || rec.ReadAt == nil {
		t.Fatalf("unexpected record after dismiss: %+v", rec)
	}
	if !rec.ReadAt.Equal(*rec.DismissedAt) {
		t.Errorf("dismissing an unread notification must set read_at alongside, got read=%v dismissed=%v",
			*rec.ReadAt, *rec.DismissedAt)
	}
}

func TestListExcludesDismissedAndExpired(t *testing.T) {
	router, store := setupPortal(t)
	bearer := token(t, 1, rbac.RoleMember)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	for _, n := range []*model.Notification{
		{ID: "live", Title: "Club AGM", Type: model.TypeGeneral},
		{ID: "old", Title: "Route change", Type: model.TypeGeneral},
		{ID: "expired", Title: "Stale announcement", Type: model.TypeGeneral, ExpiresAt: &past},
	} {
		store.Insert(ctx, n)
		store.InsertDelivery(ctx, n.ID, 1)
	}
	store.Dismiss(ctx, "old", 1)

	w := doRequest(router, http.MethodGet, "/api/notifications", bearer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Notifications []model.FeedItem `json:"notifications"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(resp.Notifications) != 1 || resp.Notifications[0].ID != "live" {
		t.Errorf("feed should hold only the live notification, got %+v", resp.Notifications)
	}
}

func TestQuotaEndpointRBAC(t *testing.T) {
	router, _ := setupPortal(t)

	if w := doRequest(router, http.MethodGet, "/api/quota", token(t, 1, rbac.RoleMember), nil); w.Code != http.StatusForbidden {
		t.Errorf("member status = %d, want 403", w.Code)
	}

	w := doRequest(router, http.MethodGet, "/api/quota", token(t, 99, rbac.RoleAdmin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", w.Code)
	}

	var status service.QuotaStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if !status.Allowed || status.Total != service.DailyEmailLimit {
		t.Errorf("unexpected quota status: %+v", status)
	}
}

func TestReadyzReportsBrokerState(t *testing.T) {
	router, _ := setupPortalWithBroker(t, fakeBroker{connected: false})
	if w := doRequest(router, http.MethodGet, "/readyz", "", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("disconnected broker: status = %d, want 500", w.Code)
	}

	router, _ = setupPortalWithBroker(t, fakeBroker{connected: true})
	if w := doRequest(router, http.MethodGet, "/readyz", "", nil); w.Code != http.StatusOK {
		t.Errorf("connected broker: status = %d, want 200", w.Code)
	}
}

func TestTraceHeaderEchoed(t *testing.T) {
	router, _ := setupPortal(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.Header, "abc123")
	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, req)

	if got := w.Header().Get(trace.Header); got != "abc123" {
		t.Errorf("trace header = %q, want abc123", got)
	}
}
