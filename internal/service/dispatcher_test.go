package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"clubportal/internal/model"
	"clubportal/pkg/mailer"
)

type fakeTransport struct {
	sent    []mailer.Message
	failFor map[string]bool
}

func (f *fakeTransport) Send(_ context.Context, msg mailer.Message) error {
	if f.failFor[msg.ToEmail] {
		return errors.New("provider unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSink struct {
	entries []model.EmailLogEntry
	err     error
}

func (f *fakeSink) Insert(_ context.Context, e model.EmailLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func newTestDispatcher(sent int, transport *fakeTransport, sink *fakeSink) *Dispatcher {
	quota := newTestQuota(&fakeCounter{count: sent}, time.Now())
	return NewDispatcher(quota, sink, transport, 0, zap.NewNop())
}

func recipients(n int) []model.Member {
	out := make([]model.Member, 0, n)
	for i := 1; i <= n; i++ {
		m := member(i, "member")
		m.Email = fmt.Sprintf("r%d@example.com", i)
		out = append(out, m)
	}
	return out
}

func testNotification(typ, priority string) *model.Notification {
	return &model.Notification{
		ID:       "11111111-1111-1111-1111-111111111111",
		Title:    "Track session moved",
		Message:  "Tuesday's session starts at 19:30 this week.",
		Type:     typ,
		Priority: priority,
	}
}

func TestDispatchSendsAndLogs(t *testing.T) {
	transport := &fakeTransport{}
	sink := &fakeSink{}
	d := newTestDispatcher(0, transport, sink)

	res := d.Send(context.Background(), testNotification(model.TypeGeneral, model.PriorityNormal), nil, recipients(2))

	if res.Sent != 2 || res.Skipped != 0 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(transport.sent) != 2 {
		t.Errorf("expected 2 transport sends, got %d", len(transport.sent))
	}
	if len(sink.entries) != 2 {
		t.Fatalf("expected 2 email log entries, got %d", len(sink.entries))
	}
	if sink.entries[0].RecipientID != 1 || sink.entries[0].Subject == "" {
		t.Errorf("unexpected log entry: %+v", sink.entries[0])
	}
}

func TestDispatchSkipsOptedOut(t *testing.T) {
	rs := recipients(3)
	rs[1].EmailNotificationsEnabled = false

	transport := &fakeTransport{}
	d := newTestDispatcher(0, transport, &fakeSink{})

	res := d.Send(context.Background(), testNotification(model.TypeGeneral, model.PriorityNormal), nil, rs)

	if res.Sent != 2 || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, msg := range transport.sent {
		if msg.ToEmail == rs[1].Email {
			t.Error("opted-out recipient was emailed")
		}
	}
}

func TestDispatchSkipsInactive(t *testing.T) {
	rs := recipients(2)
	rs[0].MembershipStatus = model.MembershipLapsed

	d := newTestDispatcher(0, &fakeTransport{}, &fakeSink{})

	res := d.Send(context.Background(), testNotification(model.TypeGeneral, model.PriorityNormal), nil, rs)

	if res.Sent != 1 || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDispatchQuotaExhausted(t *testing.T) {
	transport := &fakeTransport{}
	d := newTestDispatcher(DailyEmailLimit, transport, &fakeSink{})

	res := d.Send(context.Background(), testNotification(model.TypeGeneral, model.PriorityNormal), nil, recipients(3))

	if res.Sent != 0 || res.Skipped != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(transport.sent) != 0 {
		t.Error("no emails should go out when the quota is exhausted")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "quota exhausted") {
		t.Errorf("expected explanatory quota error, got %v", res.Errors)
	}
}

func TestDispatchTruncatesToRemainingQuota(t *testing.T) {
	transport := &fakeTransport{}
	sink := &fakeSink{}
	d := newTestDispatcher(DailyEmailLimit-3, transport, sink)

	res := d.Send(context.Background(), testNotification(model.TypeGeneral, model.PriorityNormal), nil, recipients(5))

	if res.Sent != 3 || res.Skipped != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "2 recipient(s) skipped") {
		t.Errorf("expected explanatory truncation error, got %v", res.Errors)
	}
}

func TestDispatchContinuesPastFailures(t *testing.T) {
	rs := recipients(3)
	transport := &fakeTransport{failFor: map[string]bool{rs[1].Email: true}}
	sink := &fakeSink{}
	d := newTestDispatcher(0, transport, sink)

	res := d.Send(context.Background(), testNotification(model.TypeGeneral, model.PriorityNormal), nil, rs)

	if res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], rs[1].Email) {
		t.Errorf("expected per-recipient error naming the address, got %v", res.Errors)
	}
	// Failed sends must not be counted against the quota.
	if len(sink.entries) != 2 {
		t.Errorf("expected 2 log entries, got %d", len(sink.entries))
	}
}

func TestDispatchUrgentSubjectPrefix(t *testing.T) {
	tests := []struct {
		name       string
		typ        string
		priority   string
		wantPrefix bool
	}{
		{"urgent type", model.TypeUrgent, model.PriorityNormal, true},
		{"urgent priority", model.TypeGeneral, model.PriorityUrgent, true},
		{"plain general", model.TypeGeneral, model.PriorityNormal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			d := newTestDispatcher(0, transport, &fakeSink{})

			d.Send(context.Background(), testNotification(tt.typ, tt.priority), nil, recipients(1))

			if len(transport.sent) != 1 {
				t.Fatal("expected one send")
			}
			got := strings.HasPrefix(transport.sent[0].Subject, "[URGENT] ")
			if got != tt.wantPrefix {
				t.Errorf("subject %q, want prefix=%v", transport.sent[0].Subject, tt.wantPrefix)
			}
		})
	}
}

func TestDispatchLogFailureDoesNotFailSend(t *testing.T) {
	transport := &fakeTransport{}
	sink := &fakeSink{err: errors.New("insert failed")}
	d := newTestDispatcher(0, transport, sink)

	res := d.Send(context.Background(), testNotification(model.TypeGeneral, model.PriorityNormal), nil, recipients(1))

	if res.Sent != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSendDirectBypassesQuota(t *testing.T) {
	transport := &fakeTransport{}
	sink := &fakeSink{}
	d := newTestDispatcher(DailyEmailLimit, transport, sink)

	err := d.SendDirect(context.Background(), member(1, "lirf"), "LIRF cover", "<p>hi</p>", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transport.sent) != 1 {
		t.Error("digest send should ignore the exhausted quota")
	}
	if len(sink.entries) != 0 {
		t.Error("digest sends must not be written to the email log")
	}
}
