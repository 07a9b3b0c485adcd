package workflow

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/models"
	"bitbucket.org/mmdatafocus/bpo_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type fakeStore struct {
	rows     []*models.PendingMessage
	fetchErr error
	sentErr  error

	sent     []string
	failed   map[string]string
	recorded []*models.ConversationMessage
}

func newFakeStore(rows ...*models.PendingMessage) *fakeStore {
	return &fakeStore{rows: rows, failed: map[string]string{}}
}

func (s *fakeStore) FetchDueMessages(ctx context.Context, limit int) ([]*models.PendingMessage, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if limit < len(s.rows) {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *fakeStore) MarkMessageSent(ctx context.Context, id string, sentAt time.Time) error {
	if s.sentErr != nil {
		return s.sentErr
	}
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkMessageFailed(ctx context.Context, id string, reason string) error {
	s.failed[id] = reason
	return nil
}

func (s *fakeStore) RecordOutboundMessage(ctx context.Context, msg *models.ConversationMessage) error {
	s.recorded = append(s.recorded, msg)
	return nil
}

type fakeSender struct {
	sent    []string
	failOn  map[string]error
	panicOn string
}

func (f *fakeSender) Send(ctx context.Context, phone string, text string) error {
	if phone == f.panicOn {
		panic("provider client blew up")
	}
	if err, ok := f.failOn[phone]; ok {
		return err
	}
	f.sent = append(f.sent, text)
	return nil
}

func newTestDispatcher(store Store, sender Sender) *MessageDispatcher {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewMessageDispatcher(store, sender, logger)
}

func pendingRow(id, phone, message string) *models.PendingMessage {
	return &models.PendingMessage{
		ID:          id,
		CompanyId:   "company-1",
		Phone:       phone,
		Message:     message,
		ScheduledAt: time.Now().Add(-time.Minute),
	}
}

func TestProcessDueEmptyBatch(t *testing.T) {
	store := newFakeStore()
	d := newTestDispatcher(store, &fakeSender{})

	summary, err := d.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if summary.Processed != 0 || summary.Success != 0 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want all zero", summary)
	}
}

func TestProcessDueFetchFailure(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = errors.New("connection refused")
	d := newTestDispatcher(store, &fakeSender{})

	_, err := d.ProcessDue(context.Background(), 10)
	if err == nil {
		t.Fatal("expected error when fetch fails")
	}
	var extErr *utils.ExternalFailureError
	if !errors.As(err, &extErr) {
		t.Fatalf("error type = %T, want ExternalFailureError", err)
	}
}

func TestProcessDueAllSuccess(t *testing.T) {
	store := newFakeStore(
		pendingRow("m1", "+5511999990001", "primeira"),
		pendingRow("m2", "+5511999990002", "segunda"),
	)
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	summary, err := d.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if summary.Processed != 2 || summary.Success != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 2 processed, 2 success", summary)
	}
	if len(store.sent) != 2 {
		t.Fatalf("sent ids = %v, want 2", store.sent)
	}
	if len(store.recorded) != 2 {
		t.Fatalf("conversation rows = %d, want 2", len(store.recorded))
	}
	if store.recorded[0].Direction != models.ConversationDirectionOutbound {
		t.Fatalf("direction = %q, want outbound", store.recorded[0].Direction)
	}
}

func TestProcessDueIsolatesRowFailures(t *testing.T) {
	store := newFakeStore(
		pendingRow("m1", "+5511999990001", "primeira"),
		pendingRow("m2", "+5511999990002", "segunda"),
		pendingRow("m3", "+5511999990003", "terceira"),
	)
	sender := &fakeSender{failOn: map[string]error{
		"+5511999990002": errors.New("provider timeout"),
	}}
	d := newTestDispatcher(store, sender)

	summary, err := d.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if summary.Processed != 3 || summary.Success != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 3/2/1", summary)
	}
	if len(store.sent) != 2 {
		t.Fatalf("sent ids = %v, want m1 and m3", store.sent)
	}
	if reason, ok := store.failed["m2"]; !ok || reason != "provider timeout" {
		t.Fatalf("failed[m2] = %q, want provider timeout", reason)
	}
	if summary.Results[1].Status != string(models.ScheduledMessageStatusFailed) {
		t.Fatalf("result status = %q, want failed", summary.Results[1].Status)
	}
}

func TestProcessDueRecoversFromSenderPanic(t *testing.T) {
	store := newFakeStore(
		pendingRow("m1", "+5511999990001", "primeira"),
		pendingRow("m2", "+5511999990002", "segunda"),
		pendingRow("m3", "+5511999990003", "terceira"),
	)
	sender := &fakeSender{panicOn: "+5511999990002"}
	d := newTestDispatcher(store, sender)

	summary, err := d.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if summary.Processed != 3 || summary.Success != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want panic confined to one row", summary)
	}
	if _, ok := store.failed["m2"]; !ok {
		t.Fatal("panicking row must be marked failed")
	}
}

func TestProcessDueMarkSentFailureCountsAsRowFailure(t *testing.T) {
	store := newFakeStore(pendingRow("m1", "+5511999990001", "oi"))
	store.sentErr = errors.New("deadlock")
	d := newTestDispatcher(store, &fakeSender{})

	summary, err := d.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if summary.Failed != 1 || summary.Success != 0 {
		t.Fatalf("summary = %+v, want the row counted as failed", summary)
	}
	if _, ok := store.failed["m1"]; !ok {
		t.Fatal("row must be marked failed when the sent outcome cannot be recorded")
	}
}

func TestProcessDueNilSender(t *testing.T) {
	store := newFakeStore(pendingRow("m1", "+5511999990001", "oi"))
	d := newTestDispatcher(store, nil)

	summary, err := d.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v, want row failed with unconfigured sender", summary)
	}
}

func TestProcessDueRendersTemplatedRows(t *testing.T) {
	row := pendingRow("m1", "+5511999990001", "fallback text")
	row.MessageType = string(models.TemplateTagDailyCashPosition)
	row.Data = []byte(`{"date":"2026-03-10","balance":"1000","available":"800","runway_days":12}`)

	store := newFakeStore(row)
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	summary, err := d.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if summary.Success != 1 {
		t.Fatalf("summary = %+v, want success", summary)
	}

	want, ok := models.RenderTemplate(models.TemplateTagDailyCashPosition, models.TemplatePayload{
		Date:       "2026-03-10",
		Balance:    decimal.NewFromInt(1000),
		Available:  decimal.NewFromInt(800),
		RunwayDays: 12,
	})
	if !ok {
		t.Fatal("template tag must be known")
	}
	if len(sender.sent) != 1 || sender.sent[0] != want {
		t.Fatalf("sent text = %q, want %q", sender.sent, want)
	}
	if store.recorded[0].Message != want {
		t.Fatalf("conversation text = %q, want rendered template", store.recorded[0].Message)
	}
}

func TestProcessDueUnknownTemplateFallsBack(t *testing.T) {
	row := pendingRow("m1", "+5511999990001", "fallback text")
	row.MessageType = "quarterly_report"
	row.Data = []byte(`{"date":"2026-03-10"}`)

	store := newFakeStore(row)
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	if _, err := d.ProcessDue(context.Background(), 10); err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "fallback text" {
		t.Fatalf("sent text = %q, want stored fallback", sender.sent)
	}
}

func TestProcessDueRespectsBatchLimit(t *testing.T) {
	store := newFakeStore(
		pendingRow("m1", "+5511999990001", "a"),
		pendingRow("m2", "+5511999990002", "b"),
		pendingRow("m3", "+5511999990003", "c"),
	)
	d := newTestDispatcher(store, &fakeSender{})

	summary, err := d.ProcessDue(context.Background(), 2)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("processed = %d, want 2", summary.Processed)
	}
}
