package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/studioos/internal/events"
	"github.com/wolfeidau/studioos/internal/models"
	"github.com/wolfeidau/studioos/internal/notify"
	"github.com/wolfeidau/studioos/internal/store/memory"
)

type outbox struct {
	messages []notify.Message
	err      error
}

func (o *outbox) Send(ctx context.Context, msg notify.Message) error {
	if o.err != nil {
		return o.err
	}
	o.messages = append(o.messages, msg)
	return nil
}

type syncer struct {
	synced []uuid.UUID
}

func (s *syncer) SyncInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) error {
	s.synced = append(s.synced, invoiceID)
	return nil
}

func invoiceEvent(orgID uuid.UUID, eventType string, total float64, email string) events.Event {
	return events.New(eventType, orgID, map[string]any{
		"invoice": map[string]any{
			"id":       "0190b9c4-1c2e-7000-8000-000000000001",
			"number":   "INV-2026-0001",
			"currency": "usd",
			"due_date": "2026-11-01",
		},
		"client":  map[string]any{"name": "Ada", "email": email},
		"org":     map[string]any{"name": "Golden Hour"},
		"total":   total,
		"balance": total,
		"link":    "https://studio.example.com/p/invoices/tok",
	})
}

func TestConditions_Evaluate(t *testing.T) {
	c := NewConditions()
	env := map[string]any{
		"total":  750.0,
		"client": map[string]any{"email": "ada@example.com"},
	}

	tests := []struct {
		name      string
		condition string
		want      bool
		wantErr   bool
	}{
		{name: "empty is true", condition: "", want: true},
		{name: "whitespace is true", condition: "   ", want: true},
		{name: "numeric comparison", condition: "total > 500", want: true},
		{name: "false comparison", condition: "total > 1000", want: false},
		{name: "nested string", condition: `total > 500 && client.email endsWith "@example.com"`, want: true},
		{name: "missing field is nil", condition: "booking == nil", want: true},
		{name: "syntax error", condition: "total >", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Evaluate(tt.condition, env)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestConditions_CachesPrograms(t *testing.T) {
	c := NewConditions()
	for range 3 {
		_, err := c.Evaluate("total > 1", map[string]any{"total": 2.0})
		require.NoError(t, err)
	}
	require.Len(t, c.programs, 1)
}

func TestConditions_Validate(t *testing.T) {
	c := NewConditions()

	require.NoError(t, c.Validate("", events.InvoiceSent))
	require.NoError(t, c.Validate(`total > 500 && client.email endsWith "@example.com"`, events.InvoiceSent))
	require.NoError(t, c.Validate(`gallery.title contains "Wedding"`, events.GalleryDelivered))

	err := c.Validate("invoice.total > 1", events.BookingCreated)
	require.ErrorIs(t, err, ErrInvalidCondition)

	err = c.Validate("total + 1", events.InvoiceSent)
	require.ErrorIs(t, err, ErrInvalidCondition)
}

func TestRender(t *testing.T) {
	subject, body, err := Render(models.EmailTemplate{
		Subject: "Invoice {{.invoice.number}}",
		Body:    "Hi {{.client.name}}, pay {{printf \"%.2f\" .total}} at {{.link}}",
	}, invoiceEvent(uuid.New(), events.InvoiceSent, 120.5, "ada@example.com").Payload)
	require.NoError(t, err)
	require.Equal(t, "Invoice INV-2026-0001", subject)
	require.Equal(t, "Hi Ada, pay 120.50 at https://studio.example.com/p/invoices/tok", body)
}

func TestValidateTemplate(t *testing.T) {
	require.NoError(t, ValidateTemplate(models.EmailTemplate{Subject: "Hi", Body: "{{.client.name}}"}))
	require.ErrorIs(t, ValidateTemplate(models.EmailTemplate{Body: "x"}), ErrInvalidTemplate)
	require.ErrorIs(t, ValidateTemplate(models.EmailTemplate{Subject: "{{.x", Body: "x"}), ErrInvalidTemplate)
}

func TestEngine_Handle(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	conditions := NewConditions()
	rules := memory.NewAutomationStore()
	svc := NewRules(rules, conditions)

	_, err := svc.Create(ctx, orgID, RuleInput{
		Name:      "Large invoices",
		Trigger:   events.InvoiceSent,
		Condition: "total > 500",
		Enabled:   true,
		Action: models.AutomationAction{
			Type:     models.ActionSendEmail,
			Template: models.EmailTemplate{Subject: "Invoice {{.invoice.number}}", Body: "{{.link}}"},
		},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, orgID, RuleInput{
		Name:    "Disabled",
		Trigger: events.InvoiceSent,
		Enabled: false,
		Action: models.AutomationAction{
			Type:     models.ActionSendEmail,
			Template: models.EmailTemplate{Subject: "never"},
		},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, orgID, RuleInput{
		Name:    "Sync",
		Trigger: events.InvoiceSent,
		Enabled: true,
		Action:  models.AutomationAction{Type: models.ActionSyncQuickBooks},
	})
	require.NoError(t, err)

	t.Run("matching condition sends and syncs", func(t *testing.T) {
		box := &outbox{}
		qb := &syncer{}
		engine := NewEngine(rules, box, conditions)
		engine.SetInvoiceSyncer(qb)

		require.NoError(t, engine.Handle(ctx, invoiceEvent(orgID, events.InvoiceSent, 900, "ada@example.com")))
		require.Len(t, box.messages, 1)
		require.Equal(t, "ada@example.com", box.messages[0].To)
		require.Equal(t, "Ada", box.messages[0].ToName)
		require.Equal(t, "Invoice INV-2026-0001", box.messages[0].Subject)
		require.Len(t, qb.synced, 1)
	})

	t.Run("condition false skips email", func(t *testing.T) {
		box := &outbox{}
		engine := NewEngine(rules, box, conditions)

		require.NoError(t, engine.Handle(ctx, invoiceEvent(orgID, events.InvoiceSent, 100, "ada@example.com")))
		require.Empty(t, box.messages)
	})

	t.Run("other org untouched", func(t *testing.T) {
		box := &outbox{}
		engine := NewEngine(rules, box, conditions)

		require.NoError(t, engine.Handle(ctx, invoiceEvent(uuid.New(), events.InvoiceSent, 900, "ada@example.com")))
		require.Empty(t, box.messages)
	})

	t.Run("action failures are not returned", func(t *testing.T) {
		box := &outbox{err: errors.New("smtp down")}
		engine := NewEngine(rules, box, conditions)

		require.NoError(t, engine.Handle(ctx, invoiceEvent(orgID, events.InvoiceSent, 900, "ada@example.com")))
		require.NoError(t, engine.Handle(ctx, invoiceEvent(orgID, events.InvoiceSent, 900, "")))
	})
}

func TestEngine_SubscribedToBus(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	conditions := NewConditions()
	rules := memory.NewAutomationStore()
	_, err := NewRules(rules, conditions).Create(ctx, orgID, RuleInput{
		Name:    "Gallery ready",
		Trigger: events.GalleryDelivered,
		Enabled: true,
		Action: models.AutomationAction{
			Type:     models.ActionSendEmail,
			Template: models.EmailTemplate{Subject: "{{.gallery.title}} is ready", Body: "{{.url}}"},
		},
	})
	require.NoError(t, err)

	box := &outbox{}
	bus := events.NewBus()
	bus.Subscribe(NewEngine(rules, box, conditions).Handle)

	bus.Publish(ctx, events.New(events.GalleryDelivered, orgID, map[string]any{
		"gallery": map[string]any{"title": "Smith Wedding"},
		"client":  map[string]any{"name": "Ada", "email": "ada@example.com"},
		"url":     "https://studio.example.com/p/galleries/abc",
	}))

	require.Len(t, box.messages, 1)
	require.Equal(t, "Smith Wedding is ready", box.messages[0].Subject)
	require.Equal(t, "https://studio.example.com/p/galleries/abc", box.messages[0].Text)
}

func TestRules_Validate(t *testing.T) {
	r := NewRules(memory.NewAutomationStore(), NewConditions())
	email := models.AutomationAction{Type: models.ActionSendEmail, Template: models.EmailTemplate{Subject: "Hi"}}

	tests := []struct {
		name    string
		in      RuleInput
		wantErr error
	}{
		{name: "valid", in: RuleInput{Name: "a", Trigger: events.ContractSigned, Action: email}},
		{name: "missing name", in: RuleInput{Name: " ", Trigger: events.ContractSigned, Action: email}, wantErr: ErrNameRequired},
		{name: "unknown trigger", in: RuleInput{Name: "a", Trigger: "invoice.deleted", Action: email}, wantErr: ErrUnknownTrigger},
		{name: "unknown action", in: RuleInput{Name: "a", Trigger: events.ContractSigned, Action: models.AutomationAction{Type: "sms"}}, wantErr: ErrUnknownAction},
		{name: "bad condition", in: RuleInput{Name: "a", Trigger: events.ContractSigned, Condition: "total > 5", Action: email}, wantErr: ErrInvalidCondition},
		{name: "bad template", in: RuleInput{Name: "a", Trigger: events.ContractSigned, Action: models.AutomationAction{Type: models.ActionSendEmail}}, wantErr: ErrInvalidTemplate},
		{name: "sync on booking", in: RuleInput{Name: "a", Trigger: events.BookingCreated, Action: models.AutomationAction{Type: models.ActionSyncQuickBooks}}, wantErr: ErrActionTrigger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(&tt.in)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRules_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	r := NewRules(memory.NewAutomationStore(), NewConditions())

	in := RuleInput{
		Name:    "Receipt",
		Trigger: events.InvoicePaid,
		Enabled: true,
		Action:  models.AutomationAction{Type: models.ActionSendEmail, Template: models.EmailTemplate{Subject: "Thanks"}},
	}
	rule, err := r.Create(ctx, orgID, in)
	require.NoError(t, err)

	in.Enabled = false
	in.Condition = "payment_amount >= 100"
	updated, err := r.Update(ctx, orgID, rule.RuleID, in)
	require.NoError(t, err)
	require.False(t, updated.Enabled)
	require.Equal(t, "payment_amount >= 100", updated.Condition)

	require.NoError(t, r.Delete(ctx, orgID, rule.RuleID))
	rules, err := r.List(ctx, orgID)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestRules_Seed(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.Must(uuid.NewV7())
	r := NewRules(memory.NewAutomationStore(), NewConditions())

	defaults, err := DefaultRules()
	require.NoError(t, err)
	require.NotEmpty(t, defaults)

	created, err := r.Seed(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, created, len(defaults))

	for _, rule := range created {
		require.Equal(t, orgID, rule.OrgID)
		require.True(t, events.Known(rule.Trigger))
	}
}

func TestDefaultRules_RenderAgainstSamplePayloads(t *testing.T) {
	defaults, err := DefaultRules()
	require.NoError(t, err)

	for _, in := range defaults {
		t.Run(in.Name, func(t *testing.T) {
			if in.Action.Type != models.ActionSendEmail {
				return
			}
			subject, _, err := Render(in.Action.Template, SampleEnv(in.Trigger))
			require.NoError(t, err)
			require.NotEmpty(t, subject)
		})
	}
}

type fakeInvoices struct {
	calls int
	err   error
}

func (f *fakeInvoices) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	f.calls++
	return 2, f.err
}

type fakeGalleries struct {
	calls int
}

func (f *fakeGalleries) ArchiveExpired(ctx context.Context) (int, error) {
	f.calls++
	return 1, nil
}

type fakeCleaner struct {
	calls int
}

func (f *fakeCleaner) Cleanup() int {
	f.calls++
	return 0
}

func TestScheduler_RunOnce(t *testing.T) {
	invoices := &fakeInvoices{}
	galleries := &fakeGalleries{}
	cleaner := &fakeCleaner{}
	s := NewScheduler(invoices, galleries, cleaner, ScheduleConfig{})

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, 1, invoices.calls)
	require.Equal(t, 1, galleries.calls)
	require.Equal(t, 1, cleaner.calls)

	invoices.err = errors.New("db down")
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, galleries.calls, "a failing sweep does not stop the others")
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&fakeInvoices{}, &fakeGalleries{}, nil, ScheduleConfig{Overdue: "not a schedule"})
	require.Error(t, s.Start(context.Background()))

	s = NewScheduler(&fakeInvoices{}, &fakeGalleries{}, nil, ScheduleConfig{})
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
