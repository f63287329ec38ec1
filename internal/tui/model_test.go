package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketrag/internal/catalog"
	"marketrag/internal/domain"
	"marketrag/internal/intent"
	"marketrag/internal/service"
	"marketrag/internal/session"
)

type fakeChat struct {
	reply   service.Reply
	err     error
	vendors []catalog.VendorInput
	result  catalog.Result
}

func (f *fakeChat) Handle(_ context.Context, sess *session.Session, text string) (service.Reply, error) {
	sess.Append(domain.RoleUser, text)
	if f.reply.Form != session.FormNone {
		sess.OpenForm(f.reply.Form)
	}
	sess.Append(domain.RoleAssistant, f.reply.Text)
	return f.reply, f.err
}

func (f *fakeChat) SubmitVendor(_ context.Context, sess *session.Session, in catalog.VendorInput) catalog.Result {
	f.vendors = append(f.vendors, in)
	if f.result.Success {
		sess.CloseForm()
	}
	return f.result
}

func (f *fakeChat) SubmitProduct(context.Context, *session.Session, catalog.ProductInput) catalog.Result {
	return f.result
}

func key(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

// step feeds msg to m and runs any returned command whose result is a chat
// or submit message.
func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	switch out := cmd().(type) {
	case replyMsg, submitMsg:
		next, _ = m.Update(out)
		m = next.(Model)
	}
	return m
}

func newModel(chat ChatPort) Model {
	m := New(context.Background(), chat, session.New(), "Gold vendors lead revenue.")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func TestQuestionShowsSources(t *testing.T) {
	chat := &fakeChat{reply: service.Reply{
		Verdict: intent.Verdict{Intent: intent.Question, Strategy: intent.StrategyKeywords},
		Text:    "- Gold vendors lead [1].",
		Answer: &domain.Answer{Text: "- Gold vendors lead [1].", Contexts: []domain.Context{
			{Source: "REPORT.md", Score: 0.8, Text: "Gold vendors lead revenue. Bronze vendors lag."},
			{Source: "kpis.csv", Score: 0.5, Text: "vendor_id,revenue"},
		}},
	}}
	m := newModel(chat)
	m.input.SetValue("Which vendors lead revenue?")
	m = step(t, m, key(tea.KeyEnter))

	assert.False(t, m.busy)
	assert.Empty(t, m.input.Value())
	require.Len(t, m.contexts, 2)
	assert.Contains(t, m.renderSource(), "REPORT.md")
	assert.Len(t, m.sess.Messages(), 2)

	m = step(t, m, key(tea.KeyDown))
	assert.Equal(t, 1, m.cursor)
	m = step(t, m, key(tea.KeyDown))
	assert.Equal(t, 0, m.cursor)
	assert.Contains(t, m.View(), "Marketplace BI Assistant")
}

func TestReplyErrorIsShown(t *testing.T) {
	chat := &fakeChat{err: errors.New("generation unavailable"), reply: service.Reply{Text: "Sorry"}}
	m := newModel(chat)
	m.input.SetValue("why?")
	m = step(t, m, key(tea.KeyEnter))
	assert.Contains(t, m.status, "generation unavailable")
}

func TestVendorForm(t *testing.T) {
	chat := &fakeChat{
		reply:  service.Reply{Verdict: intent.Verdict{Intent: intent.AddVendor}, Text: service.VendorTemplate, Form: session.FormVendor},
		result: catalog.Result{Success: true, Message: "Vendor V050 added successfully.\nTier: Gold"},
	}
	m := newModel(chat)
	m.input.SetValue("add vendor")
	m = step(t, m, key(tea.KeyEnter))
	require.NotNil(t, m.form)
	assert.Contains(t, m.View(), "vendor_quality_score")

	m.form.set("vendor_id", "V050")
	m.form.set("vendor_tier", "Gold")
	m.form.set("vendor_region", "GCC")
	m.form.set("vendor_quality_score", "high")
	for range vendorFields {
		m = step(t, m, key(tea.KeyEnter))
	}
	assert.Equal(t, "vendor_quality_score must be a number", m.status)
	assert.Empty(t, chat.vendors)

	m.form.set("vendor_quality_score", "1.5")
	m = step(t, m, key(tea.KeyEnter))
	require.Len(t, chat.vendors, 1)
	assert.Equal(t, catalog.VendorInput{ID: "V050", Tier: "Gold", Region: "GCC", QualityScore: 1.5}, chat.vendors[0])
	assert.Nil(t, m.form)
	assert.Equal(t, "Vendor V050 added successfully.", m.status)
}

func TestFormCancel(t *testing.T) {
	chat := &fakeChat{reply: service.Reply{Text: service.ProductTemplate, Form: session.FormProduct}}
	m := newModel(chat)
	m.input.SetValue("add product")
	m = step(t, m, key(tea.KeyEnter))
	require.NotNil(t, m.form)
	assert.Len(t, m.form.inputs, 16)

	m = step(t, m, key(tea.KeyShiftTab))
	assert.Equal(t, 15, m.form.focus)
	m = step(t, m, key(tea.KeyEsc))
	assert.Nil(t, m.form)
	assert.Equal(t, session.FormNone, m.sess.Form())
}

func TestProductFormParsing(t *testing.T) {
	f := newForm(session.FormProduct)
	for k, v := range map[string]string{
		"date": "2025-02-14", "product_id": "P00100", "vendor_id": "V050", "category": "Home",
		"sub_category": "Kitchen", "price_usd": "20", "discount_rate": "0.1", "ad_spend_usd": "5",
		"views": "100", "orders": "10", "gross_revenue_usd": "200", "returns": "1", "rating": "4.5",
		"rating_count": "3", "stock_units": "7", "avg_fulfillment_days": "2.5",
	} {
		f.set(k, v)
	}
	in, err := f.product()
	require.NoError(t, err)
	assert.Equal(t, 100, in.Views)
	assert.Equal(t, 2.5, in.AvgFulfillmentDays)

	f.set("orders", "1.5")
	_, err = f.product()
	assert.EqualError(t, err, "orders must be a whole number")
}

func TestProductFormStartsWithToday(t *testing.T) {
	now = func() time.Time { return time.Date(2025, 2, 14, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })

	f := newForm(session.FormProduct)
	assert.Equal(t, "2025-02-14", f.inputs[0].Value())
	assert.Empty(t, newForm(session.FormVendor).inputs[0].Value())
}

func TestHighlightBestSentence(t *testing.T) {
	got := highlightBestSentence("Bronze vendors lag. Gold vendors lead revenue in GCC.", "which vendors lead revenue")
	assert.Contains(t, got, "Bronze vendors lag.")
	assert.Contains(t, got, "Gold vendors lead revenue in GCC.")

	assert.Equal(t, "", highlightBestSentence("", "q"))
	assert.Equal(t, "a. b.", highlightBestSentence("a.\nb.", ""))
	assert.Equal(t, 2, overlap(tokenSet("gold vendors"), "Gold vendors, gold VENDORS"))
}
