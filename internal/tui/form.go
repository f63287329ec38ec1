package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"marketrag/internal/catalog"
	"marketrag/internal/session"
)

type field struct {
	key  string
	hint string
}

var vendorFields = []field{
	{"vendor_id", "V050"},
	{"vendor_tier", "Bronze / Silver / Gold"},
	{"vendor_region", "Levant / GCC / Europe / North Africa / Asia"},
	{"vendor_quality_score", "-2 to 2"},
}

var productFields = []field{
	{"date", "YYYY-MM-DD"},
	{"product_id", "P00100"},
	{"vendor_id", "V050"},
	{"category", "Home"},
	{"sub_category", "Kitchen"},
	{"price_usd", "> 0"},
	{"discount_rate", "0-1"},
	{"ad_spend_usd", ">= 0"},
	{"views", ">= 0"},
	{"orders", "<= views"},
	{"gross_revenue_usd", ">= 0"},
	{"returns", "<= orders"},
	{"rating", "1-5"},
	{"rating_count", ">= 0"},
	{"stock_units", ">= 0"},
	{"avg_fulfillment_days", "> 0"},
}

// form is a vertical list of inputs; only the focused one receives keys.
type form struct {
	kind   session.Form
	fields []field
	inputs []textinput.Model
	focus  int
}

func newForm(kind session.Form) *form {
	fields := vendorFields
	if kind == session.FormProduct {
		fields = productFields
	}
	f := &form{kind: kind, fields: fields, inputs: make([]textinput.Model, len(fields))}
	for i, fd := range fields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = fd.hint
		ti.CharLimit = 64
		f.inputs[i] = ti
	}
	f.inputs[0].Focus()
	if kind == session.FormProduct {
		f.set("date", now().Format(time.DateOnly))
	}
	return f
}

var now = time.Now

func (f *form) title() string {
	if f.kind == session.FormProduct {
		return "Add Product"
	}
	return "Add Vendor"
}

func (f *form) last() bool { return f.focus == len(f.inputs)-1 }

func (f *form) move(delta int) {
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + len(f.inputs)) % len(f.inputs)
	f.inputs[f.focus].Focus()
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *form) set(key, value string) {
	for i, fd := range f.fields {
		if fd.key == key {
			f.inputs[i].SetValue(value)
		}
	}
}

func (f *form) view() string {
	width := 0
	for _, fd := range f.fields {
		width = max(width, len(fd.key))
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(f.title()))
	for i, fd := range f.fields {
		label := fmt.Sprintf("%-*s", width, fd.key)
		if i == f.focus {
			label = focusStyle.Render(label)
		} else {
			label = mutedStyle.Render(label)
		}
		b.WriteString("\n" + label + "  " + f.inputs[i].View())
	}
	b.WriteString("\n" + mutedStyle.Render("tab/shift+tab move, enter on the last field submits, esc cancels"))
	return b.String()
}

type formValues struct {
	raw map[string]string
	err error
}

func (f *form) values() *formValues {
	v := &formValues{raw: make(map[string]string, len(f.fields))}
	for i, fd := range f.fields {
		v.raw[fd.key] = strings.TrimSpace(f.inputs[i].Value())
	}
	return v
}

func (v *formValues) str(key string) string { return v.raw[key] }

func (v *formValues) number(key string) float64 {
	n, err := strconv.ParseFloat(v.raw[key], 64)
	if err != nil && v.err == nil {
		v.err = fmt.Errorf("%s must be a number", key)
	}
	return n
}

func (v *formValues) whole(key string) int {
	n, err := strconv.Atoi(v.raw[key])
	if err != nil && v.err == nil {
		v.err = fmt.Errorf("%s must be a whole number", key)
	}
	return n
}

func (f *form) vendor() (catalog.VendorInput, error) {
	v := f.values()
	in := catalog.VendorInput{
		ID:           v.str("vendor_id"),
		Tier:         v.str("vendor_tier"),
		Region:       v.str("vendor_region"),
		QualityScore: v.number("vendor_quality_score"),
	}
	return in, v.err
}

func (f *form) product() (catalog.ProductInput, error) {
	v := f.values()
	in := catalog.ProductInput{
		Date:               v.str("date"),
		ID:                 v.str("product_id"),
		VendorID:           v.str("vendor_id"),
		Category:           v.str("category"),
		SubCategory:        v.str("sub_category"),
		PriceUSD:           v.number("price_usd"),
		DiscountRate:       v.number("discount_rate"),
		AdSpendUSD:         v.number("ad_spend_usd"),
		Views:              v.whole("views"),
		Orders:             v.whole("orders"),
		GrossRevenueUSD:    v.number("gross_revenue_usd"),
		Returns:            v.whole("returns"),
		Rating:             v.number("rating"),
		RatingCount:        v.whole("rating_count"),
		StockUnits:         v.whole("stock_units"),
		AvgFulfillmentDays: v.number("avg_fulfillment_days"),
	}
	return in, v.err
}
