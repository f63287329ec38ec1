// Package service coordinates chat turns and index builds.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"marketrag/internal/catalog"
	"marketrag/internal/composer"
	"marketrag/internal/domain"
	"marketrag/internal/intent"
	"marketrag/internal/session"
	"marketrag/internal/store"
	"marketrag/internal/zlog"
)

// Retriever is the retrieval step of a question turn.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
}

// Composer is the answer step of a question turn.
type Composer interface {
	Compose(ctx context.Context, query string, results []domain.SearchResult) (domain.Answer, error)
}

type Router interface {
	Route(ctx context.Context, text string) intent.Verdict
}

// Catalog is the data-entry collaborator.
type Catalog interface {
	AddVendor(ctx context.Context, in catalog.VendorInput) catalog.Result
	AddProduct(ctx context.Context, in catalog.ProductInput) catalog.Result
	LastVendor(ctx context.Context) (store.Vendor, bool, error)
	LastProduct(ctx context.Context) (store.Product, bool, error)
}

const (
	VendorTemplate = `Add Vendor
  vendor_id (e.g., V050)
  vendor_tier (Bronze / Silver / Gold)
  vendor_region (Levant / GCC / Europe / North Africa / Asia)
  vendor_quality_score (-2 to 2)`

	ProductTemplate = `Add Product
  date (YYYY-MM-DD)
  product_id (e.g., P00100)
  vendor_id (e.g., V050)
  category
  sub_category
  price_usd
  discount_rate (0-1)
  ad_spend_usd
  views
  orders
  gross_revenue_usd
  returns
  rating (1-5)
  rating_count
  stock_units
  avg_fulfillment_days`

	ClarifyPrompt  = "Do you want to add a vendor or a product?"
	NoIndexMessage = "The document index has not been built yet. Run marketrag-index first."
	noVendorsYet   = "No vendors have been added yet."
	noProductsYet  = "No products have been added yet."
)

var ErrEmptyMessage = errors.New("empty message")

// Reply is the outcome of one chat turn.
type Reply struct {
	Verdict intent.Verdict `json:"verdict"`
	Text    string         `json:"reply"`
	Answer  *domain.Answer `json:"answer,omitempty"`
	Form    session.Form   `json:"form,omitempty"`
}

// ChatService handles one user turn at a time for a given session.
type ChatService struct {
	router    Router
	retriever Retriever
	composer  Composer
	catalog   Catalog
	topK      int
}

// NewChatService wires a chat service. retriever may be nil when no index
// has been built; questions are then answered with NoIndexMessage.
func NewChatService(router Router, retriever Retriever, composer Composer, catalog Catalog, topK int) *ChatService {
	return &ChatService{router: router, retriever: retriever, composer: composer, catalog: catalog, topK: topK}
}

// Handle records the user message, routes it and records the reply. When a
// backend fails, the reply carries the user-facing failure text and the
// error is returned as well.
func (s *ChatService) Handle(ctx context.Context, sess *session.Session, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	sess.Append(domain.RoleUser, text)

	verdict := s.router.Route(ctx, text)
	zlog.Debug("routed message",
		zap.String("session", sess.ID),
		zap.String("intent", string(verdict.Intent)),
		zap.String("strategy", string(verdict.Strategy)))

	reply := Reply{Verdict: verdict}
	var err error
	switch {
	case verdict.IsRecall():
		reply.Text, err = s.recall(ctx, verdict.Recall)
	case verdict.Intent == intent.AddVendor:
		sess.OpenForm(session.FormVendor)
		reply.Text = VendorTemplate
	case verdict.Intent == intent.AddProduct:
		sess.OpenForm(session.FormProduct)
		reply.Text = ProductTemplate
	case verdict.Intent == intent.Ambiguous:
		reply.Text = ClarifyPrompt
	default:
		reply.Answer, err = s.answer(ctx, text)
		if reply.Answer != nil {
			reply.Text = reply.Answer.Text
		} else if err != nil {
			reply.Text = composer.Unavailable
		} else {
			reply.Text = NoIndexMessage
		}
	}
	if err != nil && reply.Text == "" {
		reply.Text = composer.Unavailable
	}

	sess.Append(domain.RoleAssistant, reply.Text)
	reply.Form = sess.Form()
	return reply, err
}

func (s *ChatService) answer(ctx context.Context, question string) (*domain.Answer, error) {
	if s.retriever == nil {
		return nil, nil
	}
	results, err := s.retriever.Retrieve(ctx, question, s.topK)
	if err != nil {
		zlog.Error("retrieval failed", zap.Error(err))
		return nil, err
	}
	answer, err := s.composer.Compose(ctx, question, results)
	if err != nil {
		zlog.Error("answer composition failed", zap.Error(err))
		return nil, err
	}
	return &answer, nil
}

func (s *ChatService) recall(ctx context.Context, entity intent.Entity) (string, error) {
	switch entity {
	case intent.EntityVendor:
		v, ok, err := s.catalog.LastVendor(ctx)
		if err != nil {
			zlog.Error("last vendor lookup failed", zap.Error(err))
			return "", err
		}
		if !ok {
			return noVendorsYet, nil
		}
		return fmt.Sprintf("The last vendor added is %s (Tier: %s, Region: %s, Quality Score: %g).",
			v.ID, v.Tier, v.Region, v.QualityScore), nil
	case intent.EntityProduct:
		p, ok, err := s.catalog.LastProduct(ctx)
		if err != nil {
			zlog.Error("last product lookup failed", zap.Error(err))
			return "", err
		}
		if !ok {
			return noProductsYet, nil
		}
		return fmt.Sprintf("The last product added is %s from vendor %s on %s (%s > %s, price $%g).",
			p.ID, p.VendorID, p.Date, p.Category, p.SubCategory, p.PriceUSD), nil
	}
	return "", fmt.Errorf("unknown recall entity %q", entity)
}

// SubmitVendor sends the vendor form to the catalog and closes the form on
// success.
func (s *ChatService) SubmitVendor(ctx context.Context, sess *session.Session, in catalog.VendorInput) catalog.Result {
	res := s.catalog.AddVendor(ctx, in)
	s.record(sess, res)
	return res
}

// SubmitProduct sends the product form to the catalog and closes the form on
// success.
func (s *ChatService) SubmitProduct(ctx context.Context, sess *session.Session, in catalog.ProductInput) catalog.Result {
	res := s.catalog.AddProduct(ctx, in)
	s.record(sess, res)
	return res
}

func (s *ChatService) record(sess *session.Session, res catalog.Result) {
	if res.Success {
		sess.CloseForm()
	}
	sess.Append(domain.RoleAssistant, res.Message)
}
