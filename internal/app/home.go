package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/forecourt/forecourt/internal/dealers"
	"github.com/forecourt/forecourt/internal/invoices"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/stock"
	"github.com/forecourt/forecourt/internal/view"
)

// DashboardDealers resolves the dealer shown on the dashboard.
type DashboardDealers interface {
	Get(ctx context.Context, id int64) (*dealers.Dealer, error)
}

// DashboardStock counts vehicles per status.
type DashboardStock interface {
	CountByStatus(ctx context.Context, dealerID int64) (map[stock.Status]int, error)
}

// DashboardInvoices lists invoices for the dashboard.
type DashboardInvoices interface {
	List(ctx context.Context, req invoices.ListInvoicesRequest) ([]invoices.Invoice, int, error)
}

// Dashboard renders the signed-in home page.
type Dashboard struct {
	Dealers   DashboardDealers
	Stock     DashboardStock
	Invoices  DashboardInvoices
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Logger    *slog.Logger
	AppEnv    string
}

const recentInvoiceCount = 5

func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := shared.PrincipalFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	data := map[string]any{"AppEnv": d.AppEnv}

	if d.Dealers != nil {
		dealer, err := d.Dealers.Get(ctx, p.DealerID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			d.fail(w, "load dealer", err)
			return
		}
		data["Dealer"] = dealer
	}

	counts := map[string]int{}
	if d.Stock != nil {
		byStatus, err := d.Stock.CountByStatus(ctx, p.DealerID)
		if err != nil {
			d.fail(w, "count stock", err)
			return
		}
		for status, n := range byStatus {
			counts[string(status)] = n
		}
	}
	data["StockCounts"] = counts

	if d.Invoices != nil {
		recent, _, err := d.Invoices.List(ctx, invoices.ListInvoicesRequest{DealerID: p.DealerID, Limit: recentInvoiceCount})
		if err != nil {
			d.fail(w, "list recent invoices", err)
			return
		}
		_, drafts, err := d.Invoices.List(ctx, invoices.ListInvoicesRequest{DealerID: p.DealerID, Status: invoices.StatusDraft, Limit: 1})
		if err != nil {
			d.fail(w, "count draft invoices", err)
			return
		}
		data["RecentInvoices"] = recent
		data["DraftCount"] = drafts
	} else {
		data["DraftCount"] = 0
	}

	sess := shared.SessionFromContext(ctx)
	csrfToken, _ := d.CSRF.EnsureToken(ctx, sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	if err := d.Templates.Render(w, "pages/home.html", view.TemplateData{
		Title:       "Dashboard",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}, http.StatusOK); err != nil {
		d.Logger.Error("render home", slog.Any("error", err))
	}
}

func (d *Dashboard) fail(w http.ResponseWriter, op string, err error) {
	d.Logger.Error(op, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
