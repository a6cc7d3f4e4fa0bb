package searcher

import (
	"strconv"
	"time"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/core/ports"
)

// Formatter localizes labels and values for one session.
type Formatter interface {
	ports.Translator
	Amount(v float64) string
	Date(d time.Time) string
}

type Header struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Sortable string `json:"sortable,omitempty"`
}

type Action struct {
	Tooltip  string `json:"tooltip"`
	Href     string `json:"href,omitempty"`
	Disabled bool   `json:"disabled"`
}

type Row struct {
	ID       string   `json:"id"`
	Code     string   `json:"code"`
	Cells    []string `json:"cells"`
	Edit     *Action  `json:"edit,omitempty"`
	Delete   *Action  `json:"delete,omitempty"`
	Disabled bool     `json:"disabled"`
	Locked   bool     `json:"locked"`
}

type Table struct {
	Title              string          `json:"title"`
	Headers            []Header        `json:"headers"`
	Rows               []Row           `json:"rows"`
	PageInfo           domain.PageInfo `json:"page_info"`
	TotalCount         int64           `json:"total_count"`
	RowsPerPageOptions []int           `json:"rows_per_page_options"`
	DefaultPageSize    int             `json:"default_page_size"`
	DefaultOrderBy     string          `json:"default_order_by"`
}

var columns = []struct {
	label string
	sort  string
}{
	{"invoice.subject", "subjectType"},
	{"invoice.thirdparty", "thirdpartyType"},
	{"invoice.code", "code"},
	{"invoice.dateInvoice", "dateInvoice"},
	{"invoice.amountTotal", "amountTotal"},
	{"invoice.status.label", "status"},
}

// BuildTable renders one fetched page through the controller's permissions and lock set.
// Edit links point at the same URL OpenEdit navigates to.
func BuildTable(c *Controller, f Formatter, nav ports.Navigator, page domain.InvoicePage) Table {
	canEdit := c.perms.Has(domain.RightInvoiceUpdate)
	canDelete := c.CanDelete()

	headers := make([]Header, 0, len(columns)+1)
	for _, col := range columns {
		headers = append(headers, Header{Key: col.label, Label: f.Format(col.label, nil), Sortable: col.sort})
	}
	if canEdit {
		headers = append(headers, Header{Key: "emptyLabel", Label: f.Format("emptyLabel", nil)})
	}

	rows := make([]Row, 0, len(page.Items))
	for _, inv := range page.Items {
		locked := c.IsRowLocked(inv)
		row := Row{
			ID:       inv.ID,
			Code:     inv.Code,
			Cells:    formatCells(f, inv),
			Disabled: locked,
			Locked:   locked,
		}
		if canEdit {
			row.Edit = &Action{
				Tooltip:  f.Format("invoice.edit.buttonTooltip", nil),
				Disabled: locked,
			}
			if to, err := nav.NavigateTo(routeInvoice, []string{inv.ID}, false); err == nil {
				row.Edit.Href = to.URL
			}
		}
		if canDelete {
			row.Delete = &Action{
				Tooltip:  f.Format("invoice.delete.buttonTooltip", nil),
				Disabled: !c.IsDeleteAllowed(inv),
			}
		}
		rows = append(rows, row)
	}

	return Table{
		Title:              f.Format("invoice.invoices.searcher.resultsTitle", map[string]any{"invoicesTotalCount": page.TotalCount}),
		Headers:            headers,
		Rows:               rows,
		PageInfo:           page.PageInfo,
		TotalCount:         page.TotalCount,
		RowsPerPageOptions: domain.RowsPerPageOptions,
		DefaultPageSize:    domain.DefaultPageSize,
		DefaultOrderBy:     domain.DefaultOrderBy,
	}
}

func formatCells(f Formatter, inv domain.Invoice) []string {
	date := ""
	if inv.DateInvoice != nil {
		date = f.Date(*inv.DateInvoice)
	}
	return []string{
		typedName(inv.SubjectType, inv.SubjectName),
		typedName(inv.ThirdpartyType, inv.ThirdpartyName),
		inv.Code,
		date,
		f.Amount(inv.AmountTotal),
		f.Format("invoice.status."+strconv.Itoa(int(inv.Status)), nil),
	}
}

func typedName(typ, name string) string {
	switch {
	case typ == "":
		return name
	case name == "":
		return typ
	default:
		return typ + ": " + name
	}
}
