package module

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
)

const (
	Name = "invoice"

	RouteInvoices = "invoices"
	RouteInvoice  = "invoices/invoice"

	RefRouteInvoices = "invoice.route.invoices"
	RefRouteInvoice  = "invoice.route.invoice"
	RefStatusPicker  = "invoice.InvoiceStatusPicker"
)

var ErrUnknownRoute = errors.New("unknown route")

type Translation struct {
	Key      string            `yaml:"key" json:"key"`
	Messages map[string]string `yaml:"messages" json:"messages,omitempty"`
}

type Reducer struct {
	Key string `yaml:"key" json:"key"`
}

type MenuEntry struct {
	Key      string         `yaml:"key" json:"key"`
	Label    string         `yaml:"label" json:"label"`
	Route    string         `yaml:"route" json:"route"`
	Rights   []domain.Right `yaml:"rights" json:"rights,omitempty"`
	Children []MenuEntry    `yaml:"children" json:"children,omitempty"`
}

type Route struct {
	Path      string `yaml:"path" json:"path"`
	Component string `yaml:"component" json:"component"`
}

type Ref struct {
	Key string `yaml:"key" json:"key"`
	Ref string `yaml:"ref" json:"ref"`
}

// Config is the registration contract the host application consumes. Each non-empty
// field of an override replaces the default wholesale.
type Config struct {
	Translations []Translation `yaml:"translations" json:"translations"`
	Reducers     []Reducer     `yaml:"reducers" json:"reducers"`
	MainMenu     []MenuEntry   `yaml:"core.MainMenu" json:"core.MainMenu"`
	Routes       []Route       `yaml:"core.Router" json:"core.Router"`
	Refs         []Ref         `yaml:"refs" json:"refs"`
}

func DefaultConfig() Config {
	return Config{
		Translations: []Translation{{Key: "en"}},
		Reducers:     []Reducer{{Key: Name}},
		MainMenu: []MenuEntry{{
			Key:   "LegalAndFinanceMainMenu",
			Label: "invoice.mainMenu.legalAndFinance",
			Children: []MenuEntry{{
				Key:    "invoices",
				Label:  "invoice.menu.invoices",
				Route:  RouteInvoices,
				Rights: []domain.Right{domain.RightInvoiceSearch},
			}},
		}},
		Routes: []Route{
			{Path: RouteInvoices, Component: "InvoicesPage"},
			{Path: RouteInvoice, Component: "InvoicePage"},
		},
		Refs: []Ref{
			{Key: RefRouteInvoices, Ref: RouteInvoices},
			{Key: RefRouteInvoice, Ref: RouteInvoice},
			{Key: RefStatusPicker, Ref: "InvoiceStatusPicker"},
		},
	}
}

// InvoiceModule merges overrides over the defaults.
func InvoiceModule(overrides Config) *Module {
	cfg := DefaultConfig()
	if len(overrides.Translations) > 0 {
		cfg.Translations = overrides.Translations
	}
	if len(overrides.Reducers) > 0 {
		cfg.Reducers = overrides.Reducers
	}
	if len(overrides.MainMenu) > 0 {
		cfg.MainMenu = overrides.MainMenu
	}
	if len(overrides.Routes) > 0 {
		cfg.Routes = overrides.Routes
	}
	if len(overrides.Refs) > 0 {
		cfg.Refs = overrides.Refs
	}
	return &Module{cfg: cfg}
}

// LoadOverrides reads a YAML override file. An empty path yields no overrides.
func LoadOverrides(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read module config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode module config: %w", err)
	}
	return cfg, nil
}

type Module struct {
	cfg Config
}

func (m *Module) Config() Config {
	return m.cfg
}

// GetRef resolves a named reference, returning "" when unknown.
func (m *Module) GetRef(key string) string {
	for _, r := range m.cfg.Refs {
		if r.Key == key {
			return r.Ref
		}
	}
	return ""
}

// MenuFor returns the menu entries visible with perms; parents without visible
// children are dropped.
func (m *Module) MenuFor(perms domain.Permissions) []MenuEntry {
	return filterMenu(m.cfg.MainMenu, perms)
}

func filterMenu(entries []MenuEntry, perms domain.Permissions) []MenuEntry {
	out := make([]MenuEntry, 0, len(entries))
	for _, e := range entries {
		if !allowed(e.Rights, perms) {
			continue
		}
		if len(e.Children) > 0 {
			e.Children = filterMenu(e.Children, perms)
			if len(e.Children) == 0 {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func allowed(required []domain.Right, perms domain.Permissions) bool {
	for _, r := range required {
		if perms.Has(r) {
			return true
		}
	}
	return len(required) == 0
}

// NavigateTo resolves a route reference to a URL with the ids appended as path segments.
func (m *Module) NavigateTo(routeKey string, ids []string, newTab bool) (domain.Navigation, error) {
	route := m.GetRef(routeKey)
	if route == "" {
		return domain.Navigation{}, fmt.Errorf("%w: %s", ErrUnknownRoute, routeKey)
	}
	segments := append([]string{route}, ids...)
	return domain.Navigation{
		RouteKey: routeKey,
		URL:      "/" + strings.Join(segments, "/"),
		NewTab:   newTab,
	}, nil
}
