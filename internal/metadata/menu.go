package metadata

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/definition"
	"github.com/pitabwire/dealerdesk/internal/store"
	"github.com/pitabwire/dealerdesk/model"
)

// Navigation node kinds.
const (
	NodeDomain = "domain"
	NodeTable  = "table"
	NodeForm   = "form"
)

// MenuProvider builds the console navigation tree from the loaded
// definitions.
type MenuProvider struct {
	registry *definition.Registry
	store    store.Store
	logger   *zap.Logger
}

// NewMenuProvider creates a MenuProvider. The store is used for optional
// table record-count badges and may be nil.
func NewMenuProvider(registry *definition.Registry, records store.Store, logger *zap.Logger) *MenuProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MenuProvider{
		registry: registry,
		store:    records,
		logger:   logger,
	}
}

// GetMenu builds one node per domain with its tables and forms as children.
// Domains are ordered by navigation order, then name. Badge counts are
// best-effort; failures are logged and the badge omitted.
func (p *MenuProvider) GetMenu(ctx context.Context) model.NavigationTree {
	domains := p.registry.AllDomains()
	sort.SliceStable(domains, func(i, j int) bool {
		return domains[i].Navigation.Order < domains[j].Navigation.Order
	})

	nodes := make([]model.NavigationNode, 0, len(domains))
	for _, domain := range domains {
		label := domain.Navigation.Label
		if label == "" {
			label = humanize(domain.Domain)
		}
		node := model.NavigationNode{
			ID:    domain.Domain,
			Kind:  NodeDomain,
			Label: label,
			Icon:  domain.Navigation.Icon,
		}

		for _, t := range domain.Tables {
			child := model.NavigationNode{
				ID:    t.ID,
				Kind:  NodeTable,
				Label: titleOr(t.Title, t.ID),
				Route: "/ui/tables/" + t.ID,
			}
			child.Badge = p.resolveBadge(ctx, t)
			node.Children = append(node.Children, child)
		}
		for _, f := range domain.Forms {
			node.Children = append(node.Children, model.NavigationNode{
				ID:    f.ID,
				Kind:  NodeForm,
				Label: titleOr(f.Title, f.ID),
				Route: "/ui/forms/" + f.ID + "/sessions",
			})
		}
		nodes = append(nodes, node)
	}
	return model.NavigationTree{Items: nodes}
}

// resolveBadge counts the records of a table's collection.
func (p *MenuProvider) resolveBadge(ctx context.Context, t model.TableDefinition) *model.BadgeDescriptor {
	if p.store == nil {
		return nil
	}
	records, err := p.store.List(ctx, t.Collection)
	if err != nil {
		p.logger.Debug("menu: badge resolution failed",
			zap.String("table_id", t.ID),
			zap.String("collection", t.Collection),
			zap.Error(err),
		)
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	return &model.BadgeDescriptor{Count: len(records)}
}

func titleOr(title, id string) string {
	if title != "" {
		return title
	}
	return humanize(id)
}
