package enrich

import (
	"context"
	"strings"

	"dtddsync/internal/logging"
	"dtddsync/internal/services"
	"dtddsync/internal/services/jellyfin"
	"dtddsync/internal/triggers"
)

// Cleared lists the managed tags removed from one item.
type Cleared struct {
	ItemID   string   `json:"itemId"`
	ItemName string   `json:"itemName"`
	Removed  []string `json:"removed"`
	Written  bool     `json:"written"`
}

// Clear strips every tag carrying a managed prefix, from one item when itemID
// is set or from every listed item otherwise. Unrelated tags and provider ids
// are left alone. Only items that carried managed tags are returned.
func (e *Enricher) Clear(ctx context.Context, itemID string, dryRun bool) ([]Cleared, error) {
	dryRun = dryRun || e.opts.DryRun
	var items []jellyfin.Item
	if id := strings.TrimSpace(itemID); id != "" {
		item, err := e.library.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		items = []jellyfin.Item{*item}
	} else {
		listed, err := e.library.ListItems(ctx, e.opts.List)
		if err != nil {
			return nil, err
		}
		items = listed
	}

	var out []Cleared
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		cleared, err := e.clearItem(ctx, item, dryRun)
		if err != nil {
			return out, err
		}
		if len(cleared.Removed) > 0 {
			out = append(out, cleared)
		}
	}
	logging.WithContext(ctx, e.logger).Info("managed tags cleared",
		logging.String(logging.FieldEventType, "tags_cleared"),
		logging.Int("items", len(items)),
		logging.Int("cleared", len(out)),
		logging.Bool("dry_run", dryRun),
	)
	return out, nil
}

func (e *Enricher) clearItem(ctx context.Context, item jellyfin.Item, dryRun bool) (Cleared, error) {
	unlock := e.locks.lock(item.ID)
	defer unlock()

	result := Cleared{ItemID: item.ID, ItemName: item.Name}
	result.Removed = triggers.ManagedTags(item.Tags, e.opts.Policy)
	tags, changed := triggers.Strip(item.Tags, e.opts.Policy)
	if !changed || dryRun {
		return result, nil
	}
	if err := e.library.UpdateItem(services.WithItemID(ctx, item.ID), item.ID, jellyfin.Update{Tags: tags}); err != nil {
		return result, err
	}
	result.Written = true
	return result, nil
}
