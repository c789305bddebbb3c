package processors

import (
	"context"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"go.uber.org/zap"
)

// ProductProcessor creates a QBO service item for a new Stripe product.
type ProductProcessor struct {
	base
}

func NewProductProcessor(d Deps) *ProductProcessor {
	return &ProductProcessor{base: newBase(d, "product")}
}

func (p *ProductProcessor) EventType() models.EventType {
	return models.EventProductCreated
}

func (p *ProductProcessor) Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error) {
	payload, ok := event.Payload.(models.ProductCreated)
	if !ok {
		return nil, unexpectedPayload(event)
	}
	product := payload.Product

	if m, err := p.existing(ctx, tc, models.MappingItem, product.ID); err != nil || m != nil {
		if err != nil {
			return nil, err
		}
		return skipped("Product already processed", m.TargetID), nil
	}
	if product.Name == "" {
		return nil, syncerr.Validation("product %s has no name", product.ID)
	}

	// The event carries default_price as an id; fetch the product expanded
	// to learn the unit amount.
	if product.DefaultPrice.ID != "" && product.DefaultPrice.Object == nil {
		expanded, err := p.clients.Stripe(tc).GetProduct(ctx, product.ID)
		if err != nil {
			return nil, fetchFailed(err, "product", product.ID)
		}
		product.DefaultPrice = expanded.DefaultPrice
	}

	spec := services.ItemSpec{
		Name:        product.Name,
		Sku:         product.Metadata["sku"],
		Description: product.Description,
		Taxable:     true,
	}
	if price := product.DefaultPrice.Object; price != nil && price.UnitAmount != nil {
		unit := models.MinorToMajor(*price.UnitAmount)
		spec.UnitPrice = &unit
	}

	ledger := p.clients.Ledger(tc)
	itemID, err := p.resolver.ResolveItem(ctx, ledger, spec)
	if err != nil {
		return nil, err
	}
	p.log.Info("item resolved",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("product_id", product.ID),
		zap.String("qbo_item_id", itemID))

	if err := p.record(ctx, tc, models.MappingItem, product.ID, itemID, ""); err != nil {
		return nil, err
	}
	return success("Item created in QuickBooks", itemID, map[string]any{
		"qbo_item_id":       itemID,
		"stripe_product_id": product.ID,
	}), nil
}
