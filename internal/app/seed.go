package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// demoCatalog — небольшой каталог для локального запуска с in-memory хранилищем.
var demoCatalog = []domain.ProductVariant{
	{ID: "tee-blk-m", ProductID: "tee-basic", ColorCode: "BLK", SizeName: "M", Price: decimal.RequireFromString("19.90"), StockOnHand: 25},
	{ID: "tee-blk-l", ProductID: "tee-basic", ColorCode: "BLK", SizeName: "L", Price: decimal.RequireFromString("19.90"), StockOnHand: 15},
	{ID: "tee-wht-m", ProductID: "tee-basic", ColorCode: "WHT", SizeName: "M", Price: decimal.RequireFromString("18.50"), StockOnHand: 10},
	{ID: "hoodie-gry-l", ProductID: "hoodie-zip", ColorCode: "GRY", SizeName: "L", Price: decimal.RequireFromString("59.00"), StockOnHand: 5},
	{ID: "cap-nvy-os", ProductID: "cap-classic", ColorCode: "NVY", SizeName: "ONE", Price: decimal.RequireFromString("14.00"), StockOnHand: 40},
}

// seedDemoData заводит демо-каталог. Уже существующие варианты пропускаются.
func seedDemoData(ctx context.Context, store domain.Store, logger *log.Entry) error {
	created := 0
	for _, v := range demoCatalog {
		err := store.Variants().Create(ctx, v)
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrConflict):
		default:
			return fmt.Errorf("seed variant %s: %w", v.ID, err)
		}
	}
	logger.WithField("variants", created).Info("demo catalog seeded")
	return nil
}
