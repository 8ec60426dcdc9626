package order

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

// PlaceOrderInput are the arguments of the place_order tool.
type PlaceOrderInput struct {
	ProductName string `json:"product_name" jsonschema:"name of the product to order"`
	Quantity    int    `json:"quantity" jsonschema:"number of items to order"`
}

// Confirmation is the result of a placed order.
type Confirmation struct {
	OrderID               string  `json:"order_id"`
	ProductName           string  `json:"product_name"`
	Quantity              int     `json:"quantity"`
	UnitPrice             float64 `json:"unit_price"`
	TotalPrice            float64 `json:"total_price"`
	Status                string  `json:"status"`
	EstimatedDeliveryDays int     `json:"estimated_delivery_days"`
}

// InventoryInput are the arguments of the check_inventory tool.
type InventoryInput struct {
	ProductName string `json:"product_name" jsonschema:"name of the product to check"`
}

// Inventory is the stock level of a product.
type Inventory struct {
	ProductName       string `json:"product_name"`
	InStock           bool   `json:"in_stock"`
	AvailableQuantity int    `json:"available_quantity"`
}

// Catalog is a mock order backend. Prices, stock and delivery times are
// drawn from its random source, so a seeded Catalog is deterministic.
type Catalog struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	newID func() string
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithRand sets the random source.
func WithRand(r *rand.Rand) CatalogOption {
	return func(c *Catalog) { c.rnd = r }
}

// WithSeed seeds the random source.
func WithSeed(seed uint64) CatalogOption {
	return WithRand(rand.New(rand.NewPCG(seed, seed)))
}

// WithIDGenerator sets the order id generator.
func WithIDGenerator(fn func() string) CatalogOption {
	return func(c *Catalog) { c.newID = fn }
}

// NewCatalog creates a Catalog seeded from the runtime unless WithRand or
// WithSeed is given.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		rnd:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		newID: newOrderID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newOrderID returns the first eight characters of a random UUID, upper
// cased.
func newOrderID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// PlaceOrder confirms an order for in.Quantity items.
func (c *Catalog) PlaceOrder(_ context.Context, in PlaceOrderInput) (Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	unit := round2(10 + c.rnd.Float64()*490)

	return Confirmation{
		OrderID:               c.newID(),
		ProductName:           in.ProductName,
		Quantity:              in.Quantity,
		UnitPrice:             unit,
		TotalPrice:            round2(unit * float64(in.Quantity)),
		Status:                "confirmed",
		EstimatedDeliveryDays: 2 + c.rnd.IntN(6),
	}, nil
}

// CheckInventory reports the stock of a product. Three products in four are
// in stock.
func (c *Catalog) CheckInventory(_ context.Context, in InventoryInput) (Inventory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inv := Inventory{ProductName: in.ProductName}
	if c.rnd.IntN(4) != 0 {
		inv.InStock = true
		inv.AvailableQuantity = c.rnd.IntN(101)
	}

	return inv, nil
}

// Tools returns a ToolBox with the place_order and check_inventory tools.
func (c *Catalog) Tools() *toolbox.ToolBox {
	return toolbox.New().MustRegister(
		toolbox.MustTypedTool("place_order", "Place an order for a product.", c.PlaceOrder,
			toolbox.Minimum("quantity", 1)),
		toolbox.MustTypedTool("check_inventory", "Check inventory availability for a product.", c.CheckInventory),
	)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
