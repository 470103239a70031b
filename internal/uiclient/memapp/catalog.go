// Package memapp is an in-memory order-processing application speaking the
// uiclient protocol. It backs the local "serve" target and the test suites.
package memapp

import "fmt"

// Well-known page identifiers of the simulated application.
const (
	PageRoleCenter     = 9006
	PageCustomerList   = 22
	PageItemList       = 31
	PageSalesOrderList = 9305
	PageSalesOrder     = 42
	PagePostedInvoice  = 132
)

// Customer is a sell-to customer.
type Customer struct {
	No            string
	Name          string
	CreditWarning bool
}

// Item is a sellable item.
type Item struct {
	No          string
	Description string
	LowStock    bool
}

// PostBehavior selects how the "Post..." action answers.
type PostBehavior string

const (
	// PostConfirmChain asks to confirm, then offers to open the posted invoice.
	PostConfirmChain PostBehavior = "chain"
	// PostConfirmOnly asks to confirm and posts silently.
	PostConfirmOnly PostBehavior = "confirm"
	// PostNoDialog posts without any confirmation.
	PostNoDialog PostBehavior = "none"
)

// Catalog is the master data the application serves.
type Catalog struct {
	Customers []Customer
	Items     []Item
}

// DefaultCatalog returns a catalog with n customers and m items. Every seventh
// customer trips a credit warning and every fifth item is low on stock.
func DefaultCatalog(n, m int) Catalog {
	c := Catalog{
		Customers: make([]Customer, 0, n),
		Items:     make([]Item, 0, m),
	}
	for i := 1; i <= n; i++ {
		c.Customers = append(c.Customers, Customer{
			No:            fmt.Sprintf("C%05d", i*10),
			Name:          fmt.Sprintf("Customer %d", i),
			CreditWarning: i%7 == 0,
		})
	}
	for i := 1; i <= m; i++ {
		c.Items = append(c.Items, Item{
			No:          fmt.Sprintf("%d", 1000+i),
			Description: fmt.Sprintf("Item %d", i),
			LowStock:    i%5 == 0,
		})
	}
	return c
}

func (c Catalog) customerByName(name string) (Customer, bool) {
	for _, cu := range c.Customers {
		if cu.Name == name {
			return cu, true
		}
	}
	return Customer{}, false
}

func (c Catalog) item(no string) (Item, bool) {
	for _, it := range c.Items {
		if it.No == no {
			return it, true
		}
	}
	return Item{}, false
}
