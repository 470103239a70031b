package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/wesleyorama2/formload/internal/interaction"
	"github.com/wesleyorama2/formload/internal/random"
	"github.com/wesleyorama2/formload/internal/transaction"
	"github.com/wesleyorama2/formload/internal/uiclient"
)

// Pages holds the page ids the order-processor scenarios navigate.
type Pages struct {
	RoleCenter     int `json:"roleCenter" yaml:"roleCenter"`
	CustomerList   int `json:"customerList" yaml:"customerList"`
	ItemList       int `json:"itemList" yaml:"itemList"`
	SalesOrderList int `json:"salesOrderList" yaml:"salesOrderList"`
	SalesOrder     int `json:"salesOrder" yaml:"salesOrder"`
}

// DefaultPages returns the page ids of the standard order-processor profile.
func DefaultPages() Pages {
	return Pages{
		RoleCenter:     9006,
		CustomerList:   22,
		ItemList:       31,
		SalesOrderList: 9305,
		SalesOrder:     42,
	}
}

// MissingConfirmation decides the outcome when posting shows no dialog.
type MissingConfirmation string

const (
	MissingConfirmationInconclusive MissingConfirmation = "inconclusive"
	MissingConfirmationFail         MissingConfirmation = "fail"
)

// OrderOptions tunes the order-processor scenarios.
type OrderOptions struct {
	Pages Pages

	// MinLines and MaxLines bound the sales line count, [MinLines, MaxLines).
	MinLines int
	MaxLines int

	// MinQuantity and MaxQuantity bound each line quantity, [MinQuantity, MaxQuantity).
	MinQuantity int
	MaxQuantity int

	// ThinkTime is the pause after each completed line.
	ThinkTime time.Duration

	MissingConfirmation MissingConfirmation
}

// DefaultOrderOptions returns 2 to 25 lines of 1 to 10 units and a one second
// look at each line.
func DefaultOrderOptions() OrderOptions {
	return OrderOptions{
		Pages:               DefaultPages(),
		MinLines:            2,
		MaxLines:            26,
		MinQuantity:         1,
		MaxQuantity:         11,
		ThinkTime:           time.Second,
		MissingConfirmation: MissingConfirmationInconclusive,
	}
}

// OrderProcessor is the scenario library of the order-processor role.
type OrderProcessor struct {
	opts     OrderOptions
	d        *interaction.Dispatcher
	selector *random.Selector
	source   *random.Source
	recorder *transaction.Recorder
}

// NewOrderProcessor creates the library. Zero page ids and bounds take the
// defaults.
func NewOrderProcessor(opts OrderOptions, d *interaction.Dispatcher, src *random.Source, rec *transaction.Recorder) *OrderProcessor {
	def := DefaultOrderOptions()
	if opts.Pages == (Pages{}) {
		opts.Pages = def.Pages
	}
	if opts.MaxLines <= 0 {
		opts.MinLines, opts.MaxLines = def.MinLines, def.MaxLines
	}
	if opts.MaxQuantity <= 0 {
		opts.MinQuantity, opts.MaxQuantity = def.MinQuantity, def.MaxQuantity
	}
	if opts.MissingConfirmation == "" {
		opts.MissingConfirmation = def.MissingConfirmation
	}
	return &OrderProcessor{
		opts:     opts,
		d:        d,
		selector: random.NewSelector(d, src),
		source:   src,
		recorder: rec,
	}
}

// Catalog maps scenario names to their functions.
func (op *OrderProcessor) Catalog() map[string]Func {
	return map[string]Func{
		"open-sales-order-list":       op.OpenSalesOrderList,
		"open-customer-list":          op.OpenCustomerList,
		"open-item-list":              op.OpenItemList,
		"lookup-random-customer":      op.LookupRandomCustomer,
		"create-and-post-sales-order": op.CreateAndPostSalesOrder,
	}
}

// Lookup returns the named scenario.
func (op *OrderProcessor) Lookup(name string) (Func, error) {
	fn, ok := op.Catalog()[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (known: %v)", name, Names())
	}
	return fn, nil
}

// Names lists the scenario names in sorted order.
func Names() []string {
	names := make([]string, 0, 5)
	for name := range (&OrderProcessor{}).Catalog() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenSalesOrderList opens the sales order list and closes it.
func (op *OrderProcessor) OpenSalesOrderList(ctx context.Context, tc *TestContext, s uiclient.Session) error {
	return op.runPage(ctx, s, "OpenSalesOrderList", op.opts.Pages.SalesOrderList)
}

// OpenCustomerList opens the customer list and closes it.
func (op *OrderProcessor) OpenCustomerList(ctx context.Context, tc *TestContext, s uiclient.Session) error {
	return op.runPage(ctx, s, "OpenCustomerList", op.opts.Pages.CustomerList)
}

// OpenItemList opens the item list and closes it.
func (op *OrderProcessor) OpenItemList(ctx context.Context, tc *TestContext, s uiclient.Session) error {
	return op.runPage(ctx, s, "OpenItemList", op.opts.Pages.ItemList)
}

func (op *OrderProcessor) runPage(ctx context.Context, s uiclient.Session, name string, pageID int) error {
	var page *uiclient.Form
	err := op.recorder.Measure(ctx, name, func(ctx context.Context) (err error) {
		page, err = op.d.OpenPage(ctx, s, pageID)
		return err
	})
	if err != nil {
		return err
	}
	return op.d.ClosePage(ctx, s, page)
}

// LookupRandomCustomer selects the number of a random customer from the
// customer list.
func (op *OrderProcessor) LookupRandomCustomer(ctx context.Context, tc *TestContext, s uiclient.Session) error {
	return op.recorder.Measure(ctx, "LookupRandomCustomer", func(ctx context.Context) error {
		no, err := op.selector.SelectRandomRowFromList(ctx, s, op.opts.Pages.CustomerList, "No.")
		if err != nil {
			return err
		}
		if no == "" {
			return errors.New("no customer selected")
		}
		tc.Logf("Selected customer %s", no)
		return nil
	})
}

// CreateAndPostSalesOrder enters a sales order for a random customer with a
// random number of lines, posts it, and opens the posted invoice when offered.
//
// Every user-visible step is timed: NewSalesOrder, LookupCustomer, SetCustomer,
// ValidateHeader, one AddLine per line (each with a nested LookupItem),
// ValidateOrder and the post chain.
func (op *OrderProcessor) CreateAndPostSalesOrder(ctx context.Context, tc *TestContext, s uiclient.Session) error {
	var order *uiclient.Form
	err := op.recorder.Measure(ctx, "NewSalesOrder", func(ctx context.Context) (err error) {
		order, err = op.d.InvokeExpectingForm(ctx, s, s.RoleCenter(), "Sales Order")
		if err != nil {
			return fmt.Errorf("new sales order: %w", err)
		}
		if order.PageID != op.opts.Pages.SalesOrder {
			return fmt.Errorf("new sales order opened page %d, want %d", order.PageID, op.opts.Pages.SalesOrder)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if order, err = op.fillHeader(ctx, tc, s, order); err != nil {
		return err
	}

	lines := op.source.Int(op.opts.MinLines, op.opts.MaxLines)
	for line := 0; line < lines; line++ {
		err := op.recorder.Measure(ctx, "AddLine", func(ctx context.Context) (err error) {
			order, err = op.addLine(ctx, s, order, line)
			return err
		})
		if err != nil {
			return fmt.Errorf("sales line %d: %w", line+1, err)
		}
		if err := op.d.Think(ctx, op.opts.ThinkTime); err != nil {
			return err
		}
	}

	err = op.recorder.Measure(ctx, "ValidateOrder", func(ctx context.Context) (err error) {
		order, err = op.d.ValidateForm(ctx, s, order)
		return err
	})
	if err != nil {
		return err
	}

	if err := op.post(ctx, tc, s, order); err != nil {
		return err
	}
	return op.d.ClosePage(ctx, s, order)
}

func (op *OrderProcessor) fillHeader(ctx context.Context, tc *TestContext, s uiclient.Session, order *uiclient.Form) (*uiclient.Form, error) {
	order, err := op.d.Activate(ctx, s, interaction.Field(order, "No."))
	if err != nil {
		return nil, err
	}
	if order, err = op.d.Activate(ctx, s, interaction.Field(order, "Customer Name")); err != nil {
		return nil, err
	}

	var custName string
	err = op.recorder.Measure(ctx, "LookupCustomer", func(ctx context.Context) (err error) {
		custName, err = op.selector.SelectRandomRowFromLookup(ctx, s, interaction.Field(order, "Customer Name"), "Name")
		return err
	})
	if err != nil {
		return nil, err
	}

	err = op.recorder.Measure(ctx, "SetCustomer", func(ctx context.Context) (err error) {
		order, err = op.d.WriteField(ctx, s, interaction.Field(order, "Customer Name"), custName,
			interaction.WriteOptions{IgnoreWarning: true})
		return err
	})
	if err != nil {
		return nil, err
	}

	order, err = op.d.WriteFieldWithDelay(ctx, s, interaction.Field(order, "External Document No."), custName,
		interaction.WriteOptions{})
	if err != nil {
		return nil, err
	}
	orderNo, err := interaction.ReadField(order, interaction.Field(order, "No."))
	if err != nil {
		return nil, err
	}
	err = op.recorder.Measure(ctx, "ValidateHeader", func(ctx context.Context) (err error) {
		order, err = op.d.ValidateForm(ctx, s, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	tc.Logf("Created Sales Order No. %s for Customer %s", orderNo, custName)
	return order, nil
}

func (op *OrderProcessor) addLine(ctx context.Context, s uiclient.Session, order *uiclient.Form, index int) (*uiclient.Form, error) {
	order, err := op.d.EnsureRowVisible(ctx, s, order, index)
	if err != nil {
		return nil, err
	}

	if order, err = op.d.Activate(ctx, s, interaction.RowField(order, index, "Type")); err != nil {
		return nil, err
	}
	if order, err = op.d.WriteFieldWithDelay(ctx, s, interaction.RowField(order, index, "Type"), "Item", interaction.WriteOptions{}); err != nil {
		return nil, err
	}

	var itemNo string
	err = op.recorder.Measure(ctx, "LookupItem", func(ctx context.Context) (err error) {
		itemNo, err = op.selector.SelectRandomRowFromLookup(ctx, s, interaction.RowField(order, index, "No."), "No.")
		return err
	})
	if err != nil {
		return nil, err
	}
	if order, err = op.d.WriteFieldWithDelay(ctx, s, interaction.RowField(order, index, "No."), itemNo, interaction.WriteOptions{}); err != nil {
		return nil, err
	}

	qty := strconv.Itoa(op.source.Int(op.opts.MinQuantity, op.opts.MaxQuantity))
	if order, err = op.d.WriteField(ctx, s, interaction.RowField(order, index, "Quantity"), qty,
		interaction.WriteOptions{IgnoreWarning: true}); err != nil {
		return nil, err
	}
	if order, err = op.d.WriteField(ctx, s, interaction.RowField(order, index, "Qty. to Ship"), qty,
		interaction.WriteOptions{IgnoreWarning: true, ConfirmPrompt: true}); err != nil {
		return nil, err
	}
	return order, nil
}

// post invokes "Post..." and walks the confirmation chain.
func (op *OrderProcessor) post(ctx context.Context, tc *TestContext, s uiclient.Session, order *uiclient.Form) error {
	var confirm *uiclient.Form
	err := op.recorder.Measure(ctx, "Post", func(ctx context.Context) error {
		res, err := op.d.InvokeAction(ctx, s, order, "Post...")
		if err != nil {
			return err
		}
		if res.Kind == interaction.ResultDialog {
			confirm = res.Form
		}
		return nil
	})
	if err != nil {
		return err
	}

	if confirm == nil {
		if _, err := op.d.ValidateForm(ctx, s, order); err != nil {
			return err
		}
		if op.opts.MissingConfirmation == MissingConfirmationFail {
			return fmt.Errorf("post dialog not found on %s", order)
		}
		return Inconclusive("post dialog can't be found")
	}
	if confirm.Style == uiclient.DialogError {
		if len(confirm.Actions) > 0 {
			if _, err := op.d.InvokeAction(ctx, s, confirm, confirm.Actions[0]); err != nil {
				return err
			}
		}
		return &interaction.ValidationError{Form: order, Errors: []uiclient.FieldError{{Field: "Post...", Message: confirm.Message}}}
	}

	var openInvoice *uiclient.Form
	err = op.recorder.Measure(ctx, "ConfirmShipAndInvoice", func(ctx context.Context) error {
		res, err := op.d.InvokeAction(ctx, s, confirm, "OK")
		if err != nil {
			return err
		}
		if res.Kind == interaction.ResultDialog {
			openInvoice = res.Form
		}
		return nil
	})
	if err != nil {
		return err
	}

	return op.recorder.Measure(ctx, "OpenPostedInvoice", func(ctx context.Context) error {
		if openInvoice == nil {
			return nil
		}
		invoice, err := op.d.InvokeExpectingForm(ctx, s, openInvoice, "Yes")
		if err != nil {
			return err
		}
		invoiceNo, err := interaction.ReadField(invoice, interaction.Field(invoice, "No."))
		if err != nil {
			return err
		}
		tc.Logf("Posted Sales Invoice No. %s", invoiceNo)
		return op.d.ClosePage(ctx, s, invoice)
	})
}
