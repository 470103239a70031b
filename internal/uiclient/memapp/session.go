package memapp

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// Session is one simulated client session.
type Session struct {
	app  *App
	id   string
	user string

	mu       sync.Mutex
	closed   bool
	forms    map[string]*formState
	stack    []string // open order; the last non-page entry is modal
	nextForm int
	rcID     string
}

type formState struct {
	form     *uiclient.Form
	rows     []map[string]string
	lineRows bool
	offset   int
	onAction map[string]func() (*uiclient.Response, error)
}

func newSession(app *App, id, user string) *Session {
	s := &Session{
		app:   app,
		id:    id,
		user:  user,
		forms: make(map[string]*formState),
	}
	rc := s.register(&formState{form: &uiclient.Form{
		PageID:  PageRoleCenter,
		Kind:    uiclient.KindPage,
		Caption: "Order Processor",
		Actions: []string{"Sales Order", "Sales Orders", "Customers", "Items"},
	}})
	s.rcID = rc.form.ID
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// RoleCenter returns the landing page.
func (s *Session) RoleCenter() *uiclient.Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(s.forms[s.rcID])
}

// Close ends the session.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return uiclient.ErrSessionClosed
	}
	s.closed = true
	s.forms = nil
	s.stack = nil
	s.app.forget(s.id)
	return nil
}

// OpenForms returns the ids of forms currently open, role center excluded.
func (s *Session) OpenForms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range s.stack {
		if id != s.rcID {
			out = append(out, id)
		}
	}
	return out
}

// Invoke handles one interaction.
func (s *Session) Invoke(ctx context.Context, in uiclient.Interaction) (*uiclient.Response, error) {
	if err := s.app.delay(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, uiclient.ErrSessionClosed
	}
	s.app.count(in)

	if in.Kind == uiclient.OpenForm {
		if m := s.modal(); m != nil {
			return nil, &uiclient.RejectedError{Message: fmt.Sprintf("%s is waiting for an answer", m.form)}
		}
		return s.openPage(in.PageID)
	}

	fs, ok := s.forms[in.FormID]
	if !ok {
		return nil, fmt.Errorf("%w: form %s", uiclient.ErrNotFound, in.FormID)
	}
	if m := s.modal(); m != nil && m != fs {
		return nil, &uiclient.RejectedError{Message: fmt.Sprintf("%s is waiting for an answer", m.form)}
	}

	switch in.Kind {
	case uiclient.InvokeAction:
		return s.invokeAction(fs, in)
	case uiclient.Activate:
		if _, err := s.resolveControl(fs, in); err != nil {
			return nil, err
		}
		return s.touched(fs), nil
	case uiclient.SaveValue:
		return s.saveValue(fs, in)
	case uiclient.Lookup:
		return s.lookup(fs, in)
	case uiclient.ScrollRepeater:
		return s.scroll(fs, in.Delta)
	case uiclient.Validate:
		s.validate(fs)
		return s.touched(fs), nil
	case uiclient.CloseForm:
		if fs.form.ID == s.rcID {
			return nil, &uiclient.RejectedError{Message: "the role center cannot be closed"}
		}
		return s.close(fs), nil
	default:
		return nil, &uiclient.RejectedError{Message: fmt.Sprintf("unsupported interaction %q", in.Kind)}
	}
}

func (s *Session) register(fs *formState) *formState {
	s.nextForm++
	fs.form.ID = fmt.Sprintf("f%d", s.nextForm)
	if fs.form.Fields == nil {
		fs.form.Fields = make(map[string]string)
	}
	s.forms[fs.form.ID] = fs
	s.stack = append(s.stack, fs.form.ID)
	return fs
}

func (s *Session) modal() *formState {
	for i := len(s.stack) - 1; i >= 0; i-- {
		fs := s.forms[s.stack[i]]
		if fs.form.Kind != uiclient.KindPage {
			return fs
		}
	}
	return nil
}

func (s *Session) snapshot(fs *formState) *uiclient.Form {
	f := *fs.form
	f.Fields = maps.Clone(fs.form.Fields)
	f.Actions = append([]string(nil), fs.form.Actions...)
	f.Errors = append([]uiclient.FieldError(nil), fs.form.Errors...)
	if fs.rows != nil || fs.lineRows {
		all := s.allRows(fs)
		end := min(fs.offset+s.app.opts.ViewportSize, len(all))
		rep := &uiclient.Repeater{
			Offset:       fs.offset,
			ViewportSize: s.app.opts.ViewportSize,
			Total:        len(fs.rows),
		}
		for i := fs.offset; i < end; i++ {
			rep.Viewport = append(rep.Viewport, uiclient.Row{Index: i, Values: maps.Clone(all[i])})
		}
		f.Repeater = rep
	}
	return &f
}

// allRows returns the addressable rows including the trailing new-line row.
func (s *Session) allRows(fs *formState) []map[string]string {
	if !fs.lineRows {
		return fs.rows
	}
	return append(fs.rows[:len(fs.rows):len(fs.rows)], map[string]string{})
}

func (s *Session) touched(fs *formState) *uiclient.Response {
	return &uiclient.Response{Forms: []*uiclient.Form{s.snapshot(fs)}}
}

func (s *Session) opened(fs *formState, also ...*formState) *uiclient.Response {
	resp := &uiclient.Response{Opened: s.snapshot(fs)}
	for _, o := range also {
		resp.Forms = append(resp.Forms, s.snapshot(o))
	}
	return resp
}

func (s *Session) close(fs *formState) *uiclient.Response {
	id := fs.form.ID
	delete(s.forms, id)
	for i, sid := range s.stack {
		if sid == id {
			s.stack = append(s.stack[:i], s.stack[i+1:]...)
			break
		}
	}
	return &uiclient.Response{Closed: []string{id}}
}

func (s *Session) openPage(pageID int) (*uiclient.Response, error) {
	var fs *formState
	switch pageID {
	case PageCustomerList:
		fs = s.listForm(PageCustomerList, "Customers", customerRows(s.app.opts.Catalog))
	case PageItemList:
		fs = s.listForm(PageItemList, "Items", itemRows(s.app.opts.Catalog))
	case PageSalesOrderList:
		fs = s.listForm(PageSalesOrderList, "Sales Orders", s.app.orderRows())
	case PageSalesOrder:
		fs = s.newOrder()
	default:
		return nil, fmt.Errorf("%w: page %d", uiclient.ErrNotFound, pageID)
	}
	return s.opened(fs), nil
}

func (s *Session) listForm(pageID int, caption string, rows []map[string]string) *formState {
	return s.register(&formState{
		form: &uiclient.Form{PageID: pageID, Kind: uiclient.KindPage, Caption: caption},
		rows: rows,
	})
}

func (s *Session) newOrder() *formState {
	no := s.app.newOrderNo()
	return s.register(&formState{
		form: &uiclient.Form{
			PageID:  PageSalesOrder,
			Kind:    uiclient.KindPage,
			Caption: "Sales Order " + no,
			Fields: map[string]string{
				"No.":                   no,
				"Customer Name":         "",
				"Sell-to Customer No.":  "",
				"External Document No.": "",
				"Status":                "Open",
			},
			Actions: []string{"Post...", "Release"},
		},
		rows:     []map[string]string{},
		lineRows: true,
	})
}

func (s *Session) dialog(style uiclient.DialogStyle, message string, handlers map[string]func() (*uiclient.Response, error)) *formState {
	actions := make([]string, 0, len(handlers))
	for _, name := range []string{"OK", "Yes", "No", "Cancel"} {
		if _, ok := handlers[name]; ok {
			actions = append(actions, name)
		}
	}
	return s.register(&formState{
		form:     &uiclient.Form{Kind: uiclient.KindDialog, Style: style, Message: message, Actions: actions},
		onAction: handlers,
	})
}

// dismiss returns a handler that only closes the dialog.
func (s *Session) dismiss(dlg **formState) func() (*uiclient.Response, error) {
	return func() (*uiclient.Response, error) {
		return s.close(*dlg), nil
	}
}

func (s *Session) invokeAction(fs *formState, in uiclient.Interaction) (*uiclient.Response, error) {
	if h, ok := fs.onAction[in.Action]; ok {
		return h()
	}
	if !fs.form.HasAction(in.Action) {
		return nil, fmt.Errorf("%w: action %q on %s", uiclient.ErrNotFound, in.Action, fs.form)
	}
	switch {
	case fs.form.ID == s.rcID:
		switch in.Action {
		case "Sales Order":
			return s.openPage(PageSalesOrder)
		case "Sales Orders":
			return s.openPage(PageSalesOrderList)
		case "Customers":
			return s.openPage(PageCustomerList)
		case "Items":
			return s.openPage(PageItemList)
		}
	case fs.form.PageID == PageSalesOrder:
		switch in.Action {
		case "Post...":
			return s.post(fs)
		case "Release":
			fs.form.Fields["Status"] = "Released"
			return s.touched(fs), nil
		}
	}
	return s.touched(fs), nil
}

func (s *Session) post(order *formState) (*uiclient.Response, error) {
	s.validate(order)
	if len(order.form.Errors) > 0 {
		var dlg *formState
		dlg = s.dialog(uiclient.DialogError, order.form.Errors[0].String(), map[string]func() (*uiclient.Response, error){
			"OK": s.dismiss(&dlg),
		})
		return s.opened(dlg, order), nil
	}

	if s.app.opts.Post == PostNoDialog {
		s.commitPost(order)
		return s.touched(order), nil
	}

	var confirm *formState
	confirm = s.dialog(uiclient.DialogConfirm, "Do you want to ship and invoice the order?", map[string]func() (*uiclient.Response, error){
		"OK": func() (*uiclient.Response, error) {
			closed := s.close(confirm)
			invoiceNo := s.commitPost(order)
			if s.app.opts.Post != PostConfirmChain {
				resp := s.touched(order)
				resp.Closed = closed.Closed
				return resp, nil
			}
			var open *formState
			open = s.dialog(uiclient.DialogConfirm,
				fmt.Sprintf("The order is posted as number %s. Do you want to open the posted invoice?", invoiceNo),
				map[string]func() (*uiclient.Response, error){
					"Yes": func() (*uiclient.Response, error) {
						closed := s.close(open)
						inv := s.register(&formState{form: &uiclient.Form{
							PageID:  PagePostedInvoice,
							Kind:    uiclient.KindPage,
							Caption: "Posted Sales Invoice " + invoiceNo,
							Fields: map[string]string{
								"No.":           invoiceNo,
								"Order No.":     order.form.Fields["No."],
								"Customer Name": order.form.Fields["Customer Name"],
							},
						}})
						resp := s.opened(inv)
						resp.Closed = closed.Closed
						return resp, nil
					},
					"No": s.dismiss(&open),
				})
			resp := s.opened(open, order)
			resp.Closed = closed.Closed
			return resp, nil
		},
		"Cancel": s.dismiss(&confirm),
	})
	return s.opened(confirm), nil
}

func (s *Session) commitPost(order *formState) string {
	invoiceNo := s.app.newInvoiceNo()
	order.form.Fields["Status"] = "Posted"
	order.form.Actions = nil
	s.app.updateOrder(order.form.Fields["No."], map[string]string{
		"Status":        "Posted",
		"Customer Name": order.form.Fields["Customer Name"],
	})
	return invoiceNo
}

// resolveControl checks that the addressed control exists and is inside the
// viewport. Touching the trailing new-line row materializes it.
func (s *Session) resolveControl(fs *formState, in uiclient.Interaction) (map[string]string, error) {
	if !in.InRow {
		if _, ok := fs.form.Fields[in.Control]; !ok {
			return nil, fmt.Errorf("%w: control %q on %s", uiclient.ErrNotFound, in.Control, fs.form)
		}
		return fs.form.Fields, nil
	}
	if fs.rows == nil && !fs.lineRows {
		return nil, fmt.Errorf("%w: %s has no repeater", uiclient.ErrNotFound, fs.form)
	}
	all := s.allRows(fs)
	end := min(fs.offset+s.app.opts.ViewportSize, len(all))
	if in.Row < fs.offset || in.Row >= end {
		return nil, fmt.Errorf("%w: row %d outside viewport [%d,%d)", uiclient.ErrNotFound, in.Row, fs.offset, end)
	}
	if fs.lineRows && in.Row == len(fs.rows) {
		fs.rows = append(fs.rows, map[string]string{
			"Type": "", "No.": "", "Description": "", "Quantity": "", "Qty. to Ship": "",
		})
		s.app.appended.Add(1)
	}
	row := fs.rows[in.Row]
	if _, ok := row[in.Control]; !ok {
		return nil, fmt.Errorf("%w: column %q", uiclient.ErrNotFound, in.Control)
	}
	return row, nil
}

func (s *Session) saveValue(fs *formState, in uiclient.Interaction) (*uiclient.Response, error) {
	if fs.form.PageID != PageSalesOrder || fs.form.Fields["Status"] == "Posted" {
		return nil, &uiclient.RejectedError{Message: fmt.Sprintf("%s is not editable", fs.form)}
	}
	target, err := s.resolveControl(fs, in)
	if err != nil {
		return nil, err
	}
	clearError(fs.form, in.Control)

	reject := func(msg string) (*uiclient.Response, error) {
		fs.form.Errors = append(fs.form.Errors, uiclient.FieldError{Field: in.Control, Message: msg})
		return s.touched(fs), nil
	}

	if !in.InRow {
		switch in.Control {
		case "Customer Name":
			cu, ok := s.app.opts.Catalog.customerByName(in.Value)
			if !ok {
				return reject(fmt.Sprintf("customer %q does not exist", in.Value))
			}
			target["Customer Name"] = cu.Name
			target["Sell-to Customer No."] = cu.No
			s.app.updateOrder(fs.form.Fields["No."], map[string]string{"Customer Name": cu.Name})
			if cu.CreditWarning {
				var dlg *formState
				dlg = s.dialog(uiclient.DialogWarning,
					fmt.Sprintf("The customer's credit limit has been exceeded for %s.", cu.Name),
					map[string]func() (*uiclient.Response, error){"OK": s.dismiss(&dlg)})
				return s.opened(dlg, fs), nil
			}
		default:
			target[in.Control] = in.Value
		}
		return s.touched(fs), nil
	}

	switch in.Control {
	case "Type":
		if in.Value != "" && in.Value != "Item" {
			return reject(fmt.Sprintf("type %q is not supported", in.Value))
		}
		target["Type"] = in.Value
	case "No.":
		it, ok := s.app.opts.Catalog.item(in.Value)
		if !ok {
			return reject(fmt.Sprintf("item %q does not exist", in.Value))
		}
		target["No."] = it.No
		target["Description"] = it.Description
	case "Quantity":
		q, err := strconv.Atoi(in.Value)
		if err != nil || q <= 0 {
			return reject("quantity must be a positive whole number")
		}
		target["Quantity"] = in.Value
		if it, ok := s.app.opts.Catalog.item(target["No."]); ok && it.LowStock {
			var dlg *formState
			dlg = s.dialog(uiclient.DialogWarning,
				fmt.Sprintf("Item %s is low on inventory.", it.No),
				map[string]func() (*uiclient.Response, error){"OK": s.dismiss(&dlg)})
			return s.opened(dlg, fs), nil
		}
	case "Qty. to Ship":
		q, err := strconv.Atoi(in.Value)
		ordered, _ := strconv.Atoi(target["Quantity"])
		if err != nil || q < 0 || q > ordered {
			return reject(fmt.Sprintf("quantity to ship cannot exceed %d", ordered))
		}
		if !s.app.opts.ConfirmQtyToShip {
			target["Qty. to Ship"] = in.Value
			break
		}
		var dlg *formState
		dlg = s.dialog(uiclient.DialogConfirm,
			fmt.Sprintf("Do you want to ship %d units now?", q),
			map[string]func() (*uiclient.Response, error){
				"OK": func() (*uiclient.Response, error) {
					target["Qty. to Ship"] = in.Value
					resp := s.touched(fs)
					resp.Closed = s.close(dlg).Closed
					return resp, nil
				},
				"Cancel": s.dismiss(&dlg),
			})
		return s.opened(dlg, fs), nil
	default:
		target[in.Control] = in.Value
	}
	return s.touched(fs), nil
}

func (s *Session) lookup(fs *formState, in uiclient.Interaction) (*uiclient.Response, error) {
	if _, err := s.resolveControl(fs, in); err != nil {
		return nil, err
	}
	var lk *formState
	switch {
	case !in.InRow && in.Control == "Customer Name":
		lk = &formState{form: &uiclient.Form{PageID: PageCustomerList, Kind: uiclient.KindLookup, Caption: "Customers"},
			rows: customerRows(s.app.opts.Catalog)}
	case in.InRow && in.Control == "No.":
		lk = &formState{form: &uiclient.Form{PageID: PageItemList, Kind: uiclient.KindLookup, Caption: "Items"},
			rows: itemRows(s.app.opts.Catalog)}
	default:
		return nil, fmt.Errorf("%w: no lookup on %q", uiclient.ErrNotFound, in.Control)
	}
	lk.form.Actions = []string{"OK", "Cancel"}
	lk.onAction = map[string]func() (*uiclient.Response, error){
		"OK":     func() (*uiclient.Response, error) { return s.close(lk), nil },
		"Cancel": func() (*uiclient.Response, error) { return s.close(lk), nil },
	}
	s.register(lk)
	return s.opened(lk, fs), nil
}

func (s *Session) scroll(fs *formState, delta int) (*uiclient.Response, error) {
	if fs.rows == nil && !fs.lineRows {
		return nil, fmt.Errorf("%w: %s has no repeater", uiclient.ErrNotFound, fs.form)
	}
	vs := s.app.opts.ViewportSize
	maxOffset := max(0, len(s.allRows(fs))-vs)
	fs.offset = min(max(fs.offset+delta*vs, 0), maxOffset)
	return s.touched(fs), nil
}

func (s *Session) validate(fs *formState) {
	if fs.form.PageID != PageSalesOrder {
		return
	}
	fs.form.Errors = nil
	if fs.form.Fields["Sell-to Customer No."] == "" {
		fs.form.Errors = append(fs.form.Errors, uiclient.FieldError{Field: "Customer Name", Message: "must have a value"})
	}
	for i, row := range fs.rows {
		if row["Type"] != "Item" {
			continue
		}
		if row["No."] == "" {
			fs.form.Errors = append(fs.form.Errors, uiclient.FieldError{Field: fmt.Sprintf("line %d No.", i+1), Message: "must have a value"})
		}
		if q, err := strconv.Atoi(row["Quantity"]); err != nil || q <= 0 {
			fs.form.Errors = append(fs.form.Errors, uiclient.FieldError{Field: fmt.Sprintf("line %d Quantity", i+1), Message: "must be positive"})
		}
	}
}

func clearError(f *uiclient.Form, field string) {
	kept := f.Errors[:0]
	for _, e := range f.Errors {
		if e.Field != field {
			kept = append(kept, e)
		}
	}
	f.Errors = kept
}

func customerRows(c Catalog) []map[string]string {
	rows := make([]map[string]string, 0, len(c.Customers))
	for _, cu := range c.Customers {
		rows = append(rows, map[string]string{"No.": cu.No, "Name": cu.Name})
	}
	return rows
}

func itemRows(c Catalog) []map[string]string {
	rows := make([]map[string]string, 0, len(c.Items))
	for _, it := range c.Items {
		rows = append(rows, map[string]string{"No.": it.No, "Description": it.Description})
	}
	return rows
}
