package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/format"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/i18n"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
)

//go:embed templates/*.html
var templateFS embed.FS

// OrderItem is one line of a confirmed order.
type OrderItem struct {
	Name      string          `json:"name" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderConfirmation is the payload of the order confirmation email.
type OrderConfirmation struct {
	OrderID       string          `json:"orderId" validate:"required"`
	CustomerName  string          `json:"customerName" validate:"required"`
	CustomerEmail string          `json:"customerEmail" validate:"required,email"`
	Locale        string          `json:"locale"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
	Items         []OrderItem     `json:"items" validate:"required,min=1,dive"`
	Shipping      decimal.Decimal `json:"shipping"`
	Total         decimal.Decimal `json:"total"`
}

// ConfirmerDeps bundles constructor inputs for the order confirmer.
type ConfirmerDeps struct {
	Sender     Sender
	Bundle     *i18n.Bundle
	AdminEmail string
}

// Confirmer renders and sends order confirmations, copying the store admin when configured.
type Confirmer struct {
	sender Sender
	bundle *i18n.Bundle
	admin  string
	tmpl   *template.Template
}

func NewConfirmer(deps ConfirmerDeps) (*Confirmer, error) {
	if deps.Sender == nil {
		return nil, errors.New("mail: sender is required")
	}
	if deps.Bundle == nil {
		return nil, errors.New("mail: i18n bundle is required")
	}
	tmpl, err := template.New("order_confirmation.html").
		Funcs(template.FuncMap{"t": func(string) string { return "" }}).
		ParseFS(templateFS, "templates/order_confirmation.html")
	if err != nil {
		return nil, fmt.Errorf("mail: parse template: %w", err)
	}
	return &Confirmer{
		sender: deps.Sender,
		bundle: deps.Bundle,
		admin:  strings.TrimSpace(deps.AdminEmail),
		tmpl:   tmpl,
	}, nil
}

type orderLine struct {
	Name     string
	Quantity int
	Subtotal string
}

type orderView struct {
	Lang     string
	Subject  string
	SiteName string
	Greeting string
	OrderID  string
	Lines    []orderLine
	Shipping string
	Total    string
}

// Render returns the localized subject and HTML body for o.
func (c *Confirmer) Render(o OrderConfirmation) (string, string, error) {
	loc, ok := locale.Parse(o.Locale)
	if !ok {
		loc = locale.Spanish
	}
	code := strings.ToUpper(strings.TrimSpace(o.Currency))
	if code == "" {
		code = "USD"
	}
	lang := loc.String()

	view := orderView{
		Lang:     loc.Hreflang(),
		Subject:  c.bundle.Tf(lang, "mail.order.subject", "order", o.OrderID),
		SiteName: c.bundle.T(lang, "site.name"),
		Greeting: c.bundle.Tf(lang, "mail.order.greeting", "name", o.CustomerName),
		OrderID:  o.OrderID,
		Shipping: format.Price(o.Shipping, code, loc),
	}
	sum := decimal.Zero
	for _, it := range o.Items {
		sub := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		sum = sum.Add(sub)
		view.Lines = append(view.Lines, orderLine{Name: it.Name, Quantity: it.Quantity, Subtotal: format.Price(sub, code, loc)})
	}
	total := o.Total
	if total.IsZero() {
		total = sum.Add(o.Shipping)
	}
	view.Total = format.Price(total, code, loc)

	tmpl, err := c.tmpl.Clone()
	if err != nil {
		return "", "", err
	}
	tmpl.Funcs(template.FuncMap{"t": func(key string) string { return c.bundle.T(lang, key) }})

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("mail: render order confirmation: %w", err)
	}
	return view.Subject, buf.String(), nil
}

// Send validates o, renders it and relays it to the customer.
func (c *Confirmer) Send(ctx context.Context, o OrderConfirmation) (string, error) {
	if err := Validate(o); err != nil {
		return "", err
	}
	subject, html, err := c.Render(o)
	if err != nil {
		return "", err
	}
	msg := Message{To: Recipients{o.CustomerEmail}, Subject: subject, HTML: html}
	if c.admin != "" && !strings.EqualFold(c.admin, o.CustomerEmail) {
		msg.Bcc = Recipients{c.admin}
	}
	return c.sender.Send(ctx, msg)
}
