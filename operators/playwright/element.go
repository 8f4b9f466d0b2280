package pwoperator

import (
	"context"

	"github.com/playwright-community/playwright-go"
)

// selectedExpr covers options, checkable inputs and ARIA widgets.
const selectedExpr = `el instanceof HTMLOptionElement ? el.selected : ("checked" in el ? !!el.checked : el.getAttribute("aria-selected") === "true" || el.getAttribute("aria-checked") === "true")`

type element struct {
	session *Session
	handle  playwright.ElementHandle
	id      string
}

func (e *element) ID() string { return e.id }

// eval runs body against the element, failing with staleMarker once the
// element has been removed from the document.
func (e *element) eval(ctx context.Context, op, body string, arg any) (any, error) {
	script := `(el, arg) => {
	if (!el.isConnected) throw new Error("` + staleMarker + `");
	return ` + body + `;
}`
	var v any
	err := e.session.call(ctx, op, func() (err error) {
		v, err = e.handle.Evaluate(script, arg)
		return err
	})
	return v, err
}

func (e *element) IsVisible(ctx context.Context) (bool, error) {
	v, err := e.eval(ctx, "is_visible",
		`!!(el.offsetWidth || el.offsetHeight || el.getClientRects().length) && getComputedStyle(el).visibility !== "hidden"`, nil)
	visible, _ := v.(bool)
	return visible, err
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	v, err := e.eval(ctx, "is_enabled", `!el.disabled`, nil)
	enabled, _ := v.(bool)
	return enabled, err
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	v, err := e.eval(ctx, "is_selected", selectedExpr, nil)
	selected, _ := v.(bool)
	return selected, err
}

func (e *element) Text(ctx context.Context) (string, error) {
	v, err := e.eval(ctx, "text", `el.innerText ?? el.textContent`, nil)
	text, _ := v.(string)
	return text, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.eval(ctx, "attribute", `el.hasAttribute(arg) ? el.getAttribute(arg) : null`, name)
	if err != nil || v == nil {
		return "", false, err
	}
	value, _ := v.(string)
	return value, true, nil
}
