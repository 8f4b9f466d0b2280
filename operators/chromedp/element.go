package cdpoperator

import (
	"context"

	"github.com/chromedp/chromedp"
)

// element is a handle into the page's element registry.
type element struct {
	session *Session
	id      string
}

func (e *element) ID() string { return e.id }

func (e *element) eval(ctx context.Context, op, body string, res any) error {
	return e.session.run(ctx, op, chromedp.Evaluate(elementScript(e.id, body), res))
}

func (e *element) IsVisible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.eval(ctx, "is_visible",
		`!!(el.offsetWidth || el.offsetHeight || el.getClientRects().length) && getComputedStyle(el).visibility !== "hidden"`,
		&visible)
	return visible, err
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := e.eval(ctx, "is_enabled", `!el.disabled`, &enabled)
	return enabled, err
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	var selected bool
	err := e.eval(ctx, "is_selected",
		`el instanceof HTMLOptionElement ? el.selected : ("checked" in el ? !!el.checked : el.getAttribute("aria-selected") === "true" || el.getAttribute("aria-checked") === "true")`,
		&selected)
	return selected, err
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.eval(ctx, "text", `el.innerText ?? el.textContent ?? ""`, &text)
	return text, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var attr struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	body := `({present: el.hasAttribute(` + jsString(name) + `), value: el.getAttribute(` + jsString(name) + `) ?? ""})`
	if err := e.eval(ctx, "attribute", body, &attr); err != nil {
		return "", false, err
	}
	return attr.Value, attr.Present, nil
}
