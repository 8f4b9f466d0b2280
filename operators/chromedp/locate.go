package cdpoperator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// engine names the in-page query mechanism a locator compiles to.
type engine string

const (
	engineCSS   engine = "css"
	engineXPath engine = "xpath"
	engineRegex engine = "regex"
)

type compiled struct {
	engine engine
	expr   string
}

var cssQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)

func cssString(s string) string {
	return `"` + cssQuoter.Replace(s) + `"`
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func compile(loc query.Locator) (compiled, error) {
	if err := loc.Validate(); err != nil {
		return compiled{}, err
	}
	sel := loc.Selector
	switch loc.Strategy {
	case query.ByCSS, query.ByTagName:
		return compiled{engineCSS, sel}, nil
	case query.ByID:
		return compiled{engineCSS, "[id=" + cssString(sel) + "]"}, nil
	case query.ByName:
		return compiled{engineCSS, "[name=" + cssString(sel) + "]"}, nil
	case query.ByClassName:
		return compiled{engineCSS, "[class~=" + cssString(sel) + "]"}, nil
	case query.ByXPath:
		return compiled{engineXPath, sel}, nil
	case query.ByLinkText:
		return compiled{engineXPath, "//a[normalize-space(.)=" + xpathLiteral(strings.TrimSpace(sel)) + "]"}, nil
	case query.ByPartialLinkText:
		return compiled{engineXPath, "//a[contains(., " + xpathLiteral(sel) + ")]"}, nil
	case query.ByText:
		return compiled{engineXPath, "//body//*[text()[contains(., " + xpathLiteral(sel) + ")]]"}, nil
	case query.ByRegex:
		if _, err := regexp.Compile(sel); err != nil {
			return compiled{}, trip.Wrap(trip.InvalidLocator, fmt.Sprintf("invalid pattern in %s", loc), err)
		}
		return compiled{engineRegex, sel}, nil
	default:
		return compiled{}, trip.New(trip.InvalidLocator,
			fmt.Sprintf("strategy %q is not supported by browser sessions", loc.Strategy),
			trip.Context{"locator": loc.String()})
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// findScript returns the ids of every element matching c. Ids are assigned
// once per element and kept in a page-global registry, so they are stable
// until the document is replaced.
func findScript(c compiled) string {
	return fmt.Sprintf(`(() => {
	const fp = (window.__focuspuller ||= {seq: 0, ids: new WeakMap(), refs: new Map()});
	const engine = %s, expr = %s;
	let found = [];
	if (engine === "css") {
		found = [...document.querySelectorAll(expr)];
	} else if (engine === "xpath") {
		const r = document.evaluate(expr, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < r.snapshotLength; i++) found.push(r.snapshotItem(i));
	} else {
		const re = new RegExp(expr);
		found = [...document.querySelectorAll("body *")].filter(el =>
			[...el.childNodes].some(n => n.nodeType === Node.TEXT_NODE && re.test(n.textContent)));
	}
	return found.filter(el => el.nodeType === Node.ELEMENT_NODE).map(el => {
		if (!fp.ids.has(el)) {
			const id = "fp-" + (++fp.seq);
			fp.ids.set(el, id);
			fp.refs.set(id, new WeakRef(el));
		}
		return fp.ids.get(el);
	});
})()`, jsString(string(c.engine)), jsString(c.expr))
}

// staleMarker is thrown by element scripts when the element has left the DOM.
const staleMarker = "focuspuller: element is not attached to the DOM"

// elementScript evaluates body with el bound to the element registered as id.
func elementScript(id, body string) string {
	return fmt.Sprintf(`(() => {
	const ref = window.__focuspuller && window.__focuspuller.refs.get(%s);
	const el = ref && ref.deref();
	if (!el || !el.isConnected) throw new Error(%s);
	return (%s);
})()`, jsString(id), jsString(staleMarker), body)
}
