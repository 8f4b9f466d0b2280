package query

import (
	"fmt"
	"strings"

	"github.com/teranos/focuspuller/trip"
)

// Strategy tags how a Locator's selector is interpreted by the remote query mechanism.
type Strategy string

const (
	ByCSS             Strategy = "css"
	ByXPath           Strategy = "xpath"
	ByID              Strategy = "id"
	ByName            Strategy = "name"
	ByTagName         Strategy = "tag"
	ByClassName       Strategy = "class"
	ByLinkText        Strategy = "link"
	ByPartialLinkText Strategy = "partial_link"
	// ByText matches on rendered text content.
	ByText Strategy = "text"
	// ByRegex matches rendered text against a regular expression.
	ByRegex Strategy = "regex"
	// ByCondition names an application-defined condition (terminal models).
	ByCondition Strategy = "condition"
)

var knownStrategies = map[Strategy]bool{
	ByCSS: true, ByXPath: true, ByID: true, ByName: true, ByTagName: true,
	ByClassName: true, ByLinkText: true, ByPartialLinkText: true,
	ByText: true, ByRegex: true, ByCondition: true,
}

// Locator identifies a group of targets in remote state. It is a plain value:
// copies never change underneath their holder.
type Locator struct {
	Strategy Strategy
	Selector string
}

func CSS(selector string) Locator { return Locator{Strategy: ByCSS, Selector: selector} }
func XPath(selector string) Locator { return Locator{Strategy: ByXPath, Selector: selector} }
func ID(id string) Locator { return Locator{Strategy: ByID, Selector: id} }
func Name(name string) Locator { return Locator{Strategy: ByName, Selector: name} }
func TagName(tag string) Locator { return Locator{Strategy: ByTagName, Selector: tag} }
func ClassName(class string) Locator { return Locator{Strategy: ByClassName, Selector: class} }
func LinkText(text string) Locator { return Locator{Strategy: ByLinkText, Selector: text} }
func PartialLinkText(text string) Locator { return Locator{Strategy: ByPartialLinkText, Selector: text} }
func Text(text string) Locator { return Locator{Strategy: ByText, Selector: text} }
func Regex(pattern string) Locator { return Locator{Strategy: ByRegex, Selector: pattern} }
func Condition(name string) Locator { return Locator{Strategy: ByCondition, Selector: name} }

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Selector)
}

// Validate rejects locators no driver could run.
func (l Locator) Validate() error {
	if !knownStrategies[l.Strategy] {
		return trip.New(trip.InvalidLocator, fmt.Sprintf("unknown locator strategy %q", l.Strategy),
			trip.Context{"locator": l.String()})
	}
	if strings.TrimSpace(l.Selector) == "" {
		return trip.New(trip.InvalidLocator, "empty selector", trip.Context{"locator": l.String()})
	}
	return nil
}

// ParseLocator splits "strategy=selector". A string without a known strategy
// prefix is taken as a CSS selector.
func ParseLocator(s string) (Locator, error) {
	if prefix, rest, ok := strings.Cut(s, "="); ok && knownStrategies[Strategy(prefix)] {
		loc := Locator{Strategy: Strategy(prefix), Selector: rest}
		return loc, loc.Validate()
	}
	loc := CSS(s)
	return loc, loc.Validate()
}
