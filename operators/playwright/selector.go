package pwoperator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

var cssQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)

// quote renders s as a double-quoted CSS string.
func quote(s string) string {
	return `"` + cssQuoter.Replace(s) + `"`
}

// selector translates loc into a Playwright selector.
func selector(loc query.Locator) (string, error) {
	if err := loc.Validate(); err != nil {
		return "", err
	}
	sel := loc.Selector
	switch loc.Strategy {
	case query.ByCSS:
		return "css=" + sel, nil
	case query.ByXPath:
		return "xpath=" + sel, nil
	case query.ByID:
		return "css=[id=" + quote(sel) + "]", nil
	case query.ByName:
		return "css=[name=" + quote(sel) + "]", nil
	case query.ByTagName:
		return "css=" + sel, nil
	case query.ByClassName:
		return "css=[class~=" + quote(sel) + "]", nil
	case query.ByLinkText:
		return "css=a:text-is(" + quote(sel) + ")", nil
	case query.ByPartialLinkText:
		return "css=a:has-text(" + quote(sel) + ")", nil
	case query.ByText:
		return "css=:text(" + quote(sel) + ")", nil
	case query.ByRegex:
		if _, err := regexp.Compile(sel); err != nil {
			return "", trip.Wrap(trip.InvalidLocator, fmt.Sprintf("invalid pattern in %s", loc), err)
		}
		return "css=:text-matches(" + quote(sel) + ")", nil
	default:
		return "", trip.New(trip.InvalidLocator,
			fmt.Sprintf("strategy %q is not supported by browser sessions", loc.Strategy),
			trip.Context{"locator": loc.String()})
	}
}
