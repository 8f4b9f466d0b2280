package condition

import (
	"context"
	"fmt"
	"strings"

	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

func withDocument(desc string, fn func(ctx context.Context, doc query.Document) Outcome) Condition {
	return Custom(desc, func(ctx context.Context, s query.Session) Outcome {
		doc, ok := query.As[query.Document](s)
		if !ok {
			return Failed(trip.New(trip.Other, fmt.Sprintf("session %T does not expose document state", s), nil))
		}
		return fn(ctx, doc)
	})
}

// TitleContains is satisfied by the page title once it contains substring.
func TitleContains(substring string) Condition {
	return withDocument(fmt.Sprintf("title containing %q", substring), func(ctx context.Context, doc query.Document) Outcome {
		title, err := doc.Title(ctx)
		if err != nil {
			return Failed(err)
		}
		if !strings.Contains(title, substring) {
			return Pendingf("title is %q", title)
		}
		return Satisfied(title)
	})
}

// URLContains is satisfied by the current URL once it contains substring.
func URLContains(substring string) Condition {
	return withDocument(fmt.Sprintf("url containing %q", substring), func(ctx context.Context, doc query.Document) Outcome {
		url, err := doc.URL(ctx)
		if err != nil {
			return Failed(err)
		}
		if !strings.Contains(url, substring) {
			return Pendingf("url is %q", url)
		}
		return Satisfied(url)
	})
}

// DocumentReady is satisfied once the document has finished loading.
func DocumentReady() Condition {
	return withDocument("document ready", func(ctx context.Context, doc query.Document) Outcome {
		state, err := doc.ReadyState(ctx)
		if err != nil {
			return Failed(err)
		}
		if state != "complete" {
			return Pendingf("readyState is %q", state)
		}
		return Satisfied(state)
	})
}
