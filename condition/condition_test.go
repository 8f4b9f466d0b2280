package condition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/query/querytest"
	"github.com/teranos/focuspuller/trip"
)

var ctx = context.Background()

func TestOutcome_Variants(t *testing.T) {
	assert.True(t, Pending("x").IsPending())
	assert.True(t, Satisfied(1).IsSatisfied())
	assert.True(t, Failed(errors.New("x")).IsFailed())

	assert.Equal(t, "pending: 2 of 3 present", Pendingf("%d of %d present", 2, 3).String())
	assert.Equal(t, "satisfied(true)", Satisfied(true).String())
}

func TestPresence(t *testing.T) {
	loc := query.CSS("#results")
	s := querytest.NewSession(nil).Script(loc, querytest.Absent(), querytest.Found(querytest.NewElement("results", "")))

	out := Presence(loc).Evaluate(ctx, s)
	assert.True(t, out.IsPending())
	assert.Contains(t, out.Note, "css=#results")

	out = Presence(loc).Evaluate(ctx, s)
	require.True(t, out.IsSatisfied())
	el, ok := out.Element()
	require.True(t, ok)
	assert.Equal(t, "results", el.ID())
	assert.Equal(t, "presence of css=#results", Presence(loc).String())
}

func TestPresence_PropagatesErrors(t *testing.T) {
	loc := query.CSS("#results")
	lost := trip.New(trip.SessionLost, "browser closed", nil)
	s := querytest.NewSession(nil).Script(loc, querytest.Fail(lost))

	out := Presence(loc).Evaluate(ctx, s)
	require.True(t, out.IsFailed())
	assert.Same(t, lost, out.Err)
}

func TestPresenceOfAll(t *testing.T) {
	loc := query.ClassName("row")
	s := querytest.NewSession(nil).Always(loc, querytest.NewElement("a", ""), querytest.NewElement("b", ""))

	out := PresenceOfAll(loc).Evaluate(ctx, s)
	els, ok := out.Elements()
	require.True(t, ok)
	assert.Len(t, els, 2)
}

func TestVisibility(t *testing.T) {
	loc := query.CSS(".toast")
	hidden := querytest.NewElement("t1", "").Hidden()
	shown := querytest.NewElement("t2", "")

	s := querytest.NewSession(nil).Script(loc, querytest.Found(hidden), querytest.Found(hidden, shown))

	out := Visibility(loc).Evaluate(ctx, s)
	assert.True(t, out.IsPending())
	assert.Contains(t, out.Note, "none visible")

	out = Visibility(loc).Evaluate(ctx, s)
	el, ok := out.Element()
	require.True(t, ok)
	assert.Equal(t, "t2", el.ID())
}

func TestInvisibility(t *testing.T) {
	loc := query.ID("spinner")
	spinner := querytest.NewElement("spinner", "")
	s := querytest.NewSession(nil).Always(loc, spinner)

	assert.True(t, Invisibility(loc).Evaluate(ctx, s).IsPending())

	s.Update(func() { spinner.Stale = true })
	assert.True(t, Invisibility(loc).Evaluate(ctx, s).IsSatisfied())

	empty := querytest.NewSession(nil)
	assert.True(t, Invisibility(loc).Evaluate(ctx, empty).IsSatisfied())
}

func TestClickable(t *testing.T) {
	loc := query.CSS("button")
	disabled := querytest.NewElement("b1", "Save").Disabled()
	hidden := querytest.NewElement("b2", "Save").Hidden()
	s := querytest.NewSession(nil).Always(loc, disabled, hidden)

	assert.True(t, Clickable(loc).Evaluate(ctx, s).IsPending())

	s.Update(func() { disabled.Enabled = true })
	out := Clickable(loc).Evaluate(ctx, s)
	el, ok := out.Element()
	require.True(t, ok)
	assert.Equal(t, "b1", el.ID())
}

func TestSelected(t *testing.T) {
	loc := query.Name("plan")
	free := querytest.NewElement("free", "Free")
	pro := querytest.NewElement("pro", "Pro")
	s := querytest.NewSession(nil).Always(loc, free, pro)

	out := Selected(loc).Evaluate(ctx, s)
	assert.True(t, out.IsPending())
	assert.Equal(t, "no element matching name=plan has selected=true", out.Note)

	s.Update(func() { pro.Selected = true })
	out = Selected(loc).Evaluate(ctx, s)
	el, ok := out.Element()
	require.True(t, ok)
	assert.Equal(t, "pro", el.ID())
	assert.Equal(t, "selection of name=plan", Selected(loc).String())
}

func TestSelectionState_Deselected(t *testing.T) {
	loc := query.ID("terms")
	box := querytest.NewElement("terms", "").Checked()
	s := querytest.NewSession(nil).Always(loc, box)

	assert.True(t, SelectionState(loc, false).Evaluate(ctx, s).IsPending())
	s.Update(func() { box.Selected = false })
	assert.True(t, SelectionState(loc, false).Evaluate(ctx, s).IsSatisfied())

	s.Update(func() { box.Stale = true })
	out := SelectionState(loc, false).Evaluate(ctx, s)
	require.True(t, out.IsFailed())
	assert.Equal(t, trip.StaleReference, trip.KindOf(out.Err))
}

func TestTextContains(t *testing.T) {
	loc := query.ID("status")
	status := querytest.NewElement("status", "Loading")
	s := querytest.NewSession(nil).Always(loc, status)

	out := TextContains(loc, "Done").Evaluate(ctx, s)
	assert.True(t, out.IsPending())
	assert.Equal(t, `text is "Loading"`, out.Note)

	s.Update(func() { status.Content = "Done in 3s" })
	assert.True(t, TextContains(loc, "Done").Evaluate(ctx, s).IsSatisfied())
}

func TestTextContains_AmbiguousLocator(t *testing.T) {
	loc := query.CSS("li")
	s := querytest.NewSession(nil).Always(loc, querytest.NewElement("a", "Done"), querytest.NewElement("b", "Done"))

	out := TextContains(loc, "Done").Evaluate(ctx, s)
	require.True(t, out.IsFailed())
	assert.Equal(t, trip.InvalidLocator, trip.KindOf(out.Err))
}

func TestTextContains_DuplicateHandlesAreNotAmbiguous(t *testing.T) {
	loc := query.CSS("li")
	el := querytest.NewElement("a", "Done")
	s := querytest.NewSession(nil).Always(loc, el, el)

	assert.True(t, TextContains(loc, "Done").Evaluate(ctx, s).IsSatisfied())
}

func TestCountAtLeast(t *testing.T) {
	loc := query.CSS(".item")
	a, b, c := querytest.NewElement("a", ""), querytest.NewElement("b", ""), querytest.NewElement("c", "")
	s := querytest.NewSession(nil).Script(loc,
		querytest.Absent(),
		querytest.Found(a),
		querytest.Found(a),
		querytest.Found(a, b, c),
	)

	cond := CountAtLeast(loc, 3)
	for i := 0; i < 3; i++ {
		assert.True(t, cond.Evaluate(ctx, s).IsPending(), "tick %d", i+1)
	}
	out := cond.Evaluate(ctx, s)
	els, ok := out.Elements()
	require.True(t, ok)
	assert.Len(t, els, 3)
}

func TestAttributeEquals(t *testing.T) {
	loc := query.CSS("input")
	plain := querytest.NewElement("i1", "")
	checked := querytest.NewElement("i2", "").WithAttr("aria-checked", "false")
	s := querytest.NewSession(nil).Always(loc, plain, checked)

	out := AttributeEquals(loc, "aria-checked", "true").Evaluate(ctx, s)
	assert.True(t, out.IsPending())
	assert.Equal(t, `aria-checked is "false"`, out.Note)

	s.Update(func() { checked.Attrs["aria-checked"] = "true" })
	out = AttributeEquals(loc, "aria-checked", "true").Evaluate(ctx, s)
	el, ok := out.Element()
	require.True(t, ok)
	assert.Equal(t, "i2", el.ID())
}

func TestAllOf_SameTick(t *testing.T) {
	first := query.ID("first")
	second := query.ID("second")
	el := querytest.NewElement("x", "")
	// first holds only on odd ticks, second only on even ticks: never together.
	s := querytest.NewSession(nil).
		Script(first, querytest.Found(el), querytest.Absent(), querytest.Found(el), querytest.Absent()).
		Script(second, querytest.Absent(), querytest.Found(el), querytest.Absent(), querytest.Found(el))

	cond := AllOf(Presence(first), Presence(second))
	for i := 0; i < 4; i++ {
		assert.False(t, cond.Evaluate(ctx, s).IsSatisfied(), "tick %d", i+1)
	}
}

func TestAllOf_PayloadsAndFailure(t *testing.T) {
	a := query.ID("a")
	b := query.ID("b")
	s := querytest.NewSession(nil).Always(a, querytest.NewElement("a", "")).Always(b, querytest.NewElement("b", ""))

	out := AllOf(Presence(a), Presence(b)).Evaluate(ctx, s)
	require.True(t, out.IsSatisfied())
	assert.Len(t, out.Value, 2)

	bad := query.Locator{Strategy: "bogus", Selector: "x"}
	out = AllOf(Presence(a), Presence(bad)).Evaluate(ctx, s)
	require.True(t, out.IsFailed())
	assert.Equal(t, trip.InvalidLocator, trip.KindOf(out.Err))
	assert.Equal(t, "all of (presence of id=a; presence of bogus=x)", AllOf(Presence(a), Presence(bad)).String())
}

func TestAnyOf(t *testing.T) {
	ok := query.ID("ok")
	missing := query.ID("missing")
	s := querytest.NewSession(nil).Always(ok, querytest.NewElement("ok", ""))

	out := AnyOf(Presence(missing), Presence(ok)).Evaluate(ctx, s)
	el, isEl := out.Element()
	require.True(t, isEl)
	assert.Equal(t, "ok", el.ID())

	assert.True(t, AnyOf(Presence(missing)).Evaluate(ctx, s).IsPending())

	bad := query.CSS("")
	out = AnyOf(Presence(missing), Presence(bad)).Evaluate(ctx, s)
	assert.True(t, out.IsFailed())
}

func TestDocumentConditions(t *testing.T) {
	s := querytest.NewSession(nil)
	s.SetDocument("Loading…", "https://example.test/login", "interactive")

	assert.True(t, TitleContains("Dashboard").Evaluate(ctx, s).IsPending())
	assert.True(t, URLContains("/login").Evaluate(ctx, s).IsSatisfied())
	assert.True(t, DocumentReady().Evaluate(ctx, s).IsPending())

	s.SetDocument("Dashboard", "https://example.test/home", "complete")
	assert.Equal(t, "Dashboard", TitleContains("Dash").Evaluate(ctx, s).Value)
	assert.True(t, DocumentReady().Evaluate(ctx, s).IsSatisfied())
}

type bareSession struct{ query.Session }

func TestDocumentConditions_RequireDocument(t *testing.T) {
	out := TitleContains("x").Evaluate(ctx, bareSession{})
	require.True(t, out.IsFailed())
	assert.Equal(t, trip.Other, trip.KindOf(out.Err))
}

func TestCustom(t *testing.T) {
	calls := 0
	cond := Custom("third time lucky", func(context.Context, query.Session) Outcome {
		calls++
		if calls < 3 {
			return Pending("not yet")
		}
		return Satisfied(calls)
	})
	assert.Equal(t, "third time lucky", cond.String())
	cond.Evaluate(ctx, nil)
	cond.Evaluate(ctx, nil)
	assert.Equal(t, 3, cond.Evaluate(ctx, nil).Value)
}
