// Package focuspuller keeps automation code in step with a remote system whose
// state changes asynchronously, such as a browser page or a terminal program.
//
// A focus puller keeps a moving subject sharp while the camera rolls. In the
// same way, the Engine polls a condition against a query.Session until it holds,
// fails for a non-transient reason, or the deadline passes.
//
// Basic usage:
//
//	engine := focuspuller.NewEngine(session)
//
//	res, err := engine.Await(ctx,
//		condition.Visibility(query.CSS("#results")),
//		focuspuller.Within(5*time.Second).WithMessage("results never rendered"))
//	if err != nil {
//		return err
//	}
//	el, _ := res.Outcome.Element()
//
// Errors from Await are one of:
//   - *trip.TimeoutExceeded (errors.Is(err, trip.ErrTimeout)) once the timeout passes
//   - *trip.Cancelled (errors.Is(err, trip.ErrCancelled)) when ctx ends the wait
//   - the condition's own error, unmodified, when its trip.Kind is not ignored
//   - an error wrapping ErrInvalidSpec for a malformed WaitSpec
//
// Page-level helpers built on the engine live in package page; the drivers in
// the operators directory implement query.Session for Bubble Tea programs,
// Playwright and chromedp.
package focuspuller
