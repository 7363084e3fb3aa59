package oracle

import "fmt"

// Rubrics are the classification instructions sent with each screenshot.
// Each rubric enumerates its label set so parseClassification can trust
// the label field without per-rubric plumbing.

const (
	LabelLoggedIn  = "logged-in"
	LabelLoginPage = "login-page"

	LabelSearching      = "searching"
	LabelAnswerReturned = "answer-returned"
	LabelSearchFailed   = "failed"

	LabelContentLoaded  = "content-loaded"
	LabelContentMissing = "content-missing"

	LabelUnknown = "unknown"
)

// LoginStateRubric classifies whether a screenshot shows an authenticated
// application shell or a credential prompt. Visual evidence wins over any
// text in the page.
const LoginStateRubric = `You are looking at a screenshot of a web application.
Decide which state it shows:

- "logged-in": the main application UI is visible (navigation sidebar, dashboard widgets, user avatar or account menu, workspace content).
- "login-page": a sign-in form is visible (email or password fields, a sign-in button, a one-time code prompt).
- "unknown": the screenshot is blank, still loading, or shows an error page.

Judge only what is visible in the image. Ignore URLs or text that merely mentions logging in.`

// SearchStateRubric classifies the progress of an in-app search for the
// given query.
func SearchStateRubric(query string) string {
	return fmt.Sprintf(`You are looking at a screenshot of a search page after submitting the query: %q

Decide which state it shows:

- "answer-returned": a substantive answer or result set for the query is visible.
- "searching": a spinner, skeleton, partial text, or other in-progress indicator is visible and no complete answer yet.
- "failed": an error message is visible, or the page shows the query produced nothing.
- "unknown": the screenshot does not show a search surface at all.

A complete answer means readable result content, not just the echoed query.`, query)
}

// DocumentContentRubric classifies whether an opened document actually
// rendered its body.
const DocumentContentRubric = `You are looking at a screenshot of a document page inside a web application.
Decide which state it shows:

- "content-loaded": the document body rendered with real content (headings, paragraphs, tables or fields with values).
- "content-missing": the page frame is there but the body is empty, stuck on a loading indicator, or shows an error.
- "unknown": the screenshot does not show a document page.

An empty shell with only navigation visible is "content-missing", not "content-loaded".`
