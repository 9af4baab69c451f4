// Package templates holds the HTML fragments returned to HTMX requests.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// ErrorAlert renders a dismissable error box with the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert alert-error" role="alert" data-code="%s">`+
				`<p class="alert-message">%s</p>`+
				`<p class="alert-action">%s</p>`+
				`<p class="alert-code">Code: %s</p>`+
				`</div>`,
			templ.EscapeString(code),
			templ.EscapeString(message),
			templ.EscapeString(action),
			templ.EscapeString(code),
		)
		return err
	})
}

// StaleNotice tells the user that held search results no longer match the
// loaded data.
func StaleNotice() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w,
			`<div class="alert alert-warning" role="status" data-stale="true">`+
				`<p class="alert-message">Search results are out of date.</p>`+
				`<p class="alert-action">The data changed since the search ran. Search again.</p>`+
				`</div>`)
		return err
	})
}

// Notice renders a short success message, e.g. after a delete.
func Notice(message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="alert alert-success" role="status">%s</div>`,
			templ.EscapeString(message))
		return err
	})
}
