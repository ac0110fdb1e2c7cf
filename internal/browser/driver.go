// Package browser abstracts the scripted browser used for checkout
// automation. Checkout logic talks to the Driver interface; production wires
// the chromedp implementation, tests substitute fakes.
package browser

import "context"

// Driver is one live browser session. Selector arguments are CSS selectors;
// comma-separated selector groups match any of their members. Deadlines on
// ctx bound each operation.
type Driver interface {
	// Navigate loads the given URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// Type clears the matched input and types the text into it.
	Type(ctx context.Context, selector, text string) error
	// IsEnabled reports whether the selector matches an element that is
	// present and not disabled.
	IsEnabled(ctx context.Context, selector string) (bool, error)
	// Reload refreshes the current page.
	Reload(ctx context.Context) error
	// PageSource returns the current DOM serialized as HTML.
	PageSource(ctx context.Context) (string, error)
	// Screenshot captures the visible viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the session and its browser resources.
	Close() error
}

// Factory opens browser sessions. Callers own closing each session on every
// path, success or failure.
type Factory interface {
	NewSession(ctx context.Context) (Driver, error)
}
