package decision

import "fmt"

// NoOptionsError signals that no fresh quotes were available to choose from.
type NoOptionsError struct {
	ProductID int64
}

func (e NoOptionsError) Error() string {
	return fmt.Sprintf("no purchase options available for product %d", e.ProductID)
}

// ParseError signals that the oracle reply could not be coerced into a JSON
// decision object. Excerpt carries the head of the raw reply for diagnostics.
type ParseError struct {
	Excerpt string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("unparsable oracle reply: %q", e.Excerpt)
}

// ValidationError signals a structurally valid reply whose content violates
// the decision contract, for example a merchant id not present in the
// considered quotes.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "invalid oracle decision: " + e.Reason
}
