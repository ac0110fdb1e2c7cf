package checkout

import "fmt"

// StepError reports a checkout step that failed on its primary selector and
// every fallback.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return fmt.Sprintf("checkout step %q failed: %v", e.Step, e.Err)
}

func (e StepError) Unwrap() error {
	return e.Err
}

// ConfirmationError reports a checkout that ran all steps but never showed an
// order confirmation. The order must not be treated as placed.
type ConfirmationError struct {
	Attempts int
}

func (e ConfirmationError) Error() string {
	return fmt.Sprintf("no order confirmation observed after %d attempts", e.Attempts)
}

// PaymentError reports a rejected or failed charge. Raw carries the provider
// reply for the audit trail.
type PaymentError struct {
	Status string
	Raw    []byte
	Err    error
}

func (e PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment failed: %v", e.Err)
	}
	return fmt.Sprintf("payment rejected with status %q", e.Status)
}

func (e PaymentError) Unwrap() error {
	return e.Err
}
