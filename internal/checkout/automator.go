// Package checkout drives a scripted browser through a merchant's purchase
// flow. Success is only ever declared on an observed confirmation element;
// anything less fails the attempt and dumps diagnostics.
package checkout

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"purchase-agent/config"
	"purchase-agent/internal/browser"
	"purchase-agent/internal/models"
	"purchase-agent/internal/util"

	"go.uber.org/zap"
)

// confirmationAttempts is how many times the confirmation element is polled,
// with a page refresh between attempts.
const confirmationAttempts = 2

// Automator runs checkout flows against merchant storefronts.
type Automator struct {
	factory browser.Factory
	cfg     config.CheckoutConfig
	logger  *zap.Logger
}

// NewAutomator creates a checkout automator.
func NewAutomator(factory browser.Factory, cfg config.CheckoutConfig) *Automator {
	return &Automator{
		factory: factory,
		cfg:     cfg,
		logger:  util.NamedLogger("checkout"),
	}
}

// Purchase executes the full checkout for an order on the quoted merchant.
// It returns nil only after observing the order confirmation element. The
// browser session is always released, on every path.
func (a *Automator) Purchase(ctx context.Context, site *models.MerchantSite, ord *models.PurchaseOrder, quote *models.PriceQuote) error {
	ctx, span := util.StartSpan(ctx, "Automator.Purchase")
	defer span.End()

	if quote.ProductURL == "" {
		return StepError{Step: "open_product", Err: fmt.Errorf("quote has no product URL")}
	}

	session, err := a.factory.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.logger.Warn("failed to close browser session", zap.Error(err))
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)
	err = session.Navigate(navCtx, quote.ProductURL)
	cancel()
	if err != nil {
		util.CheckoutStepsTotal.WithLabelValues("open_product", "error").Inc()
		return StepError{Step: "open_product", Err: err}
	}
	util.CheckoutStepsTotal.WithLabelValues("open_product", "success").Inc()

	for _, st := range stepsFor(site, ord, a.cfg) {
		if err := a.runStep(ctx, session, ord.ID, st); err != nil {
			return err
		}
	}

	if err := a.awaitConfirmation(ctx, session, ord.ID); err != nil {
		return err
	}

	a.logger.Info("checkout confirmed",
		zap.Int64("order_id", ord.ID),
		zap.String("merchant", site.Name))
	return nil
}

// runStep tries the step's selectors in order until one succeeds. Fallback
// hits are counted separately so selector rot shows up in metrics before it
// breaks checkouts.
func (a *Automator) runStep(ctx context.Context, d browser.Driver, orderID int64, st step) error {
	var lastErr error
	for i, selector := range st.selectors {
		stepCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)
		err := st.perform(stepCtx, d, selector)
		cancel()
		if err == nil {
			if i > 0 {
				util.CheckoutFallbacksTotal.WithLabelValues(st.name).Inc()
				a.logger.Debug("checkout step used fallback selector",
					zap.String("step", st.name),
					zap.String("selector", selector))
			}
			util.CheckoutStepsTotal.WithLabelValues(st.name, "success").Inc()
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	if st.optional {
		util.CheckoutStepsTotal.WithLabelValues(st.name, "skipped").Inc()
		a.logger.Debug("optional checkout step skipped",
			zap.String("step", st.name),
			zap.Error(lastErr))
		return nil
	}

	util.CheckoutStepsTotal.WithLabelValues(st.name, "error").Inc()
	a.saveDiagnostics(ctx, d, orderID, st.name)
	return StepError{Step: st.name, Err: lastErr}
}

// awaitConfirmation polls for the confirmation element, refreshing the page
// between attempts. A placed order without a visible confirmation still
// counts as failure here, which keeps the pipeline from marking unverified
// purchases complete.
func (a *Automator) awaitConfirmation(ctx context.Context, d browser.Driver, orderID int64) error {
	for attempt := 1; attempt <= confirmationAttempts; attempt++ {
		waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ConfirmTimeout)
		err := d.WaitVisible(waitCtx, confirmationSelectors)
		cancel()
		if err == nil {
			util.CheckoutStepsTotal.WithLabelValues("confirmation", "success").Inc()
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < confirmationAttempts {
			a.logger.Warn("confirmation not visible, refreshing",
				zap.Int64("order_id", orderID),
				zap.Int("attempt", attempt))
			reloadCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)
			_ = d.Reload(reloadCtx)
			cancel()
		}
	}

	util.CheckoutStepsTotal.WithLabelValues("confirmation", "error").Inc()
	a.saveDiagnostics(ctx, d, orderID, "confirmation")
	return ConfirmationError{Attempts: confirmationAttempts}
}

// saveDiagnostics dumps the page source and a screenshot for a failed step.
// Best effort; diagnostics failures never mask the original error.
func (a *Automator) saveDiagnostics(ctx context.Context, d browser.Driver, orderID int64, stepName string) {
	if a.cfg.DiagnosticsDir == "" {
		return
	}
	if err := os.MkdirAll(a.cfg.DiagnosticsDir, 0o755); err != nil {
		a.logger.Warn("failed to create diagnostics dir", zap.Error(err))
		return
	}

	stamp := time.Now().Format("20060102-150405")
	base := fmt.Sprintf("order-%d-%s-%s", orderID, stepName, stamp)

	diagCtx, cancel := context.WithTimeout(ctx, a.cfg.StepTimeout)
	defer cancel()

	if html, err := d.PageSource(diagCtx); err == nil {
		path := filepath.Join(a.cfg.DiagnosticsDir, base+".html")
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			a.logger.Warn("failed to write page source", zap.Error(err))
		}
	} else {
		a.logger.Warn("failed to capture page source", zap.Error(err))
	}

	if png, err := d.Screenshot(diagCtx); err == nil {
		path := filepath.Join(a.cfg.DiagnosticsDir, base+".png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			a.logger.Warn("failed to write screenshot", zap.Error(err))
		}
	} else {
		a.logger.Warn("failed to capture screenshot", zap.Error(err))
	}

	a.logger.Info("checkout diagnostics saved",
		zap.Int64("order_id", orderID),
		zap.String("step", stepName),
		zap.String("dir", a.cfg.DiagnosticsDir))
}
