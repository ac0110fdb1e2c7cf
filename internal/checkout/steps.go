package checkout

import (
	"context"
	"fmt"

	"purchase-agent/config"
	"purchase-agent/internal/browser"
	"purchase-agent/internal/models"
)

// confirmationSelectors matches the order confirmation block across the
// supported storefront themes.
const confirmationSelectors = ".order-confirmation, .confirmation, [class*='confirm']"

// step is one checkout action with ordered fallback selectors. perform runs
// against one selector at a time; the automator walks the fallbacks until one
// succeeds.
type step struct {
	name      string
	selectors []string
	perform   func(ctx context.Context, d browser.Driver, selector string) error
	// optional steps are skipped when no selector matches, for storefronts
	// that omit the element entirely (already logged in, no terms box).
	optional bool
}

// clickEnabled waits for the selector, verifies the element is not disabled
// and clicks it. Clicking a disabled submit silently does nothing, so that
// case must fail the attempt instead.
func clickEnabled(ctx context.Context, d browser.Driver, selector string) error {
	if err := d.WaitVisible(ctx, selector); err != nil {
		return err
	}
	enabled, err := d.IsEnabled(ctx, selector)
	if err != nil {
		return err
	}
	if !enabled {
		return fmt.Errorf("element %q is disabled", selector)
	}
	return d.Click(ctx, selector)
}

func clickStep(name string, optional bool, selectors ...string) step {
	return step{name: name, selectors: selectors, perform: clickEnabled, optional: optional}
}

func typeStep(name, text string, selectors ...string) step {
	return step{
		name:      name,
		selectors: selectors,
		perform: func(ctx context.Context, d browser.Driver, selector string) error {
			if err := d.WaitVisible(ctx, selector); err != nil {
				return err
			}
			return d.Type(ctx, selector, text)
		},
	}
}

// stepsFor builds the checkout sequence for a merchant. Both supported
// storefronts run PrestaShop-style one-page checkouts, so the sequences share
// most selectors with per-site primaries.
func stepsFor(site *models.MerchantSite, order *models.PurchaseOrder, cfg config.CheckoutConfig) []step {
	switch site.Slug {
	case "megapc":
		return megapcSteps(order, cfg)
	default:
		return tunisianetSteps(order, cfg)
	}
}

func tunisianetSteps(order *models.PurchaseOrder, cfg config.CheckoutConfig) []step {
	steps := []step{
		clickStep("add_to_cart", false,
			"button[data-button-action='add-to-cart']",
			".add-to-cart",
			"#add_to_cart button"),
		clickStep("proceed_to_checkout", false,
			"#blockcart-modal .cart-content-btn a.btn-primary",
			"a[href*='controller=order']",
			".cart-detailed-actions a.btn-primary"),
	}

	if cfg.LoginEmail != "" {
		steps = append(steps,
			typeStep("login_email", cfg.LoginEmail,
				"#login-form input[name='email']",
				"input[name='email']"),
			typeStep("login_password", cfg.LoginPassword,
				"#login-form input[name='password']",
				"input[name='password']"),
			clickStep("login_submit", false,
				"#login-form button[type='submit']",
				"#submit-login"),
		)
	}

	steps = append(steps,
		typeStep("shipping_address", order.ShippingAddress,
			"input[name='address1']",
			"#field-address1"),
		typeStep("contact_phone", order.ContactPhone,
			"input[name='phone']",
			"#field-phone"),
		clickStep("confirm_address", false,
			"button[name='confirm-addresses']",
			".js-address-form button[type='submit']"),
		clickStep("confirm_delivery", false,
			"button[name='confirmDeliveryOption']",
			"#js-delivery button[type='submit']"),
		clickStep("select_cash_on_delivery", false,
			"input[data-module-name*='cashondelivery']",
			"input[id^='payment-option']"),
		clickStep("accept_terms", true,
			"input[name='conditions_to_approve[terms-and-conditions]']",
			"#conditions_to_approve input[type='checkbox']"),
		clickStep("place_order", false,
			"#payment-confirmation button[type='submit']",
			"#payment-confirmation button",
			"button.btn-primary.center-block"),
	)
	return steps
}

func megapcSteps(order *models.PurchaseOrder, cfg config.CheckoutConfig) []step {
	steps := []step{
		clickStep("add_to_cart", false,
			".add-to-cart-button",
			"button[data-button-action='add-to-cart']",
			".add-to-cart"),
		clickStep("proceed_to_checkout", false,
			".checkout-button",
			"a[href*='checkout']",
			".cart-detailed-actions a.btn-primary"),
	}

	if cfg.LoginEmail != "" {
		steps = append(steps,
			typeStep("login_email", cfg.LoginEmail, "input[name='email']"),
			typeStep("login_password", cfg.LoginPassword, "input[name='password']"),
			clickStep("login_submit", false,
				"button[type='submit'].login",
				"form button[type='submit']"),
		)
	}

	steps = append(steps,
		typeStep("shipping_address", order.ShippingAddress,
			"input[name='address1']",
			"textarea[name='address']"),
		typeStep("contact_phone", order.ContactPhone,
			"input[name='phone']"),
		clickStep("confirm_address", false,
			"button[name='confirm-addresses']",
			".address-form button[type='submit']"),
		clickStep("confirm_delivery", false,
			"button[name='confirmDeliveryOption']",
			".delivery-options button[type='submit']"),
		clickStep("select_cash_on_delivery", false,
			"input[data-module-name*='cashondelivery']",
			"input[id^='payment-option']"),
		clickStep("accept_terms", true,
			"input[name='conditions_to_approve[terms-and-conditions]']",
			"input[type='checkbox'][name*='terms']"),
		clickStep("place_order", false,
			".place-order-button",
			"#payment-confirmation button",
			"button[type='submit'].confirm-order"),
	)
	return steps
}
