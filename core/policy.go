package core

// PolicyKind selects which gate guards a route.
type PolicyKind int

const (
	// PolicyPublic routes pass only through CORS, size and rate limiting.
	PolicyPublic PolicyKind = iota

	// PolicyWalletAuth routes require a verified wallet signature or a
	// valid access token.
	PolicyWalletAuth

	// PolicyPaymentRequired routes require a valid payment proof matching
	// the route's price.
	PolicyPaymentRequired

	// PolicyAdminOnly routes require the operator shared secret.
	PolicyAdminOnly
)

// RoutePolicy binds a route to its gate. Price is set only for
// PolicyPaymentRequired. The wallet and payment gates are pluggable
// alternatives at the same pipeline position: switching a route between them
// is a policy declaration, not a code change.
type RoutePolicy struct {
	Kind  PolicyKind
	Price *PaymentPolicy
}

// Public declares an ungated route.
func Public() RoutePolicy { return RoutePolicy{Kind: PolicyPublic} }

// WalletAuth declares a wallet-signature gated route.
func WalletAuth() RoutePolicy { return RoutePolicy{Kind: PolicyWalletAuth} }

// PaymentRequired declares a priced route.
func PaymentRequired(price PaymentPolicy) RoutePolicy {
	return RoutePolicy{Kind: PolicyPaymentRequired, Price: &price}
}

// AdminOnly declares an operator route.
func AdminOnly() RoutePolicy { return RoutePolicy{Kind: PolicyAdminOnly} }
