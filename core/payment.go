package core

// SchemeExact is the only payment scheme the gate understands: an exact-amount
// transfer authorization signed by the payer.
const SchemeExact = "exact"

// X402Version is the supported version of the payment protocol envelope.
const X402Version = 1

// PaymentPayload is the decoded x-payment header: a client's proof that a
// payment obligation has been authorized. It is ephemeral input, never
// persisted here.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// ExactPayload carries the payer's signature over the transfer authorization.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Authorization is the signed transfer authorization inside a payment proof.
// ValidAfter and ValidBefore are unix seconds encoded as decimal strings.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Asset       string `json:"asset"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// PaymentPolicy is the price a route demands: amount in the asset's smallest
// unit, the asset and network it must be paid in, and the receiving address.
type PaymentPolicy struct {
	Amount      string
	Asset       string
	Network     string
	PayTo       string
	Description string
	MaxTimeout  int
}

// PaymentRequirements is the machine-readable payment instruction returned
// with a 402 so a compliant client can retry with payment attached.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Asset             string `json:"asset"`
	PayTo             string `json:"payTo"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
}

// Requirements renders the policy as payment instructions for a resource.
func (p PaymentPolicy) Requirements(resource string) PaymentRequirements {
	timeout := p.MaxTimeout
	if timeout == 0 {
		timeout = 60
	}
	return PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           p.Network,
		MaxAmountRequired: p.Amount,
		Asset:             p.Asset,
		PayTo:             p.PayTo,
		Resource:          resource,
		Description:       p.Description,
		MaxTimeoutSeconds: timeout,
	}
}

// Settlement describes a settled payment, published to the record-keeping
// collaborator after a priced request is allowed through.
type Settlement struct {
	Payer   string `json:"payer"`
	PayTo   string `json:"pay_to"`
	Amount  string `json:"amount"`
	Asset   string `json:"asset"`
	Network string `json:"network"`
	Nonce   string `json:"nonce"`
	TxHash  string `json:"tx_hash,omitempty"`
}
