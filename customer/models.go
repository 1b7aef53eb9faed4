// Package customer models the ledger customer an SDK session is logged in as.
package customer

type Customer struct {
	ID                string `json:"id"`
	ExternalRef       string `json:"externalRef"`
	ForwardingEnabled bool   `json:"forwardingEnabled"`
}
