// Package billingtest provides a scriptable in-memory billing.Client.
package billingtest

import (
	"slices"
	"sync"

	"github.com/xraph/purchasekit/billing"
)

// FlowFunc decides the outcome the store reports for a launched flow.
type FlowFunc func(params billing.FlowParams) (billing.Result, []billing.Purchase)

// Client is a fake store. Callbacks are delivered on new goroutines, like
// the real store delivers them off the caller's thread.
type Client struct {
	mu sync.Mutex

	SetupResults []billing.Result // consumed in order, then OK
	Details      map[string]billing.ProductDetails
	Owned        map[billing.Kind][]billing.Purchase
	QueryResult  billing.Result
	LaunchResult billing.Result
	Flow         FlowFunc
	ConsumeCode  billing.ResponseCode
	AckCode      billing.ResponseCode

	// Hold, when non-nil, delays QueryPurchases callbacks until it is closed.
	Hold chan struct{}

	conn     billing.ConnectionListener
	listener func(billing.Result, []billing.Purchase)

	Connections   int
	Disconnects   int
	DetailQueries map[billing.Kind]int
	PurchaseCalls map[billing.Kind]int
	Launched      []billing.FlowParams
	Consumed      []string
	Acknowledged  []string
}

// New returns a Client whose store connects successfully.
func New() *Client {
	return &Client{
		Details:       make(map[string]billing.ProductDetails),
		Owned:         make(map[billing.Kind][]billing.Purchase),
		DetailQueries: make(map[billing.Kind]int),
		PurchaseCalls: make(map[billing.Kind]int),
	}
}

// AddProduct registers store details.
func (c *Client) AddProduct(d billing.ProductDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Details[d.SKU] = d
}

// SetQueryResult changes the result of later product and purchase queries.
func (c *Client) SetQueryResult(r billing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.QueryResult = r
}

// AddOwned adds a purchase owned by the store account.
func (c *Client) AddOwned(kind billing.Kind, p billing.Purchase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Owned[kind] = append(c.Owned[kind], p)
}

func (c *Client) StartConnection(l billing.ConnectionListener) {
	c.mu.Lock()
	c.conn = l
	c.Connections++
	r := billing.Result{Code: billing.OK}
	if len(c.SetupResults) > 0 {
		r, c.SetupResults = c.SetupResults[0], c.SetupResults[1:]
	}
	c.mu.Unlock()
	go l.OnSetupFinished(r)
}

func (c *Client) EndConnection() {
	c.mu.Lock()
	c.Disconnects++
	c.mu.Unlock()
}

// Disconnect simulates the store service dropping the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	l := c.conn
	c.mu.Unlock()
	if l != nil {
		l.OnServiceDisconnected()
	}
}

func (c *Client) SetPurchasesUpdatedListener(fn func(billing.Result, []billing.Purchase)) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// Deliver invokes the purchases-updated listener as the store would for an
// out-of-band purchase.
func (c *Client) Deliver(r billing.Result, purchases []billing.Purchase) {
	c.mu.Lock()
	fn := c.listener
	c.mu.Unlock()
	if fn != nil {
		fn(r, purchases)
	}
}

func (c *Client) QueryProductDetails(kind billing.Kind, skus []string, cb func(billing.Result, []billing.ProductDetails)) {
	c.mu.Lock()
	c.DetailQueries[kind]++
	var out []billing.ProductDetails
	for _, s := range skus {
		if d, ok := c.Details[s]; ok && (d.Kind == "" || d.Kind == kind) {
			out = append(out, d)
		}
	}
	r := c.QueryResult
	c.mu.Unlock()
	go cb(r, out)
}

func (c *Client) QueryPurchases(kind billing.Kind, cb func(billing.Result, []billing.Purchase)) {
	c.mu.Lock()
	c.PurchaseCalls[kind]++
	out := slices.Clone(c.Owned[kind])
	r, hold := c.QueryResult, c.Hold
	c.mu.Unlock()
	go func() {
		if hold != nil {
			<-hold
		}
		cb(r, out)
	}()
}

func (c *Client) LaunchBillingFlow(_ billing.Activity, params billing.FlowParams) billing.Result {
	c.mu.Lock()
	c.Launched = append(c.Launched, params)
	r, flow := c.LaunchResult, c.Flow
	c.mu.Unlock()
	if !r.OK() || flow == nil {
		return r
	}
	go func() {
		res, purchases := flow(params)
		c.Deliver(res, purchases)
	}()
	return r
}

func (c *Client) Consume(token string, cb func(billing.Result)) {
	c.mu.Lock()
	code := c.ConsumeCode
	if code == billing.OK {
		c.Consumed = append(c.Consumed, token)
		c.markAcknowledged(token, true)
	}
	c.mu.Unlock()
	go cb(billing.Result{Code: code})
}

func (c *Client) Acknowledge(token string, cb func(billing.Result)) {
	c.mu.Lock()
	code := c.AckCode
	if code == billing.OK {
		c.Acknowledged = append(c.Acknowledged, token)
		c.markAcknowledged(token, false)
	}
	c.mu.Unlock()
	go cb(billing.Result{Code: code})
}

func (c *Client) markAcknowledged(token string, consumed bool) {
	for kind, ps := range c.Owned {
		for i := range ps {
			if ps[i].Token != token {
				continue
			}
			if consumed {
				c.Owned[kind] = slices.Delete(ps, i, i+1)
				return
			}
			ps[i].Acknowledged = true
			return
		}
	}
}

// Snapshot returns copies of the call records.
func (c *Client) Snapshot() (consumed, acknowledged []string, launched int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.Consumed), slices.Clone(c.Acknowledged), len(c.Launched)
}

// PurchaseQueries returns how many owned-purchase queries were issued for kind.
func (c *Client) PurchaseQueries(kind billing.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PurchaseCalls[kind]
}

// ConnectionCount returns how many connection attempts were made.
func (c *Client) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Connections
}
