package pagesource

// Proxy forwards every call to a swappable target, letting a single
// reader surface switch between the durable base source and an active
// transaction's shadow without callers holding a stale reference.
type Proxy struct {
	target PageSource
}

// NewProxy returns a Proxy initially pointing at target.
func NewProxy(target PageSource) *Proxy {
	return &Proxy{target: target}
}

// SwapTo redirects the proxy to a new target, returning the previous one.
func (p *Proxy) SwapTo(target PageSource) PageSource {
	prev := p.target
	p.target = target
	return prev
}

// Target returns the proxy's current target.
func (p *Proxy) Target() PageSource { return p.target }

func (p *Proxy) PageCount() uint32           { return p.target.PageCount() }
func (p *Proxy) PageSize() int               { return p.target.PageSize() }
func (p *Proxy) GetPage(n uint32) ([]byte, error) { return p.target.GetPage(n) }
func (p *Proxy) ReadPage(n uint32, into []byte) error {
	return p.target.ReadPage(n, into)
}
func (p *Proxy) Invalidate(n uint32) { p.target.Invalidate(n) }

func (p *Proxy) WritePage(n uint32, bytes []byte) error {
	w, ok := p.target.(Writable)
	if !ok {
		return ErrReadOnly
	}
	return w.WritePage(n, bytes)
}

func (p *Proxy) Flush() error {
	w, ok := p.target.(Writable)
	if !ok {
		return ErrReadOnly
	}
	return w.Flush()
}
