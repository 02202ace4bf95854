package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// ServiceType to browse (default: ServiceType).
	ServiceType string

	// Domain to browse (default: Domain).
	Domain string

	// Interface restricts browsing to one network interface.
	Interface string

	// Timeout bounds FindAll when the context has no deadline
	// (default: BrowseTimeout).
	Timeout time.Duration
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		ServiceType: ServiceType,
		Domain:      Domain,
		Timeout:     BrowseTimeout,
	}
}

// Browser searches for receivers.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a Browser.
func NewBrowser(config BrowserConfig) *Browser {
	d := DefaultBrowserConfig()
	if config.ServiceType == "" {
		config.ServiceType = d.ServiceType
	}
	if config.Domain == "" {
		config.Domain = d.Domain
	}
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	return &Browser{config: config}
}

// Browse streams receivers until ctx ends. Each instance is sent once, when
// first seen; later answers only add addresses to it.
func (b *Browser) Browse(ctx context.Context) (<-chan *Receiver, error) {
	opts, err := b.options()
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	out := make(chan *Receiver)

	go func() {
		defer close(out)
		a := newAggregator()
		gone := (<-chan *zeroconf.ServiceEntry)(removed)

		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				r := fromEntry(e)
				if r == nil {
					continue
				}
				if fresh := a.add(r); fresh {
					select {
					case out <- r:
					case <-ctx.Done():
						return
					}
				}
			case e, ok := <-gone:
				if !ok {
					gone = nil
					continue
				}
				if r := fromEntry(e); r != nil {
					a.remove(r)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, b.config.ServiceType, b.config.Domain, entries, removed, opts...)
	}()

	return out, nil
}

// FindAll browses for Timeout (or until ctx ends) and returns every receiver
// found, sorted by instance name.
func (b *Browser) FindAll(ctx context.Context) ([]*Receiver, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	ch, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	var found []*Receiver
	for r := range ch {
		found = append(found, r)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Instance < found[j].Instance })
	return found, nil
}

func (b *Browser) options() ([]zeroconf.ClientOption, error) {
	if b.config.Interface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(b.config.Interface)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", b.config.Interface, err)
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces([]net.Interface{*iface})}, nil
}

func fromEntry(e *zeroconf.ServiceEntry) *Receiver {
	if e == nil {
		return nil
	}
	return newReceiver(e.Instance, e.HostName, e.Port, e.AddrIPv4, e.AddrIPv6, e.Text)
}

// aggregator merges answers for the same instance.
type aggregator struct {
	byInstance map[string]*Receiver
}

func newAggregator() *aggregator {
	return &aggregator{byInstance: make(map[string]*Receiver)}
}

// add records r and reports whether the instance is new.
// Addresses of a known instance are merged into the stored Receiver.
func (a *aggregator) add(r *Receiver) bool {
	if existing, ok := a.byInstance[r.Instance]; ok {
		existing.Addresses = mergeAddresses(existing.Addresses, r.Addresses)
		return false
	}
	a.byInstance[r.Instance] = r
	return true
}

// remove drops r's addresses, and the instance once none remain.
func (a *aggregator) remove(r *Receiver) {
	existing, ok := a.byInstance[r.Instance]
	if !ok {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, r.Addresses)
	if len(existing.Addresses) == 0 {
		delete(a.byInstance, r.Instance)
	}
}
