package discovery

import (
	"net"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Service constants.
const (
	ServiceType    = "_avrcontrol._tcp"
	Domain         = "local."
	BrowseTimeout  = 5 * time.Second
	TXTKeyModel    = "model"
	TXTKeyProtocol = "proto"
	ProtocolTelnet = "telnet"
)

// Receiver is a discovered device.
type Receiver struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
	Model     string
	TXT       map[string]string
}

// Address returns host:port using the first known address, falling back to
// the advertised host name.
func (r *Receiver) Address() string {
	host := strings.TrimSuffix(r.Host, ".")
	if len(r.Addresses) > 0 {
		host = r.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(r.Port))
}

// parseTXT turns "key=value" strings into a map. Keys without '=' map to "".
func parseTXT(records []string) map[string]string {
	txt := make(map[string]string, len(records))
	for _, s := range records {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[strings.ToLower(k)] = v
		}
	}
	return txt
}

// encodeTXT is the inverse of parseTXT, in a stable key order.
func encodeTXT(model string, extra map[string]string) []string {
	out := []string{TXTKeyModel + "=" + model, TXTKeyProtocol + "=" + ProtocolTelnet}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if k != TXTKeyModel && k != TXTKeyProtocol {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}

// newReceiver builds a Receiver from the fields of a service entry.
// It returns nil for entries that are not telnet control services.
func newReceiver(instance, host string, port int, ipv4, ipv6 []net.IP, text []string) *Receiver {
	txt := parseTXT(text)
	if p, ok := txt[TXTKeyProtocol]; ok && p != ProtocolTelnet {
		return nil
	}
	if port <= 0 {
		return nil
	}

	addrs := make([]string, 0, len(ipv4)+len(ipv6))
	for _, ip := range ipv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range ipv6 {
		addrs = append(addrs, ip.String())
	}

	return &Receiver{
		Instance:  instance,
		Host:      host,
		Port:      port,
		Addresses: addrs,
		Model:     txt[TXTKeyModel],
		TXT:       txt,
	}
}

func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a] = true
	}
	for _, a := range added {
		if !seen[a] {
			existing = append(existing, a)
			seen[a] = true
		}
	}
	return existing
}

func removeAddresses(addresses, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, a := range gone {
		drop[a] = true
	}
	out := addresses[:0]
	for _, a := range addresses {
		if !drop[a] {
			out = append(out, a)
		}
	}
	return out
}
