package corekv

import (
	"context"
	"net"
)

// lookupHost resolves host to zero or more IPv4 addresses, applying the
// configured IP remap table (§4.5). A remapped address substitutes the
// resolved IP before the TCPAddr is built, so node dialing always uses the
// operator-visible address.
func (c *Cluster) lookupHost(ctx context.Context, host string, port int) ([]*net.TCPAddr, error) {
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, newError(Unsupported, "resolve %s: %v", host, err)
	}
	if len(ips) == 0 {
		return nil, newError(Unsupported, "no addresses for %s", host)
	}

	out := make([]*net.TCPAddr, 0, len(ips))
	for _, ip := range ips {
		addr := ip.String()
		if c.policy.IPMap != nil {
			if alt, ok := c.policy.IPMap[addr]; ok {
				addr = alt
			}
		}
		resolved := net.ParseIP(addr)
		if resolved == nil {
			continue
		}
		out = append(out, &net.TCPAddr{IP: resolved, Port: port})
	}
	if len(out) == 0 {
		return nil, newError(Unsupported, "no usable addresses for %s", host)
	}
	return out, nil
}
