package resource

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// LXI service types instruments announce over multicast DNS.
const (
	ServiceTypeLXI     = "_lxi._tcp"
	ServiceTypeSCPIRaw = "_scpi-raw._tcp"
	ServiceTypeHiSLIP  = "_hislip._tcp"

	// Domain is the mDNS browse domain.
	Domain = "local."

	// BrowseTimeout is the default time spent waiting for an announcement.
	BrowseTimeout = 3 * time.Second
)

// BrowseFunc matches zeroconf.Browse. Tests substitute their own.
type BrowseFunc func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

// MDNSConfig configures an MDNSProbe.
type MDNSConfig struct {
	// Services are the service types browsed. Default: LXI and raw SCPI.
	Services []string

	// Timeout bounds the browse. Default: BrowseTimeout.
	Timeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty means all interfaces.
	Interface string

	// Browse replaces zeroconf.Browse.
	Browse BrowseFunc
}

// DefaultMDNSConfig returns the default mDNS probe configuration.
func DefaultMDNSConfig() MDNSConfig {
	return MDNSConfig{
		Services: []string{ServiceTypeLXI, ServiceTypeSCPIRaw},
		Timeout:  BrowseTimeout,
	}
}

// MDNSProbe finds LAN instruments that announce themselves over mDNS. A
// resource matches when its host equals an announced host name, instance
// name or address.
type MDNSProbe struct {
	config MDNSConfig
}

// NewMDNSProbe creates an mDNS probe.
func NewMDNSProbe(config MDNSConfig) *MDNSProbe {
	if len(config.Services) == 0 {
		config.Services = []string{ServiceTypeLXI, ServiceTypeSCPIRaw}
	}
	if config.Timeout <= 0 {
		config.Timeout = BrowseTimeout
	}
	if config.Browse == nil {
		config.Browse = zeroconf.Browse
	}
	return &MDNSProbe{config: config}
}

// Probe implements Probe.
func (p *MDNSProbe) Probe(ctx context.Context, name Name) error {
	if !name.IsLAN() {
		return ErrNotApplicable
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	found := make(chan *zeroconf.ServiceEntry, 1)
	opts := p.browserOptions()

	for _, service := range p.config.Services {
		entries := make(chan *zeroconf.ServiceEntry)
		removed := make(chan *zeroconf.ServiceEntry)

		go func() {
			for {
				select {
				case entry, ok := <-entries:
					if !ok {
						return
					}
					if entryMatches(entry, name) {
						select {
						case found <- entry:
						default:
						}
					}
				case <-removed:
				case <-ctx.Done():
					return
				}
			}
		}()

		go func() {
			_ = p.config.Browse(ctx, service, Domain, entries, removed, opts...)
		}()
	}

	select {
	case <-found:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: no mDNS announcement for %s", ErrNotFound, name.Host)
	}
}

func (p *MDNSProbe) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if p.config.Interface != "" {
		iface, err := net.InterfaceByName(p.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

func entryMatches(entry *zeroconf.ServiceEntry, name Name) bool {
	if entry == nil {
		return false
	}
	host := strings.ToLower(strings.Trim(name.Host, "[]"))

	if strings.EqualFold(strings.TrimSuffix(entry.HostName, "."), host) {
		return true
	}
	if strings.EqualFold(strings.TrimSuffix(entry.HostName, "."), host+".local") {
		return true
	}
	if strings.EqualFold(entry.Instance, host) {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, a := range entry.AddrIPv4 {
		if a.Equal(ip) {
			return true
		}
	}
	for _, a := range entry.AddrIPv6 {
		if a.Equal(ip) {
			return true
		}
	}
	return false
}
