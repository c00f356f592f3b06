package resource_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benchlink/benchlink-go/pkg/resource"
	"github.com/benchlink/benchlink-go/pkg/resource/mocks"
)

func TestAnyProbe(t *testing.T) {
	name := resource.MustParse("TCPIP::10.0.0.7::INSTR")

	t.Run("FirstSuccessWins", func(t *testing.T) {
		first := mocks.NewMockProbe(t)
		second := mocks.NewMockProbe(t)
		first.EXPECT().Probe(mock.Anything, name).Return(nil).Once()

		err := resource.AnyProbe{first, second}.Probe(context.Background(), name)
		assert.NoError(t, err)
	})

	t.Run("FallsThroughFailures", func(t *testing.T) {
		first := mocks.NewMockProbe(t)
		second := mocks.NewMockProbe(t)
		first.EXPECT().Probe(mock.Anything, name).Return(errors.New("refused")).Once()
		second.EXPECT().Probe(mock.Anything, name).Return(nil).Once()

		err := resource.AnyProbe{first, second}.Probe(context.Background(), name)
		assert.NoError(t, err)
	})

	t.Run("AllFail", func(t *testing.T) {
		first := mocks.NewMockProbe(t)
		first.EXPECT().Probe(mock.Anything, name).Return(errors.New("refused")).Once()

		err := resource.AnyProbe{first}.Probe(context.Background(), name)
		assert.ErrorIs(t, err, resource.ErrNotFound)
		assert.Contains(t, err.Error(), "refused")
	})

	t.Run("NoApplicableProbe", func(t *testing.T) {
		err := resource.AnyProbe{&resource.DialProbe{}}.Probe(context.Background(), resource.MustParse("GPIB0::5::INSTR"))
		assert.ErrorIs(t, err, resource.ErrNotFound)
	})
}

func TestDialProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	p := &resource.DialProbe{Timeout: time.Second}

	t.Run("Reachable", func(t *testing.T) {
		name := resource.Name{Interface: resource.InterfaceTCPIP, Host: "127.0.0.1", Port: port, Class: resource.ClassSocket}
		assert.NoError(t, p.Probe(context.Background(), name))
	})

	t.Run("Unreachable", func(t *testing.T) {
		ln2, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		closedPort := ln2.Addr().(*net.TCPAddr).Port
		ln2.Close()

		name := resource.Name{Interface: resource.InterfaceTCPIP, Host: "127.0.0.1", Port: closedPort, Class: resource.ClassSocket}
		assert.ErrorIs(t, p.Probe(context.Background(), name), resource.ErrNotFound)
	})

	t.Run("NotLAN", func(t *testing.T) {
		err := p.Probe(context.Background(), resource.MustParse("USB::1::2::S::INSTR"))
		assert.ErrorIs(t, err, resource.ErrNotApplicable)
	})
}

func TestMDNSProbe(t *testing.T) {
	announce := func(host string, addr net.IP) resource.BrowseFunc {
		return func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, _ ...zeroconf.ClientOption) error {
			if service != resource.ServiceTypeLXI {
				<-ctx.Done()
				return nil
			}
			entry := &zeroconf.ServiceEntry{ServiceRecord: zeroconf.ServiceRecord{Instance: "Keithley 2450", Service: service, Domain: domain}}
			entry.HostName = host
			entry.Port = 5025
			entry.AddrIPv4 = []net.IP{addr}
			select {
			case entries <- entry:
			case <-ctx.Done():
			}
			<-ctx.Done()
			return nil
		}
	}

	cfg := resource.DefaultMDNSConfig()
	cfg.Timeout = 200 * time.Millisecond
	cfg.Browse = announce("k2450.local.", net.ParseIP("192.168.1.50"))
	p := resource.NewMDNSProbe(cfg)

	t.Run("MatchByHostName", func(t *testing.T) {
		assert.NoError(t, p.Probe(context.Background(), resource.MustParse("TCPIP::k2450.local::INSTR")))
	})

	t.Run("MatchByShortHostName", func(t *testing.T) {
		assert.NoError(t, p.Probe(context.Background(), resource.MustParse("TCPIP::k2450::INSTR")))
	})

	t.Run("MatchByAddress", func(t *testing.T) {
		assert.NoError(t, p.Probe(context.Background(), resource.MustParse("TCPIP::192.168.1.50::INSTR")))
	})

	t.Run("NoMatchTimesOut", func(t *testing.T) {
		start := time.Now()
		err := p.Probe(context.Background(), resource.MustParse("TCPIP::10.9.9.9::INSTR"))
		assert.ErrorIs(t, err, resource.ErrNotFound)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestUSBProbe(t *testing.T) {
	p := &resource.USBProbe{
		Enumerate: func(_ context.Context, vid, pid uint16) ([]resource.USBDevice, error) {
			return []resource.USBDevice{
				{VendorID: 0x05E6, ProductID: 0x2450, Serial: "04412345"},
			}, nil
		},
	}

	t.Run("Match", func(t *testing.T) {
		assert.NoError(t, p.Probe(context.Background(), resource.MustParse("USB0::0x05E6::0x2450::04412345::INSTR")))
	})

	t.Run("WrongSerial", func(t *testing.T) {
		err := p.Probe(context.Background(), resource.MustParse("USB0::0x05E6::0x2450::99999999::INSTR"))
		assert.ErrorIs(t, err, resource.ErrNotFound)
	})

	t.Run("EnumerationFails", func(t *testing.T) {
		failing := &resource.USBProbe{
			Enumerate: func(context.Context, uint16, uint16) ([]resource.USBDevice, error) {
				return nil, errors.New("libusb unavailable")
			},
		}
		err := failing.Probe(context.Background(), resource.MustParse("USB0::0x05E6::0x2450::04412345::INSTR"))
		assert.ErrorIs(t, err, resource.ErrNotFound)
	})
}
