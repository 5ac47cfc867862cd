// Copyright (C) 2024 The async-file-server Authors.
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

// Package netinfo implements the out-of-scope "network-discovery helper"
// spec.md §1 names as an external collaborator: it learns this peer's
// local and public IPv4 address so internal/metadata can report them in a
// ServerInfoResponse. It never opens inbound port mappings — STUN/NAT-PMP
// are used only to learn and report an address (SPEC_FULL §5/Non-goals).
package netinfo

import (
	"context"
	"fmt"
	"net"

	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"

	stun "github.com/ccding/go-stun/stun"
)

// Resolver is the thin interface the core depends on — deliberately the
// only surface point at which real network-discovery code enters the
// request-processing engine.
type Resolver interface {
	Resolve(ctx context.Context) (local, public net.IP, err error)
}

// DefaultResolver tries STUN first for the public address, falling back
// to asking the LAN gateway over NAT-PMP when STUN is blocked (common on
// restrictive corporate networks). The local address comes from the
// outbound-facing interface toward cidrHint, or the default gateway
// interface if cidrHint is empty.
type DefaultResolver struct {
	CIDRHint string
}

func (r *DefaultResolver) Resolve(ctx context.Context) (local, public net.IP, err error) {
	local, err = r.resolveLocal()
	if err != nil {
		return nil, nil, fmt.Errorf("netinfo: resolve local address: %w", err)
	}

	public, stunErr := resolveViaSTUN()
	if stunErr == nil {
		return local, public, nil
	}

	public, pmpErr := resolveViaNATPMP()
	if pmpErr == nil {
		return local, public, nil
	}

	return local, nil, fmt.Errorf("netinfo: stun failed (%v), nat-pmp failed (%v)", stunErr, pmpErr)
}

func (r *DefaultResolver) resolveLocal() (net.IP, error) {
	if r.CIDRHint != "" {
		if ip, err := localAddressInCIDR(r.CIDRHint); err == nil {
			return ip, nil
		}
	}
	return gateway.DiscoverInterface()
}

func localAddressInCIDR(cidr string) (net.IP, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if network.Contains(ipNet.IP) {
			return ipNet.IP, nil
		}
	}
	return nil, fmt.Errorf("netinfo: no local interface in %s", cidr)
}

func resolveViaSTUN() (net.IP, error) {
	client := stun.NewClient()
	_, host, err := client.Discover()
	if err != nil {
		return nil, fmt.Errorf("netinfo: stun discover: %w", err)
	}
	if host == nil {
		return nil, fmt.Errorf("netinfo: stun returned no mapped address")
	}
	ip := net.ParseIP(host.IP())
	if ip == nil {
		return nil, fmt.Errorf("netinfo: stun returned unparsable address %q", host.IP())
	}
	return ip, nil
}

func resolveViaNATPMP() (net.IP, error) {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("netinfo: discover gateway: %w", err)
	}
	client := natpmp.NewClient(gw)
	res, err := client.GetExternalAddress()
	if err != nil {
		return nil, fmt.Errorf("netinfo: nat-pmp external address: %w", err)
	}
	ip := net.IPv4(res.ExternalIPAddress[0], res.ExternalIPAddress[1], res.ExternalIPAddress[2], res.ExternalIPAddress[3])
	return ip, nil
}
