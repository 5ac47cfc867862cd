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

package netinfo

import "testing"

// TestLocalAddressInCIDRFindsLoopback exercises the CIDR-hint matching
// path without touching the network: every test environment has a
// loopback interface in 127.0.0.0/8.
func TestLocalAddressInCIDRFindsLoopback(t *testing.T) {
	ip, err := localAddressInCIDR("127.0.0.0/8")
	if err != nil {
		t.Fatalf("localAddressInCIDR: %v", err)
	}
	if !ip.IsLoopback() {
		t.Fatalf("expected a loopback address, got %v", ip)
	}
}

func TestLocalAddressInCIDRNoMatch(t *testing.T) {
	if _, err := localAddressInCIDR("203.0.113.0/24"); err == nil {
		t.Fatal("expected an error when no interface is in the hinted CIDR")
	}
}

func TestLocalAddressInCIDRInvalidCIDR(t *testing.T) {
	if _, err := localAddressInCIDR("not-a-cidr"); err == nil {
		t.Fatal("expected an error for an invalid CIDR string")
	}
}
