// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"fmt"
	"net"
	"net/http"

	"github.com/emitter-io/address"
)

var loopbackBlocks = []*net.IPNet{
	parseCIDR("0.0.0.0/8"),   // RFC 1918 IPv4 loopback address
	parseCIDR("127.0.0.0/8"), // RFC 1122 IPv4 loopback address
	parseCIDR("::1/128"),     // RFC 1884 IPv6 loopback address
}

func parseCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(fmt.Sprintf("Bad CIDR %s: %s", s, err))
	}
	return block
}

// isLocalIP 回环地址或本机的私有地址
func isLocalIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, localhost := range loopbackBlocks {
		if localhost.Contains(ip) {
			return true
		}
	}
	privs, err := address.GetPrivate()
	if err != nil {
		return false
	}
	for _, priv := range privs {
		if priv.IP.Equal(ip) {
			return true
		}
	}
	return false
}

// remoteIP http.Request.RemoteAddr 的 IP 部分
func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// localInterceptor 只允许本机访问
func (s *Service) localInterceptor(w http.ResponseWriter, r *http.Request) bool {
	if !s.localOnly || isLocalIP(remoteIP(r)) {
		return true
	}
	s.logger.Warnf("api request from %s rejected", r.RemoteAddr)
	http.Error(w, "local access only", http.StatusForbidden)
	return false
}
