package network

import (
	"net"
)

var localhostIP = net.IPv4(127, 0, 0, 1)

// DialAddr turns a listen address into one a client on the same host can
// dial: an empty or unspecified host becomes the loopback address.
func DialAddr(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return listenAddr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = localhostIP.String()
	}
	return net.JoinHostPort(host, port)
}
