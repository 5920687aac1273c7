package discovery

import (
	"net"
)

// LocalIP returns the IPv4 address of the interface that routes to the LAN.
// The UDP "dial" sends nothing; it only asks the kernel for a route.
func LocalIP() string {
	if conn, err := net.Dial("udp4", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && !addr.IP.IsLoopback() {
			return addr.IP.String()
		}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipnet.IP.To4(); ip != nil && !ip.IsLoopback() {
				return ip.String()
			}
		}
	}
	return "127.0.0.1"
}

// SubnetBroadcast returns the directed broadcast address of the interface
// holding ip, or 255.255.255.255 when it cannot be determined.
func SubnetBroadcast(ip string) net.IP {
	target := net.ParseIP(ip).To4()
	if target == nil {
		return net.IPv4bcast
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return net.IPv4bcast
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || !ipnet.IP.Equal(target) {
			continue
		}
		mask := ipnet.Mask
		if len(mask) == net.IPv6len {
			mask = mask[12:]
		}
		if len(mask) != net.IPv4len {
			break
		}
		bcast := make(net.IP, net.IPv4len)
		for i := range bcast {
			bcast[i] = target[i] | ^mask[i]
		}
		return bcast
	}
	return net.IPv4bcast
}
