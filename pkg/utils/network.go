package utils

import (
	"net"
	"strings"
)

// GetLocalIP 获取本机第一个非回环的IPv4地址，获取失败时返回localhost
func GetLocalIP() string {
	loop := "localhost"
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return loop
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return loop
}

// HostOfURL 从scheme://host:port形式的URL中解析出host部分
func HostOfURL(url string) string {
	if url == "" {
		return ""
	}

	rest := url
	if idx := strings.Index(rest, "://"); idx != -1 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexAny(rest, ":/"); idx != -1 {
		rest = rest[:idx]
	}
	return rest
}

// ReplaceLoopbackHost 将URL中的localhost/127.0.0.1替换为指定的本机IP
func ReplaceLoopbackHost(url, localIP string) string {
	if url == "" {
		return url
	}
	if strings.Contains(url, "localhost") || strings.Contains(url, "127.0.0.1") {
		url = strings.ReplaceAll(url, "localhost", localIP)
		url = strings.ReplaceAll(url, "127.0.0.1", localIP)
	}
	return url
}
