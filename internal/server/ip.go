package server

import (
	"net"
	"net/http"
	"strings"
)

// ------------------------------------------------------------
// IP Utility Functions
//
// 수집 서버는 ALB / CloudFront / nginx 뒤에 배치되므로
// RemoteAddr 만으로는 로그를 보낸 실제 클라이언트를 알 수 없다.
// 추출한 IP 는 레코드의 client_ip 필드로 붙는다.
// ------------------------------------------------------------

// isPublicIP 는 private / loopback / link-local 이 아닌 주소만 true.
func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		return false
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return false
	}
	return true
}

func safeParseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// clientIP
//
// 우선순위:
//  1. X-Forwarded-For → 첫 번째 public IP
//  2. CloudFront-Viewer-Address → 포트 제거 후 IP
//  3. X-Real-IP (nginx)
//  4. RemoteAddr
//
// 사내망에서 들어오는 요청은 public IP 가 없으므로,
// 4단계에서는 private 주소라도 그대로 반환한다.
func clientIP(r *http.Request) string {

	// 1) X-Forwarded-For (ALB), 예: "203.0.113.1, 10.0.1.24"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := safeParseIP(part); isPublicIP(ip) {
				return ip.String()
			}
		}
	}

	// 2) CloudFront-Viewer-Address, 예: "203.0.113.55:44321" / "2404:6800:4004::200e:44321"
	if cf := r.Header.Get("CloudFront-Viewer-Address"); cf != "" {
		host := cf
		// 마지막 ":" 기준으로 포트 제거 (IPv6 대응)
		if i := strings.LastIndex(cf, ":"); i != -1 {
			host = cf[:i]
		}
		if ip := safeParseIP(host); isPublicIP(ip) {
			return ip.String()
		}
	}

	// 3) X-Real-IP
	if ip := safeParseIP(r.Header.Get("X-Real-IP")); isPublicIP(ip) {
		return ip.String()
	}

	// 4) RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := safeParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
