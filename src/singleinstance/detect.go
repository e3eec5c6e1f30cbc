package singleinstance

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"
)

const (
	probeTimeout   = 300 * time.Millisecond
	connectTimeout = 2 * time.Second
)

// DetectResidentPort scans the port range and returns (port, true) if a resident responds to PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	port, _, ok := findResident(Ports(), boundedTimeout(ctx, probeTimeout))
	return port, ok
}

// boundedTimeout returns limit, or the time left on ctx when that is shorter.
func boundedTimeout(ctx context.Context, limit time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < limit {
			return d
		}
	}
	return limit
}

// findResident returns the first port in r whose listener answers PONG.
func findResident(r PortRange, timeout time.Duration) (port int, addr string, ok bool) {
	for p := r.Start; p <= r.End; p++ {
		a := residentAddr(p)
		if ping(a, timeout) {
			return p, a, true
		}
	}
	return 0, "", false
}

func residentAddr(port int) string {
	return net.JoinHostPort(residentHost, strconv.Itoa(port))
}

// dialResident opens a connection and sends one request line.
func dialResident(addr, line string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(line); err != nil {
		conn.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := dialResident(addr, pingRequest, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}
