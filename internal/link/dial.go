package link

import (
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const (
	schemeSerial = "serial"
	schemeUDPIn  = "udpin"
	schemeUDPOut = "udpout"
)

var validate = validator.New()

var ErrInvalidAddress = errors.New("invalid link address")

// Address is a parsed link address such as serial:/dev/ttyUSB0 or udpin::14550.
type Address struct {
	Scheme string
	Target string
}

// ParseAddress splits the address into its scheme and target and validates the target.
func ParseAddress(addr string) (Address, error) {
	scheme, target, ok := strings.Cut(addr, ":")
	if !ok || target == "" {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q", addr)
	}
	switch scheme {
	case schemeSerial:
		return Address{Scheme: scheme, Target: target}, nil
	case schemeUDPIn, schemeUDPOut:
		if err := validateHostPort(target); err != nil {
			return Address{}, errors.Wrapf(err, "%q", addr)
		}
		return Address{Scheme: scheme, Target: target}, nil
	default:
		return Address{}, errors.Wrapf(ErrInvalidAddress, "unknown scheme %q", scheme)
	}
}

// ValidateAddress reports whether the address can be dialed.
func ValidateAddress(addr string) error {
	_, err := ParseAddress(addr)
	return err
}

// validateHostPort accepts host:port, :port and [ipv6]:port.
func validateHostPort(hostport string) error {
	if err := validate.Var(hostport, "hostname_port"); err == nil {
		return nil
	}
	// hostname_port does not cover IPv6 hosts.
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return ErrInvalidAddress
	}
	if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		return ErrInvalidAddress
	}
	if host != "" && validate.Var(host, "ip") != nil {
		return ErrInvalidAddress
	}
	return nil
}

// Dial opens the connection described by the address. The baud rate is only used for
// serial links.
func Dial(addr string, baud int) (Conn, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	var conn Conn
	switch a.Scheme {
	case schemeSerial:
		conn, err = OpenSerial(a.Target, baud)
	case schemeUDPIn:
		conn, err = ListenUDP(a.Target)
	default:
		conn, err = DialUDP(a.Target)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	return conn, nil
}
