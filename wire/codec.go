package wire

import (
	"encoding/binary"
	"unicode/utf8"
)

// decodeHostPort parses an atyp+address+port prefix (shared by the TCP
// request frame and the address portion of the UDP datagram frame).
// It returns the number of bytes consumed from buf, or ErrShortBuffer
// if buf does not yet hold a complete address. It never advances buf
// itself -- callers re-slice on success.
func decodeHostPort(buf []byte) (host Host, port uint16, consumed int, err error) {
	if len(buf) < 1 {
		return Host{}, 0, 0, ErrShortBuffer
	}

	atyp := AddressType(buf[0] & 0x03)

	switch atyp {
	case AddrIPv4:
		const need = 1 + 4 + 2
		if len(buf) < need {
			return Host{}, 0, 0, ErrShortBuffer
		}
		ip := make([]byte, 4)
		copy(ip, buf[1:5])
		port = binary.BigEndian.Uint16(buf[5:7])
		return Host{Type: AddrIPv4, IP: ip}, port, need, nil

	case AddrIPv6:
		const need = 1 + 16 + 2
		if len(buf) < need {
			return Host{}, 0, 0, ErrShortBuffer
		}
		ip := make([]byte, 16)
		copy(ip, buf[1:17])
		port = binary.BigEndian.Uint16(buf[17:19])
		return Host{Type: AddrIPv6, IP: ip}, port, need, nil

	case AddrDomain:
		if len(buf) < 2 {
			return Host{}, 0, 0, ErrShortBuffer
		}
		domainLen := int(buf[1])
		need := 2 + domainLen + 2
		if len(buf) < need {
			return Host{}, 0, 0, ErrShortBuffer
		}
		domainBytes := buf[2 : 2+domainLen]
		if !utf8.Valid(domainBytes) {
			return Host{}, 0, 0, ErrInvalidDomainEncoding
		}
		domain := string(domainBytes)
		port = binary.BigEndian.Uint16(buf[2+domainLen : need])
		return Host{Type: AddrDomain, Domain: domain}, port, need, nil

	default:
		return Host{}, 0, 0, &InvalidAddressTypeError{Byte: buf[0]}
	}
}

// encodeHostPort appends the atyp+address+port encoding of target to
// dst and returns the extended slice.
func encodeHostPort(dst []byte, target TargetAddress) ([]byte, error) {
	switch target.Host.Type {
	case AddrIPv4:
		dst = append(dst, byte(AddrIPv4))
		dst = append(dst, target.Host.IP.To4()...)
	case AddrIPv6:
		dst = append(dst, byte(AddrIPv6))
		dst = append(dst, target.Host.IP.To16()...)
	case AddrDomain:
		domainBytes := []byte(target.Host.Domain)
		if len(domainBytes) > 255 {
			return nil, &DomainTooLongError{Len: len(domainBytes)}
		}
		dst = append(dst, byte(AddrDomain), byte(len(domainBytes)))
		dst = append(dst, domainBytes...)
	default:
		return nil, &InvalidAddressTypeError{Byte: byte(target.Host.Type)}
	}
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], target.Port)
	dst = append(dst, portBuf[:]...)
	return dst, nil
}

// EncodeTcpConnectRequest serializes req, appending it to dst.
func EncodeTcpConnectRequest(dst []byte, req TcpConnectRequest) ([]byte, error) {
	return encodeHostPort(dst, req.Target)
}

// DecodeTcpConnectRequest parses one TcpConnectRequest frame from the
// front of buf. On success it returns the message and the number of
// bytes consumed; on ErrShortBuffer the caller should read more bytes
// and retry without having advanced buf.
func DecodeTcpConnectRequest(buf []byte) (*TcpConnectRequest, int, error) {
	host, port, consumed, err := decodeHostPort(buf)
	if err != nil {
		return nil, 0, err
	}
	return &TcpConnectRequest{Target: TargetAddress{Host: host, Port: port}}, consumed, nil
}

// EncodeTcpConnectResponse serializes resp, appending it to dst.
func EncodeTcpConnectResponse(dst []byte, resp TcpConnectResponse) []byte {
	return append(dst, byte(resp.Status))
}

// DecodeTcpConnectResponse parses one TcpConnectResponse frame (a
// single status byte) from the front of buf.
func DecodeTcpConnectResponse(buf []byte) (*TcpConnectResponse, int, error) {
	if len(buf) < 1 {
		return nil, 0, ErrShortBuffer
	}
	b := buf[0]
	if b > byte(AddressTypeNotSupported) {
		return nil, 0, &InvalidStatusCodeError{Byte: b}
	}
	return &TcpConnectResponse{Status: StatusCode(b)}, 1, nil
}

// EncodeUdpDatagram serializes dg, appending it to dst.
func EncodeUdpDatagram(dst []byte, dg UdpDatagram) ([]byte, error) {
	dst = append(dst, dg.FlowID)
	dst, err := encodeHostPort(dst, dg.Target)
	if err != nil {
		return nil, err
	}
	dst = append(dst, dg.Data...)
	return dst, nil
}

// DecodeUdpDatagram parses a UdpDatagram from buf. Because UDP framing
// is delimited by the enclosing transport datagram boundary, this
// consumes the header (flow_id + address + port) and treats every
// remaining byte as payload -- on success all of buf is consumed, so
// no "consumed" count is returned.
func DecodeUdpDatagram(buf []byte) (*UdpDatagram, error) {
	if len(buf) < 1 {
		return nil, ErrShortBuffer
	}
	flowID := buf[0]
	host, port, consumed, err := decodeHostPort(buf[1:])
	if err != nil {
		return nil, err
	}
	headerLen := 1 + consumed
	data := make([]byte, len(buf)-headerLen)
	copy(data, buf[headerLen:])
	return &UdpDatagram{
		FlowID: flowID,
		Target: TargetAddress{Host: host, Port: port},
		Data:   data,
	}, nil
}
