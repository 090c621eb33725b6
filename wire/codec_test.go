package wire

import (
	"net"
	"testing"
)

func TestTcpConnectRequestRoundTripIPv4(t *testing.T) {
	req := TcpConnectRequest{Target: TargetAddress{Host: HostFromIP(net.ParseIP("93.184.216.34")), Port: 443}}
	buf, err := EncodeTcpConnectRequest(nil, req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 7 {
		t.Fatalf("expected 7 bytes for IPv4 request, got %d", len(buf))
	}
	got, consumed, err := DecodeTcpConnectRequest(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if consumed != 7 {
		t.Fatalf("expected to consume 7 bytes, got %d", consumed)
	}
	if got.Target.Host.String() != "93.184.216.34" || got.Target.Port != 443 {
		t.Fatalf("target mismatch: got %s", got.Target.String())
	}
}

func TestTcpConnectRequestRoundTripIPv6(t *testing.T) {
	req := TcpConnectRequest{Target: TargetAddress{Host: HostFromIP(net.ParseIP("::1")), Port: 8080}}
	buf, err := EncodeTcpConnectRequest(nil, req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 19 {
		t.Fatalf("expected 19 bytes for IPv6 request, got %d", len(buf))
	}
	got, consumed, err := DecodeTcpConnectRequest(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if consumed != 19 {
		t.Fatalf("expected to consume 19 bytes, got %d", consumed)
	}
	if got.Target.Host.String() != "::1" || got.Target.Port != 8080 {
		t.Fatalf("target mismatch: got %s", got.Target.String())
	}
}

func TestTcpConnectRequestRoundTripDomain(t *testing.T) {
	req := TcpConnectRequest{Target: TargetAddress{Host: HostFromDomain("example.com"), Port: 80}}
	buf, err := EncodeTcpConnectRequest(nil, req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	wantLen := 1 + 1 + len("example.com") + 2
	if len(buf) != wantLen {
		t.Fatalf("expected %d bytes, got %d", wantLen, len(buf))
	}
	got, consumed, err := DecodeTcpConnectRequest(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if consumed != wantLen {
		t.Fatalf("expected to consume %d bytes, got %d", wantLen, consumed)
	}
	if got.Target.Host.String() != "example.com" || got.Target.Port != 80 {
		t.Fatalf("target mismatch: got %s", got.Target.String())
	}
}

func TestDecodeTcpConnectRequestNeedsMoreBytes(t *testing.T) {
	req := TcpConnectRequest{Target: TargetAddress{Host: HostFromIP(net.ParseIP("93.184.216.34")), Port: 443}}
	full, err := EncodeTcpConnectRequest(nil, req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for n := 0; n < len(full); n++ {
		if _, _, err := DecodeTcpConnectRequest(full[:n]); err != ErrShortBuffer {
			t.Fatalf("prefix of %d bytes: expected ErrShortBuffer, got %v", n, err)
		}
	}
}

func TestDecodeConcatenatedRequests(t *testing.T) {
	a := TcpConnectRequest{Target: TargetAddress{Host: HostFromIP(net.ParseIP("1.2.3.4")), Port: 1}}
	b := TcpConnectRequest{Target: TargetAddress{Host: HostFromDomain("foo.test"), Port: 2}}

	var buf []byte
	buf, err := EncodeTcpConnectRequest(buf, a)
	if err != nil {
		t.Fatalf("encode a: %v", err)
	}
	buf, err = EncodeTcpConnectRequest(buf, b)
	if err != nil {
		t.Fatalf("encode b: %v", err)
	}

	gotA, n1, err := DecodeTcpConnectRequest(buf)
	if err != nil {
		t.Fatalf("decode a: %v", err)
	}
	if gotA.Target.Port != 1 {
		t.Fatalf("expected port 1, got %d", gotA.Target.Port)
	}

	gotB, n2, err := DecodeTcpConnectRequest(buf[n1:])
	if err != nil {
		t.Fatalf("decode b: %v", err)
	}
	if gotB.Target.Port != 2 {
		t.Fatalf("expected port 2, got %d", gotB.Target.Port)
	}
	if n1+n2 != len(buf) {
		t.Fatalf("expected to consume all %d bytes, consumed %d", len(buf), n1+n2)
	}
}

func TestDecodeRejectsReservedAddressType(t *testing.T) {
	buf := []byte{0x03, 0, 0, 0, 0, 0, 0}
	if _, _, err := DecodeTcpConnectRequest(buf); err == nil {
		t.Fatal("expected error for reserved atyp")
	} else if _, ok := err.(*InvalidAddressTypeError); !ok {
		t.Fatalf("expected InvalidAddressTypeError, got %T: %v", err, err)
	}
}

func TestDecodeIgnoresReservedHighBits(t *testing.T) {
	buf := []byte{0xFC, 93, 184, 216, 34, 0x01, 0xBB}
	got, consumed, err := DecodeTcpConnectRequest(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if consumed != 7 {
		t.Fatalf("expected 7 bytes consumed, got %d", consumed)
	}
	if got.Target.Host.String() != "93.184.216.34" {
		t.Fatalf("address mismatch: got %s", got.Target.Host.String())
	}
}

func TestEncodeRejectsOversizedDomain(t *testing.T) {
	longDomain := make([]byte, 256)
	for i := range longDomain {
		longDomain[i] = 'a'
	}
	req := TcpConnectRequest{Target: TargetAddress{Host: HostFromDomain(string(longDomain)), Port: 1}}
	_, err := EncodeTcpConnectRequest(nil, req)
	if err == nil {
		t.Fatal("expected error for oversized domain")
	}
	if _, ok := err.(*DomainTooLongError); !ok {
		t.Fatalf("expected DomainTooLongError, got %T: %v", err, err)
	}
}

func TestTcpConnectResponseRoundTrip(t *testing.T) {
	for status := Success; status <= AddressTypeNotSupported; status++ {
		buf := EncodeTcpConnectResponse(nil, TcpConnectResponse{Status: status})
		if len(buf) != 1 {
			t.Fatalf("expected 1 byte, got %d", len(buf))
		}
		got, consumed, err := DecodeTcpConnectResponse(buf)
		if err != nil {
			t.Fatalf("decode status 0x%02x: %v", byte(status), err)
		}
		if consumed != 1 || got.Status != status {
			t.Fatalf("mismatch for status 0x%02x: got %+v consumed=%d", byte(status), got, consumed)
		}
	}
}

func TestDecodeTcpConnectResponseNeedsMoreBytes(t *testing.T) {
	if _, _, err := DecodeTcpConnectResponse(nil); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestDecodeTcpConnectResponseRejectsUnknownStatus(t *testing.T) {
	buf := []byte{0x08}
	if _, _, err := DecodeTcpConnectResponse(buf); err == nil {
		t.Fatal("expected error for unknown status")
	} else if _, ok := err.(*InvalidStatusCodeError); !ok {
		t.Fatalf("expected InvalidStatusCodeError, got %T: %v", err, err)
	}
}

func TestUdpDatagramRoundTrip(t *testing.T) {
	dg := UdpDatagram{
		FlowID: 7,
		Target: TargetAddress{Host: HostFromIP(net.ParseIP("8.8.8.8")), Port: 53},
		Data:   []byte("hello"),
	}
	buf, err := EncodeUdpDatagram(nil, dg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeUdpDatagram(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FlowID != 7 {
		t.Fatalf("expected flow id 7, got %d", got.FlowID)
	}
	if got.Target.String() != "8.8.8.8:53" {
		t.Fatalf("target mismatch: got %s", got.Target.String())
	}
	if string(got.Data) != "hello" {
		t.Fatalf("data mismatch: got %q", got.Data)
	}
}

func TestUdpDatagramRoundTripEmptyPayload(t *testing.T) {
	dg := UdpDatagram{
		FlowID: 0,
		Target: TargetAddress{Host: HostFromDomain("relay.test"), Port: 123},
	}
	buf, err := EncodeUdpDatagram(nil, dg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeUdpDatagram(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Data) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got.Data))
	}
}

func TestDecodeUdpDatagramNeedsMoreBytes(t *testing.T) {
	if _, err := DecodeUdpDatagram([]byte{7, 0x02}); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want StatusCode
	}{
		{&DomainTooLongError{Len: 300}, HostUnreachable},
		{ErrInvalidDomainEncoding, HostUnreachable},
		{&InvalidAddressTypeError{Byte: 0x03}, AddressTypeNotSupported},
		{ErrShortBuffer, GeneralFailure},
	}
	for _, c := range cases {
		if got := StatusForError(c.err); got != c.want {
			t.Fatalf("StatusForError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
