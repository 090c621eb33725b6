package wire

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned by the Decode* functions when the input
// does not yet contain a complete frame. The caller should read more
// bytes and retry; the input buffer is never advanced on this path.
var ErrShortBuffer = errors.New("wire: need more bytes")

// DomainTooLongError is returned at encode time when a domain name's
// UTF-8 length exceeds 255 bytes.
type DomainTooLongError struct {
	Len int
}

func (e *DomainTooLongError) Error() string {
	return fmt.Sprintf("wire: domain name too long: %d bytes (max 255)", e.Len)
}

// InvalidAddressTypeError is returned when the low 2 bits of the atyp
// byte name a reserved address type (>= 3).
type InvalidAddressTypeError struct {
	Byte byte
}

func (e *InvalidAddressTypeError) Error() string {
	return fmt.Sprintf("wire: invalid address type: %d", e.Byte)
}

// InvalidStatusCodeError is returned when a TcpConnectResponse status
// byte does not name a known StatusCode.
type InvalidStatusCodeError struct {
	Byte byte
}

func (e *InvalidStatusCodeError) Error() string {
	return fmt.Sprintf("wire: invalid status code: 0x%02x", e.Byte)
}

// ErrInvalidDomainEncoding is returned when a domain's bytes are not
// valid UTF-8 on decode.
var ErrInvalidDomainEncoding = errors.New("wire: invalid domain encoding")

// StatusForError maps a codec error encountered while decoding a
// TcpConnectRequest to the response status the server should send
// before dropping the substream.
func StatusForError(err error) StatusCode {
	var domainTooLong *DomainTooLongError
	var invalidAddrType *InvalidAddressTypeError
	switch {
	case errors.As(err, &domainTooLong):
		return HostUnreachable
	case errors.Is(err, ErrInvalidDomainEncoding):
		return HostUnreachable
	case errors.As(err, &invalidAddrType):
		return AddressTypeNotSupported
	default:
		return GeneralFailure
	}
}
