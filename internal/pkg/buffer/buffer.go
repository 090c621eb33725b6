package buffer

import (
	"io"
	"sync"
)

var TPool = sync.Pool{
	New: func() any {
		b := make([]byte, 128*1024) // 128 KB for fewer syscalls on high-throughput
		return &b
	},
}

var UPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64*1024) // 64 KB for UDP packet aggregation
		return &b
	},
}

// CopyT copies data from src to dst using a pooled buffer, for
// splicing one half of a TCP-CONNECT relay.
func CopyT(dst io.Writer, src io.Reader) error {
	bufp := TPool.Get().(*[]byte)
	defer TPool.Put(bufp)
	buf := *bufp

	_, err := io.CopyBuffer(dst, src, buf)
	return err
}
