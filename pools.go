package qe

import "sync"

var recordBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

// maxPooledRecordBytes keeps one huge record from pinning a huge buffer.
const maxPooledRecordBytes = 1024 * 1024

func releaseRecordBytes(b []byte) {
	if cap(b) <= maxPooledRecordBytes {
		recordBytesPool.Put(b[:0])
	}
}
