package qe

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"go.etcd.io/bbolt"
)

type BoltOptions struct {
	// Bucket holds the records. Defaults to "records".
	Bucket    string
	IsTesting bool
	MmapSize  int
}

const defaultBoltBucket = "records"

// boltMedium keeps every record under a big-endian sequence number key in a
// single bucket. Sequence numbers start at 1 and are never reused, so they
// double as offsets.
type boltMedium struct {
	bdb    *bbolt.DB
	bucket []byte
}

// OpenBoltMedium opens (or creates) a Bolt database to be used as the engine
// medium. Each medium call runs in its own Bolt transaction.
func OpenBoltMedium(path string, opt BoltOptions) (Medium, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("qe: bolt: %w", err)
	}

	name := opt.Bucket
	if name == "" {
		name = defaultBoltBucket
	}
	m := &boltMedium{bdb: bdb, bucket: []byte(name)}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(m.bucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("qe: bolt: creating bucket %q: %w", name, err)
	}
	return m, nil
}

func (m *boltMedium) Bolt() *bbolt.DB {
	return m.bdb
}

func (m *boltMedium) Alloc(size int) (uint64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("invalid allocation size %d", size)
	}
	var off uint64
	err := m.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(m.bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		off = seq
		return b.Put(boltKey(seq), make([]byte, size))
	})
	if err != nil {
		return 0, err
	}
	return off, nil
}

func (m *boltMedium) Free(off uint64) error {
	return m.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(m.bucket)
		key := boltKey(off)
		if b.Get(key) == nil {
			return fmt.Errorf("no record at offset %d", off)
		}
		return b.Delete(key)
	})
}

func (m *boltMedium) SizeOf(off uint64) (int, error) {
	var size int
	err := m.bdb.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(m.bucket).Get(boltKey(off))
		if v == nil {
			return fmt.Errorf("no record at offset %d", off)
		}
		size = len(v)
		return nil
	})
	return size, err
}

func (m *boltMedium) ReadAt(off uint64, buf []byte) (int, error) {
	var n int
	err := m.bdb.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(m.bucket).Get(boltKey(off))
		if v == nil {
			return fmt.Errorf("no record at offset %d", off)
		}
		// v points into the mmap and is only valid inside the transaction
		n = copy(buf, v)
		return nil
	})
	if err == nil && n < len(buf) {
		err = io.EOF
	}
	return n, err
}

func (m *boltMedium) WriteAt(off uint64, data []byte) (int, error) {
	var n int
	err := m.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(m.bucket)
		key := boltKey(off)
		v := b.Get(key)
		if v == nil {
			return fmt.Errorf("no record at offset %d", off)
		}
		updated := make([]byte, len(v))
		copy(updated, v)
		n = copy(updated, data)
		return b.Put(key, updated)
	})
	if err != nil {
		return 0, err
	}
	if n < len(data) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (m *boltMedium) First() (uint64, error) {
	return m.Next(0)
}

func (m *boltMedium) Next(off uint64) (uint64, error) {
	var next uint64
	err := m.bdb.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(m.bucket).Cursor().Seek(boltKey(off + 1))
		if k != nil {
			next = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return next, err
}

func (m *boltMedium) Size() int64 {
	var size int64
	_ = m.bdb.View(func(tx *bbolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size
}

func (m *boltMedium) Close() error {
	return m.bdb.Close()
}

func boltKey(off uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), off)
}
