package mmap

import "math"

// MaxSize is the largest mapping Map accepts: 256TB on 64-bit platforms,
// bounded by the address space elsewhere.
const MaxSize = min(math.MaxInt, 0xFFFFFFFFFFFF)
