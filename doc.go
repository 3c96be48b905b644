/*
Package qe implements an embeddable record store: application records are
serialized into a single file-backed medium and kept reachable through any
number of named in-memory indexes, each ordered by an application comparator.

We implement:

1. Records, arbitrary application values turned into bytes by a Codec
(see MsgpackCodec for a ready-made one).

2. Indexes, named orderings over all records. An index answers point lookups
by pattern: a partially filled record that compares equal to the one you are
after.

3. Media, the persistent storage underneath: palloc files (default), Bolt
databases, or memory.

# Technical Details

**Indexes hold offsets, not records.**
An index is a sorted set of references to medium offsets. To compare two
references, the engine reads and decodes both records, calls the comparator,
and purges the decoded values right away, so the process never holds a decoded
copy of the data set. Lookup patterns are compared as is and are never purged.

**One reference per offset.**
All indexes share the reference for a given offset, and the reference counts
how many indexes hold it. Replacing or deleting a record in one index drops
that index's hold; the medium slot is freed when the last hold goes away.

**Replace on equal.**
Writing a record that compares equal to an existing one under an index
replaces the old entry in that index. Indexes with different comparators may
therefore disagree about which records they contain.

**Backfill.**
Indexes live in memory only. Adding an index scans the whole medium and
inserts every record, which is also how a reopened engine finds its data.
Removing an index and closing the engine never touch the medium.

**Unreadable records compare as equal.**
If a record cannot be read or decoded during a comparison, the comparison
reports a tie instead of aborting the container operation. Such events are
logged and counted in Stats.CompareFailures. Get still reports read errors for
the record it returns.

**Failed writes.**
When a write fails after the medium slot has been allocated, the slot is
freed again before Set returns ErrWriteFailed.
*/
package qe
