package qe

import (
	"strings"
	"testing"
)

func TestDump(t *testing.T) {
	e, codec := setup(t, NewMemMedium())
	ensure(e.AddIndex("nam", byName))
	ensure(e.Set(&entry{"pizza", "calzone"}))
	ensure(e.Set(&entry{"alfredo", "pasta"}))

	dump := e.Dump(DumpAll)
	for _, s := range []string{
		"stats: indices = 1, records = 2",
		"nam (2 entries)",
		`nam#1 @2 holders=1 {"Name":"alfredo","Data":"pasta"}`,
		`nam#2 @1 holders=1 {"Name":"pizza","Data":"calzone"}`,
	} {
		if !strings.Contains(dump, s) {
			t.Errorf("dump does not contain %q:\n%s", s, dump)
		}
	}
	deepEqual(t, codec.outstanding(), 0)

	headers := e.Dump(DumpIndexHeaders)
	if strings.Contains(headers, "nam#1") {
		t.Errorf("headers-only dump contains entries:\n%s", headers)
	}

	ensure(e.Close())
	deepEqual(t, e.Dump(DumpAll), "CLOSED\n")
}
