package qe

import (
	"cmp"
	"testing"
)

type (
	User struct {
		ID    uint64 `msgpack:"id"`
		Email string `msgpack:"e"`
		Name  string `msgpack:"n"`
		Tags  map[string]int
	}
)

var (
	usersByID = CompareFunc[*User](func(a, b *User) int {
		return cmp.Compare(a.ID, b.ID)
	})
	usersByEmail = CompareFunc[*User](func(a, b *User) int {
		return cmp.Compare(a.Email, b.Email)
	})
)

func TestMsgpackCodec(t *testing.T) {
	var purged int
	codec := MsgpackCodec[User]{OnPurge: func(*User) { purged++ }}
	e := New[*User](NewMemMedium(), codec, testOptions(t))
	defer e.Close()
	ensure(e.AddIndex("id", usersByID))

	u1 := &User{ID: 1, Name: "foo", Email: "foo@example.com", Tags: map[string]int{"b": 2, "a": 1}}
	u2 := &User{ID: 2, Name: "bar", Email: "bar@example.com"}
	ensure(e.Set(u1))
	ensure(e.Set(u2))
	ensure(e.AddIndex("email", usersByEmail))

	got, found, err := e.Get("email", &User{Email: "foo@example.com"})
	ensure(err)
	deepEqual(t, found, true)
	deepEqual(t, got, u1)

	got, _, _ = e.Get("id", &User{ID: 2})
	deepEqual(t, got, u2)

	if purged == 0 {
		t.Errorf("OnPurge was never called")
	}
}

func TestMsgpackCodecDeterministic(t *testing.T) {
	codec := MsgpackCodec[User]{}
	u := &User{ID: 1, Tags: map[string]int{"z": 1, "a": 2, "m": 3}}
	first := must(codec.Serialize(u))
	for range 10 {
		deepEqual(t, must(codec.Serialize(u)), first)
	}
}

func TestMsgpackCodecErrors(t *testing.T) {
	codec := MsgpackCodec[User]{}
	if _, err := codec.Serialize(nil); err == nil {
		t.Errorf("Serialize(nil) succeeded")
	}
	if _, err := codec.Deserialize([]byte{0xc1}); err == nil {
		t.Errorf("Deserialize(garbage) succeeded")
	}
	codec.Purge(&User{}) // no OnPurge, must not panic
}

func TestFuncsCodec(t *testing.T) {
	var f Funcs[*entry]
	if _, err := f.Serialize(&entry{}); err == nil {
		t.Errorf("Serialize without SerializeFunc succeeded")
	}
	if _, err := f.Deserialize(nil); err == nil {
		t.Errorf("Deserialize without DeserializeFunc succeeded")
	}
	f.Purge(&entry{})
}
