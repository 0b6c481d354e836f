package storage

import "testing"

func TestCodec_URLRecordRoundTrip(t *testing.T) {
	rec := URLRecord{LongURL: "https://example.com", OwnerID: "u1", CreatedAtUnix: 100, ExpiresAtUnix: 200}
	got, err := DecodeURLRecord(EncodeURLRecord(rec))
	if err != nil || got != rec {
		t.Fatalf("round trip: got %+v, %v", got, err)
	}
}

func TestCodec_UserRoundTrip(t *testing.T) {
	u := User{ID: "u1", Email: "u1@example.com", PasswordHash: []byte("hash"), CreatedAtUnix: 100}
	got, err := DecodeUser(EncodeUser(u))
	if err != nil || got.ID != u.ID || got.Email != u.Email || string(got.PasswordHash) != string(u.PasswordHash) {
		t.Fatalf("round trip: got %+v, %v", got, err)
	}
}

func TestCodec_MembersRoundTripAndEmpty(t *testing.T) {
	members := []ScoredMember{{Score: 1, Member: 10}, {Score: 2, Member: 20}}
	got, err := DecodeMembers(EncodeMembers(members))
	if err != nil || len(got) != 2 || got[0] != members[0] {
		t.Fatalf("round trip: got %+v, %v", got, err)
	}

	empty, err := DecodeMembers("")
	if err != nil || empty != nil {
		t.Fatalf("empty decode: got %+v, %v", empty, err)
	}
}

func TestCodec_SetRoundTripAndEmpty(t *testing.T) {
	set := []string{"a", "b", "c"}
	got, err := DecodeSet(EncodeSet(set))
	if err != nil || len(got) != 3 {
		t.Fatalf("round trip: got %+v, %v", got, err)
	}

	empty, err := DecodeSet("")
	if err != nil || empty != nil {
		t.Fatalf("empty decode: got %+v, %v", empty, err)
	}
}
