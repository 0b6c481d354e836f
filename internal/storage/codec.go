package storage

import "encoding/json"

// URLRecord and User travel as JSON between both concrete backends
// (remotekv, diskkv) and the orchestrator. This shape is a handful of named
// scalar fields, read far more often than written, so encoding/json is used
// directly rather than reaching for a general-purpose binary codec nothing
// else in the module needs.

func EncodeURLRecord(rec URLRecord) string {
	b, _ := json.Marshal(rec)
	return string(b)
}

func DecodeURLRecord(raw string) (URLRecord, error) {
	var rec URLRecord
	err := json.Unmarshal([]byte(raw), &rec)
	return rec, err
}

func EncodeUser(u User) string {
	b, _ := json.Marshal(u)
	return string(b)
}

func DecodeUser(raw string) (User, error) {
	var u User
	err := json.Unmarshal([]byte(raw), &u)
	return u, err
}

// EncodeMembers/DecodeMembers carry a SortedCounterSet's full member list
// for backends that emulate it as a single serialized value (internal/diskkv's
// ZSET emulation; internal/diskkv's snapshot cache).
func EncodeMembers(members []ScoredMember) string {
	b, _ := json.Marshal(members)
	return string(b)
}

func DecodeMembers(raw string) ([]ScoredMember, error) {
	if raw == "" {
		return nil, nil
	}
	var members []ScoredMember
	err := json.Unmarshal([]byte(raw), &members)
	return members, err
}

// EncodeSet/DecodeSet carry a membership set (the user_urls:<owner>
// secondary index) for backends without a native set type.
func EncodeSet(members []string) string {
	b, _ := json.Marshal(members)
	return string(b)
}

func DecodeSet(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var members []string
	err := json.Unmarshal([]byte(raw), &members)
	return members, err
}
