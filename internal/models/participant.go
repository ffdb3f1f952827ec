package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ParticipantKind tells a registered member apart from a free-text guest.
type ParticipantKind int

const (
	KindMember ParticipantKind = iota + 1
	KindGuest
)

// Participant is either Member(id) or Guest(label).
//
// On the wire members are JSON numbers and guests are JSON strings. A guest
// label made only of digits stays a Guest when decoded.
type Participant struct {
	kind     ParticipantKind
	memberID int64
	label    string
}

// Member returns a registered-user participant.
func Member(id int64) Participant {
	return Participant{kind: KindMember, memberID: id}
}

// Guest returns a non-member participant identified by free text (e.g. a student number).
func Guest(label string) Participant {
	return Participant{kind: KindGuest, label: label}
}

func (p Participant) Kind() ParticipantKind { return p.kind }
func (p Participant) IsMember() bool        { return p.kind == KindMember }
func (p Participant) IsGuest() bool         { return p.kind == KindGuest }

// MemberID is zero for guests.
func (p Participant) MemberID() int64 { return p.memberID }

// Label is empty for members.
func (p Participant) Label() string { return p.label }

func (p Participant) String() string {
	if p.IsMember() {
		return fmt.Sprintf("member:%d", p.memberID)
	}
	return "guest:" + p.label
}

func (p Participant) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case KindMember:
		return []byte(strconv.FormatInt(p.memberID, 10)), nil
	case KindGuest:
		return json.Marshal(p.label)
	default:
		return nil, fmt.Errorf("participant has no kind")
	}
}

func (p *Participant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return err
		}
		*p = Guest(label)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("participant must be a number or a string: %w", err)
	}
	id, err := n.Int64()
	if err != nil {
		return fmt.Errorf("member id %s: %w", n, err)
	}
	*p = Member(id)
	return nil
}
