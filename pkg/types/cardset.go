package types

import "strings"

// CardSet is a named, optionally parented collection of owned cards. The
// parent relation over all card sets forms a forest.
type CardSet struct {
	ID          int64    `json:"-"`
	Name        string   `json:"name"`
	Author      string   `json:"author,omitempty"`
	Comment     string   `json:"comment,omitempty"`
	Annotations string   `json:"annotations,omitempty"`
	InUse       bool     `json:"in_use,omitempty"`
	ParentID    *int64   `json:"-"`
	Parent      string   `json:"parent,omitempty"`
	Members     []Member `json:"cards,omitempty"`
}

// Member is one entry of a card set. Entries form an ordered multiset: the
// same physical card may appear several times.
type Member struct {
	PhysicalCardID int64  `json:"-"`
	Card           string `json:"card"`
	Expansion      string `json:"expansion,omitempty"`
}

// Validate checks that the card set can be stored.
func (cs *CardSet) Validate() error {
	if strings.TrimSpace(cs.Name) == "" {
		return ErrInvalidName
	}
	return nil
}
