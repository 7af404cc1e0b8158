package core

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/codimo/glacier/internal/tree"
)

// Commit is an immutable snapshot of the working tree plus metadata. Once
// created it is never mutated or deleted.
type Commit struct {
	Hash     Hash                       `json:"hash"`
	Message  string                     `json:"message"`
	Date     time.Time                  `json:"date"`
	Root     *tree.Dir                  `json:"root"`
	Parents  []Hash                     `json:"parents,omitempty"`
	Tags     []string                   `json:"tags,omitempty"`
	UserData map[string]json.RawMessage `json:"userData,omitempty"`
}

// AddTag adds a tag to the commit, keeping the set unique and sorted.
func (c *Commit) AddTag(tag string) {
	for _, t := range c.Tags {
		if t == tag {
			return
		}
	}
	c.Tags = append(c.Tags, tag)
	sort.Strings(c.Tags)
}

// ComputeHash derives the commit id from its content. The hash field itself
// is excluded from the derivation.
func (c *Commit) ComputeHash() Hash {
	shadow := *c
	shadow.Hash = Hash{}
	data, _ := json.Marshal(&shadow)
	return HashBytes(data)
}

// RefType distinguishes reference kinds. Branches are the only kind today.
type RefType int

const (
	RefBranch RefType = iota
)

// Reference is a named mutable pointer to a commit. Start records the
// commit the reference was created at.
type Reference struct {
	Type     RefType                    `json:"type"`
	Name     string                     `json:"name"`
	Hash     Hash                       `json:"hash"`
	Start    Hash                       `json:"start"`
	UserData map[string]json.RawMessage `json:"userData,omitempty"`
}
