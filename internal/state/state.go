// Package state persists the watcher's durable aggregate: the last-known
// model set per source, the subscribed chats, and the tag assignments.
package state

import (
	"sort"

	"modelwatch/internal/catalog"
)

// Snapshot is the most recently persisted model set of one source.
// Model order is the order of the fetch that produced it; removal ordering
// in change reports depends on it.
type Snapshot struct {
	Models []catalog.Model `json:"models"`
}

// State is the root aggregate written as a single document.
//
// Snapshots for sources that are no longer configured are kept and
// re-persisted but never polled.
type State struct {
	Snapshots map[string]Snapshot `json:"snapshots"`
	Chats     []int64             `json:"chats"`
	Tags      map[string]string   `json:"tags"`
}

func NewState() *State {
	return &State{
		Snapshots: map[string]Snapshot{},
		Tags:      map[string]string{},
	}
}

// normalize repairs nil maps after decoding and keeps the chat list sorted
// so persisted state is byte-stable across save/load cycles.
func (s *State) normalize() {
	if s.Snapshots == nil {
		s.Snapshots = map[string]Snapshot{}
	}
	if s.Tags == nil {
		s.Tags = map[string]string{}
	}
	sort.Slice(s.Chats, func(i, j int) bool { return s.Chats[i] < s.Chats[j] })
}

func (s *State) clone() *State {
	cp := NewState()
	for name, snap := range s.Snapshots {
		cp.Snapshots[name] = Snapshot{Models: append([]catalog.Model(nil), snap.Models...)}
	}
	cp.Chats = append([]int64(nil), s.Chats...)
	for k, v := range s.Tags {
		cp.Tags[k] = v
	}
	return cp
}

func (s *State) hasChat(chatID int64) bool {
	for _, id := range s.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
