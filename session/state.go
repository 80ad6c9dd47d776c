// Package session persists browser authentication state between runs.
//
// The file format is the Playwright storage-state schema: a JSON object with
// a cookie list and per-origin local storage. A state read from disk keeps
// its original bytes so writing it back is byte-for-byte identical.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Cookie is one browser cookie in storage-state form.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // unix seconds, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"` // "Strict", "Lax" or "None"
}

// StorageItem is one local storage key/value pair.
type StorageItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin groups the local storage of one origin.
type Origin struct {
	Origin       string        `json:"origin"`
	LocalStorage []StorageItem `json:"localStorage"`
}

// State is a storage-state snapshot.
type State struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`

	raw []byte
}

// ErrNotObject is returned by Parse when the document is valid JSON but not
// a storage-state object.
var ErrNotObject = errors.New("session: storage state is not a JSON object")

// Parse decodes a storage-state document and keeps data as its canonical bytes.
func Parse(data []byte) (*State, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if json.Valid(trimmed) {
			return nil, ErrNotObject
		}
	}
	var s State
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, err
	}
	s.raw = append([]byte(nil), data...)
	return &s, nil
}

// Bytes returns the serialized state. A parsed state returns the bytes it was
// parsed from; a state built in memory is marshalled.
func (s *State) Bytes() ([]byte, error) {
	if s.raw != nil {
		return s.raw, nil
	}
	if s.Cookies == nil {
		s.Cookies = []Cookie{}
	}
	if s.Origins == nil {
		s.Origins = []Origin{}
	}
	return json.MarshalIndent(s, "", "  ")
}

// LocalStorage returns the key/value pairs stored for origin.
func (s *State) LocalStorage(origin string) map[string]string {
	for _, o := range s.Origins {
		if o.Origin != origin {
			continue
		}
		out := make(map[string]string, len(o.LocalStorage))
		for _, it := range o.LocalStorage {
			out[it.Name] = it.Value
		}
		return out
	}
	return nil
}
