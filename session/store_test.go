package session

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleState = `{
  "cookies": [
    {"name": "user_session", "value": "abc", "domain": ".github.com", "path": "/",
     "expires": 1790000000.5, "httpOnly": true, "secure": true, "sameSite": "Lax"}
  ],
  "origins": [
    {"origin": "https://github.com", "localStorage": [{"name": "theme", "value": "dark"}]}
  ]
}`

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRead_EmptyFileIsDeleted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login_state.json")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	state, ok := NewStore().Read(path)
	if ok || state != nil {
		t.Fatalf("Read(empty) = %v, %v; want absent", state, ok)
	}
	if fileExists(path) {
		t.Error("empty state file should have been deleted")
	}
}

func TestRead_MalformedFileIsDeleted(t *testing.T) {
	for name, content := range map[string]string{
		"truncated":     `{"cookies": [`,
		"not an object": `[1, 2, 3]`,
		"wrong shape":   `{"cookies": "nope"}`,
		"whitespace":    "  \n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}

			if _, ok := NewStore().Read(path); ok {
				t.Fatal("malformed state reported as present")
			}
			if fileExists(path) {
				t.Error("malformed state file should have been deleted")
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	if _, ok := NewStore().Read(filepath.Join(t.TempDir(), "absent.json")); ok {
		t.Error("missing file reported as present")
	}
}

func TestRead_OtherIOErrorKeepsPath(t *testing.T) {
	// Reading a directory fails with an I/O error that is not "not exist".
	dir := filepath.Join(t.TempDir(), "state.json")
	if err := os.Mkdir(dir, 0o700); err != nil {
		t.Fatal(err)
	}

	if _, ok := NewStore().Read(dir); ok {
		t.Fatal("directory reported as a valid state")
	}
	if !fileExists(dir) {
		t.Error("path removed on a non-content I/O error")
	}
}

func TestRoundTrip_PreservesBytes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.json")
	dst := filepath.Join(dir, "out.json")
	if err := os.WriteFile(src, []byte(sampleState), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	state, ok := store.Read(src)
	if !ok {
		t.Fatal("valid state reported absent")
	}
	if err := store.Write(dst, state); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte(sampleState)) {
		t.Errorf("round trip changed bytes:\n%s", got)
	}
}

func TestRoundTrip_BuiltState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login_state.json")
	want := &State{
		Cookies: []Cookie{{Name: "sid", Value: "1", Domain: "example.com", Path: "/", Expires: -1}},
		Origins: []Origin{{Origin: "https://example.com", LocalStorage: []StorageItem{{Name: "k", Value: "v"}}}},
	}

	store := NewStore()
	if err := store.Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok := store.Read(path)
	if !ok {
		t.Fatal("written state reported absent")
	}
	if !reflect.DeepEqual(got.Cookies, want.Cookies) || !reflect.DeepEqual(got.Origins, want.Origins) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if ls := got.LocalStorage("https://example.com"); ls["k"] != "v" {
		t.Errorf("LocalStorage = %v", ls)
	}
}

func TestWrite_FailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "login_state.json")
	if err := os.WriteFile(path, []byte(sampleState), 0o600); err != nil {
		t.Fatal(err)
	}

	// A directory that does not exist makes the temp file creation fail.
	if err := NewStore().Write(filepath.Join(dir, "missing", "x.json"), &State{}); err == nil {
		t.Fatal("expected write into a missing directory to fail")
	}

	got, err := os.ReadFile(path)
	if err != nil || string(got) != sampleState {
		t.Errorf("previous state disturbed: %q, %v", got, err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}
