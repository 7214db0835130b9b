package settings

import (
	"testing"

	"github.com/spf13/afero"

	"periphio/errcode"
)

const doc = `
WIFI_SSID = "workshop"
WIFI_PASSWORD = "hunter2"
PORT = 8080
RATIO = 0.25
DEBUG = true
RETRIES = "3"
LIST = [1, 2]

[server]
host = "x"
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := s.Getenv("WIFI_SSID", ""); got != "workshop" {
		t.Fatalf("ssid = %q", got)
	}
	if got := s.Getenv("PORT", ""); got != "8080" {
		t.Fatalf("port as string = %q", got)
	}
	if got := s.Getenv("RATIO", ""); got != "0.25" {
		t.Fatalf("ratio as string = %q", got)
	}
	if got := s.Getenv("MISSING", "dflt"); got != "dflt" {
		t.Fatalf("missing = %q", got)
	}
	if got := s.Int("PORT", 0); got != 8080 {
		t.Fatalf("port = %d", got)
	}
	if got := s.Int("RETRIES", 0); got != 3 {
		t.Fatalf("retries = %d", got)
	}
	if got := s.Int("WIFI_SSID", 7); got != 7 {
		t.Fatalf("non-numeric int = %d", got)
	}
	if !s.Bool("DEBUG", false) {
		t.Fatal("debug false")
	}
	if s.Bool("MISSING", false) {
		t.Fatal("missing bool true")
	}
}

func TestNonScalarsIgnored(t *testing.T) {
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Lookup("LIST"); ok {
		t.Fatal("array kept")
	}
	if _, ok := s.Lookup("server"); ok {
		t.Fatal("table kept")
	}
	want := []string{"DEBUG", "PORT", "RATIO", "RETRIES", "WIFI_PASSWORD", "WIFI_SSID"}
	keys := s.Keys()
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v", keys)
		}
	}
}

func TestParseError(t *testing.T) {
	_, err := Parse([]byte("KEY = \n"))
	if errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("want invalid_params, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := Load(fs, DefaultPath)
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if len(s.Keys()) != 0 {
		t.Fatalf("keys = %v", s.Keys())
	}

	afero.WriteFile(fs, DefaultPath, []byte(`TOKEN = "abc"`), 0o644)
	s, err = Load(fs, DefaultPath)
	if err != nil {
		t.Fatal(err)
	}
	if s.Getenv("TOKEN", "") != "abc" {
		t.Fatalf("token = %q", s.Getenv("TOKEN", ""))
	}
}
