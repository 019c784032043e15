package safeio

import (
	"errors"
	"net"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/uploads", "job-1.pdf", false},
		{"/data/uploads", "../etc/passwd", true},
		{"/data/uploads", "a/../b.pdf", true},
		{"/data/uploads", "/abs.pdf", false},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"ftp://evil.com/data", true},
		{"javascript:alert(1)", true},
		{"http://127.0.0.1/admin", true},
		{"http://10.0.0.1/internal", true},
		{"http://[::1]/api", true},
		{"http://172.16.0.1/secret", true},
		{"https://8.8.8.8/climate", false},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"0b6f2c1e-job", "a.b_c"} {
		if err := ValidateIdentifier(ok); err != nil {
			t.Errorf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a/b", "a b", strings.Repeat("x", 129)} {
		if ValidateIdentifier(bad) == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	if _, err := LimitedReadAll(strings.NewReader("12345"), 5); err != nil {
		t.Fatal(err)
	}
	if _, err := LimitedReadAll(strings.NewReader("123456"), 5); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestSniffPDF(t *testing.T) {
	if err := SniffPDF([]byte("%PDF-1.7\n%...")); err != nil {
		t.Fatal(err)
	}
	if err := SniffPDF([]byte("PK\x03\x04")); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("err = %v", err)
	}
}

func TestIsPrivateIP(t *testing.T) {
	if !isPrivateIP(net.ParseIP("192.168.0.10")) || isPrivateIP(net.ParseIP("1.1.1.1")) {
		t.Fatal("private range misclassified")
	}
}
