// Copyright 2016 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package qos

import "testing"

func TestParseMemory(t *testing.T) {
	cases := []struct {
		text    string
		want    int64
		wantErr bool
	}{
		{"64", 64 * 1024, false},
		{"64kB", 64 * 1024, false},
		{"64KB", 64 * 1024, false},
		{"64k", 64 * 1024, false},
		{"64MB", 64 * 1024 * 1024, false},
		{"64m", 64 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"1g", 1024 * 1024 * 1024, false},
		{"  64MB  ", 64 * 1024 * 1024, false},
		{"-1", Unset, false},
		{"-1MB", 0, true},
		{"-64", -64 * 1024, false},
		{"abc", 0, true},
		{"64TB", 0, true},
		{"", 0, true},
	}
	for _, c := range cases {
		got, err := ParseMemory(c.text)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseMemory(%q): expected error, got %d", c.text, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMemory(%q): unexpected error: %v", c.text, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseMemory(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}

func TestParseMemoryOverflow(t *testing.T) {
	// A number of kilobytes large enough that *1024 overflows int64.
	_, err := ParseMemory("9223372036854775807")
	if err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestCanonicalMemoryRoundTrip(t *testing.T) {
	cases := []int64{64 * 1024, 64 * 1024 * 1024, 1024 * 1024 * 1024, Unset}
	for _, bytes := range cases {
		literal := CanonicalMemory(bytes)
		got, err := ParseMemory(literal)
		if err != nil {
			t.Fatalf("ParseMemory(%q) after CanonicalMemory(%d): %v", literal, bytes, err)
		}
		if got != bytes {
			t.Errorf("round-trip %d -> %q -> %d", bytes, literal, got)
		}
	}
}

func TestParseEntry(t *testing.T) {
	name, value, err := ParseEntry(" qos.cpu_core_limit = 4 ")
	if err != nil {
		t.Fatal(err)
	}
	if name != "qos.cpu_core_limit" || value != "4" {
		t.Errorf("got name=%q value=%q", name, value)
	}

	if _, _, err := ParseEntry("no-equals-sign"); err == nil {
		t.Error("expected error for malformed entry")
	}
}

func TestIsValidName(t *testing.T) {
	if !IsValidName("qos.cpu_core_limit") {
		t.Error("expected qos.cpu_core_limit to be valid")
	}
	if IsValidName("work_mem") {
		t.Error("expected bare work_mem to be invalid")
	}
	if IsValidName("qos.nonexistent") {
		t.Error("expected qos.nonexistent to be invalid")
	}
}

func TestApplyValueStrictInvalidName(t *testing.T) {
	limits := UnsetLimits()
	err := ApplyValue(&limits, "not.qos", "1", true)
	if _, ok := err.(*InvalidNameError); !ok {
		t.Fatalf("expected *InvalidNameError, got %v (%T)", err, err)
	}
}

func TestApplyValueStrictInvalidValue(t *testing.T) {
	limits := UnsetLimits()
	err := ApplyValue(&limits, string(NameCPUCoreLimit), "-5", true)
	if _, ok := err.(*InvalidValueError); !ok {
		t.Fatalf("expected *InvalidValueError, got %v (%T)", err, err)
	}
}

func TestApplyValueEachField(t *testing.T) {
	limits := UnsetLimits()
	entries := []struct {
		name  Name
		value string
	}{
		{NameWorkMemLimit, "32MB"},
		{NameCPUCoreLimit, "4"},
		{NameMaxConcurrentTx, "10"},
		{NameMaxConcurrentSelect, "2"},
		{NameMaxConcurrentUpdate, "1"},
		{NameMaxConcurrentDelete, "1"},
		{NameMaxConcurrentInsert, "1"},
		{NameWorkMemErrorLevel, "WARNING"},
	}
	for _, e := range entries {
		if err := ApplyValue(&limits, string(e.name), e.value, true); err != nil {
			t.Fatalf("ApplyValue(%s, %q): %v", e.name, e.value, err)
		}
	}

	if limits.WorkMemBytes != 32*1024*1024 {
		t.Errorf("WorkMemBytes = %d", limits.WorkMemBytes)
	}
	if limits.CPUCoreLimit != 4 {
		t.Errorf("CPUCoreLimit = %d", limits.CPUCoreLimit)
	}
	if limits.MaxConcurrentTx != 10 {
		t.Errorf("MaxConcurrentTx = %d", limits.MaxConcurrentTx)
	}
	if limits.WorkMemErrorLevel != ErrorLevelWarn {
		t.Errorf("WorkMemErrorLevel = %v", limits.WorkMemErrorLevel)
	}
}

func TestApplyValueNonStrictDropsMalformed(t *testing.T) {
	limits := UnsetLimits()
	err := ApplyValue(&limits, string(NameCPUCoreLimit), "not-a-number", false)
	if err == nil {
		t.Fatal("expected an error the caller is responsible for dropping")
	}
	if limits.CPUCoreLimit != Unset {
		t.Errorf("limits should be untouched on a dropped entry, got %d", limits.CPUCoreLimit)
	}
}

func TestErrorCodes(t *testing.T) {
	le := &LimitExceededError{Kind: "SELECT statements", Current: 2, Max: 2}
	if got := CodeOf(le.AsPGError()); got != "54000" {
		t.Errorf("LimitExceededError code = %q", got)
	}

	wm := &WorkMemExceededError{RequestedKB: 65536, MaxKB: 32768}
	if got := CodeOf(wm.AsPGError()); got != "53000" {
		t.Errorf("WorkMemExceededError code = %q", got)
	}
}
