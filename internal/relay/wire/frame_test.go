package wire

import (
	"encoding/json"
	"testing"
)

func TestParseEventFrame(t *testing.T) {
	f, err := Parse([]byte(`["EVENT",{"id":"abc"}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Command != CmdEvent {
		t.Fatalf("expected EVENT command, got %q", f.Command)
	}
	if len(f.Args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(f.Args))
	}
}

func TestParseRejectsEmptyArray(t *testing.T) {
	if _, err := Parse([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for empty frame")
	}
}

func TestParseRejectsNonArray(t *testing.T) {
	if _, err := Parse([]byte(`{"not":"an array"}`)); err == nil {
		t.Fatalf("expected error for non-array frame")
	}
}

func TestParseRejectsNonStringCommand(t *testing.T) {
	if _, err := Parse([]byte(`[1,2,3]`)); err == nil {
		t.Fatalf("expected error for non-string leading element")
	}
}

func TestStringArg(t *testing.T) {
	f, err := Parse([]byte(`["CLOSE","sub1"]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	subID, err := f.StringArg(0, "CLOSE subscription id")
	if err != nil {
		t.Fatalf("string arg: %v", err)
	}
	if subID != "sub1" {
		t.Fatalf("expected sub1, got %q", subID)
	}
}

func TestStringArgMissing(t *testing.T) {
	f, err := Parse([]byte(`["CLOSE"]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := f.StringArg(0, "CLOSE subscription id"); err == nil {
		t.Fatalf("expected error for missing arg")
	}
}

func TestOKReplyShape(t *testing.T) {
	var got []interface{}
	if err := json.Unmarshal(OK("deadbeef", true, ""), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got[0] != "OK" || got[1] != "deadbeef" || got[2] != true || got[3] != "" {
		t.Fatalf("unexpected OK shape: %v", got)
	}
}

func TestNoticeErrorPrefixed(t *testing.T) {
	var got []string
	if err := json.Unmarshal(NoticeError("bad msg: x"), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got[0] != "NOTICE" || got[1] != "ERROR: bad msg: x" {
		t.Fatalf("unexpected notice shape: %v", got)
	}
}

func TestEventReplyCarriesRawEventJSON(t *testing.T) {
	raw := json.RawMessage(`{"id":"abc"}`)
	var got []json.RawMessage
	if err := json.Unmarshal(Event("sub1", raw), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(got))
	}
	if string(got[2]) != `{"id":"abc"}` {
		t.Fatalf("expected embedded event json preserved, got %s", got[2])
	}
}
