package confignode

import (
	"strings"
	"testing"
)

const sampleDoc = `// roster save fragment
ROSTER
{
	version = 1
	ASTRONAUT
	{
		name = Jeb
		experienceTrait = Pilot
		KEYVALUE
		{
			key = evaStart
			value = 3600.25
		}
	}
	ASTRONAUT {
		name = Val
	}
}
`

func TestParseSample(t *testing.T) {
	root, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	roster, ok := root.FirstNode("ROSTER")
	if !ok {
		t.Fatal("ROSTER node missing")
	}
	if got := roster.Value("version"); got != "1" {
		t.Errorf("version: got %q, want %q", got, "1")
	}

	crew := roster.Nodes("ASTRONAUT")
	if len(crew) != 2 {
		t.Fatalf("ASTRONAUT nodes: got %d, want 2", len(crew))
	}
	if crew[0].Value("name") != "Jeb" || crew[1].Value("name") != "Val" {
		t.Errorf("crew order wrong: %q, %q", crew[0].Value("name"), crew[1].Value("name"))
	}

	kv, ok := crew[0].FirstNode("KEYVALUE")
	if !ok {
		t.Fatal("KEYVALUE node missing")
	}
	if kv.Value("key") != "evaStart" || kv.Value("value") != "3600.25" {
		t.Errorf("KEYVALUE content wrong: %v", kv.Values())
	}
}

func TestParseValueWithEquals(t *testing.T) {
	root, err := Parse([]byte("note = a = b\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := root.Value("note"); got != "a = b" {
		t.Errorf("value must split on first '=': got %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"unmatched close", "}\n", "line 1"},
		{"brace without tag", "{\n}\n", "line 1"},
		{"unclosed node", "ROSTER\n{\n", "unclosed node"},
		{"tag without body", "ROSTER\nname = x\n", "has no body"},
		{"trailing tag", "ROSTER\n", "has no body"},
		{"tag before same-line node", "ROSTER\nASTRONAUT {\n}\n", `line 1: node "ROSTER" has no body`},
		{"nameless assignment", "= oops\n", "line 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	root, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	first := Format(root)
	reparsed, err := Parse(first)
	if err != nil {
		t.Fatalf("Parse(Format) failed: %v", err)
	}
	second := Format(reparsed)
	if string(first) != string(second) {
		t.Errorf("format not stable:\n--- first ---\n%s--- second ---\n%s", first, second)
	}
}

func TestFormatEmptyDocument(t *testing.T) {
	if got := string(Format(NewDocument())); got != "" {
		t.Errorf("empty document: got %q, want empty", got)
	}
}
