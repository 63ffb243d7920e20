package IO

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mdjhnsn/scrn/params"
)

func TestBuildCharVocabDeterministic(t *testing.T) {
	a := BuildCharVocab([]string{"hello", "world"})
	b := BuildCharVocab([]string{"world", "hello"})
	if diff := cmp.Diff(a.IDToToken, b.IDToToken); diff != "" {
		t.Fatalf("vocab depends on line order:\n%s", diff)
	}

	for id, tok := range params.Special {
		if a.IDToToken[id] != tok {
			t.Errorf("id %d = %q, want %q", id, a.IDToToken[id], tok)
		}
	}
	// distinct runes of "helloworld" in sorted order
	want := []string{"d", "e", "h", "l", "o", "r", "w"}
	got := a.IDToToken[len(params.Special):]
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rune ordering:\n%s", diff)
	}
	if a.Size() != len(params.Special)+len(want) {
		t.Errorf("Size() = %d, want %d", a.Size(), len(params.Special)+len(want))
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	line := "the cat sat"
	v := BuildCharVocab([]string{line})

	ids := EncodeLine(v, line)
	if ids[0] != params.BosID || ids[len(ids)-1] != params.EosID {
		t.Fatalf("encoded line missing sentinels: %v", ids)
	}
	if got := DecodeIDs(v, ids); got != line {
		t.Fatalf("DecodeIDs = %q, want %q", got, line)
	}
}

func TestEncodeLineMapsUnknownRunesToUnk(t *testing.T) {
	v := BuildCharVocab([]string{"ab"})

	ids := EncodeLine(v, "axb")
	wantMid := []int{v.TokenToID["a"], params.UnkID, v.TokenToID["b"]}
	if diff := cmp.Diff(wantMid, ids[1:len(ids)-1]); diff != "" {
		t.Fatalf("unknown rune encoding:\n%s", diff)
	}
	// <unk> is a special, so decode drops it
	if got := DecodeIDs(v, ids); got != "ab" {
		t.Fatalf("DecodeIDs = %q, want %q", got, "ab")
	}
}

func TestVocabJSONRoundTrip(t *testing.T) {
	v := BuildCharVocab([]string{"round trip"})
	path := filepath.Join(t.TempDir(), "vocab.json")

	if err := ExportVocabJSON(v, path); err != nil {
		t.Fatalf("export: %v", err)
	}
	got, err := ImportVocabJSON(path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if diff := cmp.Diff(v.IDToToken, got.IDToToken); diff != "" {
		t.Errorf("IDToToken:\n%s", diff)
	}
	if diff := cmp.Diff(v.TokenToID, got.TokenToID); diff != "" {
		t.Errorf("TokenToID:\n%s", diff)
	}
}

func TestImportVocabJSONRejectsMissingSpecials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := os.WriteFile(path, []byte(`{"TokenToID":{"<pad>":0},"IDToToken":["<pad>"]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportVocabJSON(path); err == nil {
		t.Fatal("expected error for vocab without the reserved tokens")
	}
}

func TestImportVocabJSONRejectsShuffledSpecials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	blob := `{"TokenToID":{"<bos>":0,"<pad>":1,"<eos>":2,"<unk>":3,"a":4},` +
		`"IDToToken":["<bos>","<pad>","<eos>","<unk>","a"]}`
	if err := os.WriteFile(path, []byte(blob), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportVocabJSON(path); err == nil {
		t.Fatal("expected error for reserved tokens out of position")
	}
}

func TestImportVocabJSONRejectsInconsistentMaps(t *testing.T) {
	cases := []struct {
		name string
		blob string
	}{
		{
			"token mapped to the wrong id",
			`{"TokenToID":{"<pad>":0,"<bos>":1,"<eos>":2,"<unk>":3,"a":9},` +
				`"IDToToken":["<pad>","<bos>","<eos>","<unk>","a"]}`,
		},
		{
			"extra token with no id slot",
			`{"TokenToID":{"<pad>":0,"<bos>":1,"<eos>":2,"<unk>":3,"a":4,"z":9},` +
				`"IDToToken":["<pad>","<bos>","<eos>","<unk>","a"]}`,
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vocab.json")
			if err := os.WriteFile(path, []byte(tt.blob), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := ImportVocabJSON(path); err == nil {
				t.Fatal("expected error for maps that disagree")
			}
		})
	}
}
