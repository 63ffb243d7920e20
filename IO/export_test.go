package IO

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writeTempCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestExportReadRoundTrip(t *testing.T) {
	lines := []string{"ab", "ba", "aab"}
	in := writeTempCorpus(t, "ab\nba\naab\n")
	v := BuildCharVocab(lines)
	encode := func(s string) []int { return EncodeLine(v, s) }

	prefix := filepath.Join(t.TempDir(), "train")
	require.NoError(t, ExportTokenIDsBinary(in, prefix, 1<<20, encode))

	got, err := ReadTokenIDShards(prefix)
	require.NoError(t, err)

	want := [][]int{encode("ab"), encode("ba"), encode("aab")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("shard round trip:\n%s", diff)
	}
}

func TestExportSkipsBlankLines(t *testing.T) {
	in := writeTempCorpus(t, "ab\n\nba\n")
	v := BuildCharVocab([]string{"ab", "ba"})
	encode := func(s string) []int { return EncodeLine(v, s) }

	prefix := filepath.Join(t.TempDir(), "train")
	require.NoError(t, ExportTokenIDsBinary(in, prefix, 1<<20, encode))

	got, err := ReadTokenIDShards(prefix)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestExportShardRollover(t *testing.T) {
	in := writeTempCorpus(t, "ab\nba\n")
	v := BuildCharVocab([]string{"ab", "ba"})
	encode := func(s string) []int { return EncodeLine(v, s) }

	// every line exceeds 4 bytes, so each one lands in its own shard
	prefix := filepath.Join(t.TempDir(), "train")
	require.NoError(t, ExportTokenIDsBinary(in, prefix, 4, encode))

	require.True(t, FileExists(fmt.Sprintf("%s-000.bin", prefix)))
	require.True(t, FileExists(fmt.Sprintf("%s-001.bin", prefix)))

	got, err := ReadTokenIDShards(prefix)
	require.NoError(t, err)
	want := [][]int{encode("ab"), encode("ba")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rollover lost sequences:\n%s", diff)
	}
}

func TestReadTokenIDShardsMissingPrefix(t *testing.T) {
	_, err := ReadTokenIDShards(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestReadTokenIDShardsRejectsTruncatedIndex(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "train")
	require.NoError(t, os.WriteFile(prefix+"-000.bin", []byte{1, 0, 0, 0}, 0644))
	require.NoError(t, os.WriteFile(prefix+"-000.idx", []byte{0, 0, 0}, 0644))
	_, err := ReadTokenIDShards(prefix)
	require.Error(t, err)
}
