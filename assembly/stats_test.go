package assembly

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const contigs = `>c1 len=8
ACGTACGT
>c2
GGGGCC
>c3
AT
>c4
ACGT
`

func TestFromReader(t *testing.T) {
	st, err := FromReader(strings.NewReader(contigs))
	if err != nil {
		t.Fatal(err)
	}
	if st.Sequences != 4 || st.Size != 20 || st.Min != 2 || st.Max != 8 {
		t.Errorf("stats = %+v", st)
	}
	// sorted 8,6,4,2: 8+6 >= 10
	if st.N50 != 6 {
		t.Errorf("N50 = %d, want 6", st.N50)
	}
	if st.Mean != 5 {
		t.Errorf("mean = %v", st.Mean)
	}
	// G/C: c1 4, c2 6, c3 0, c4 2 -> 12/20
	if math.Abs(st.GC-0.6) > 1e-9 {
		t.Errorf("GC = %v, want 0.6", st.GC)
	}
}

func TestFromReaderEmpty(t *testing.T) {
	if _, err := FromReader(strings.NewReader("")); !errors.Is(err, ErrNoSequences) {
		t.Errorf("err = %v, want ErrNoSequences", err)
	}
}

func TestN50(t *testing.T) {
	cases := []struct {
		lengths []int
		want    int
	}{
		{[]int{100}, 100},
		{[]int{50, 30, 20}, 50},
		{[]int{40, 30, 20, 10}, 30},
		{[]int{10, 10, 10, 10}, 10},
	}
	for _, c := range cases {
		total := 0
		for _, l := range c.lengths {
			total += l
		}
		if got := n50(c.lengths, total); got != c.want {
			t.Errorf("n50(%v) = %d, want %d", c.lengths, got, c.want)
		}
	}
}

func TestReadAllGzipAndOrder(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "b.fa")
	if err := os.WriteFile(plain, []byte(">x\nAAAA\n"), 0644); err != nil {
		t.Fatal(err)
	}
	gz := filepath.Join(dir, "a.fa.gz")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(contigs))
	zw.Close()
	if err := os.WriteFile(gz, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	stats, err := ReadAll(context.Background(), []string{plain, gz}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if stats[0].File != plain || stats[0].Size != 4 || stats[0].GC != 0 {
		t.Errorf("plain = %+v", stats[0])
	}
	if stats[1].File != gz || stats[1].N50 != 6 {
		t.Errorf("gz = %+v", stats[1])
	}

	var out bytes.Buffer
	if err := WriteTSV(&out, stats); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || lines[0] != "file\tsequences\tsize\tmin\tmax\tmean\tn50\tgc" {
		t.Errorf("tsv = %q", out.String())
	}
}

func TestReadAllMissingFile(t *testing.T) {
	if _, err := ReadAll(context.Background(), []string{filepath.Join(t.TempDir(), "nope.fa")}, 1); err == nil {
		t.Error("expected error")
	}
}

func TestWriteTSVFile(t *testing.T) {
	dir := t.TempDir()
	st, err := FromReader(strings.NewReader(contigs))
	if err != nil {
		t.Fatal(err)
	}
	st.File = "a.fa"
	path := filepath.Join(dir, "stats.tsv")
	if err := WriteTSVFile(path, []Stats{st}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "a.fa\t4\t20\t") {
		t.Errorf("file = %q", data)
	}

	if err := WriteTSVFile(filepath.Join(dir, "missing", "stats.tsv"), []Stats{st}); err == nil {
		t.Error("unwritable path should fail")
	}
}
