package assembly

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/go-gota/gota/dataframe"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/gmaffy/genome-batch/utils"
)

var ErrNoSequences = errors.New("no sequences in assembly")

// Stats describes one assembly file.
type Stats struct {
	File      string  `dataframe:"file"`
	Sequences int     `dataframe:"sequences"`
	Size      int     `dataframe:"size"`
	Min       int     `dataframe:"min"`
	Max       int     `dataframe:"max"`
	Mean      float64 `dataframe:"mean"`
	N50       int     `dataframe:"n50"`
	GC        float64 `dataframe:"gc"`
}

// ReadStats parses a (optionally gzipped) FASTA file.
func ReadStats(path string) (Stats, error) {
	fna, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer fna.Close()

	var reader io.Reader = fna
	if strings.HasSuffix(path, ".gz") {
		gzReader, gzErr := gzip.NewReader(fna)
		if gzErr != nil {
			return Stats{}, fmt.Errorf("%s: %w", path, gzErr)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	st, err := FromReader(reader)
	st.File = path
	if err != nil {
		return st, fmt.Errorf("%s: %w", path, err)
	}
	return st, nil
}

func FromReader(reader io.Reader) (Stats, error) {
	r := fasta.NewReader(reader, linear.NewSeq("", nil, alphabet.DNA))
	sc := seqio.NewScanner(r)

	var st Stats
	var lengths []int
	var gc, acgt int
	for sc.Next() {
		seq := sc.Seq().(*linear.Seq)
		lengths = append(lengths, seq.Len())
		for _, l := range seq.Seq {
			switch l {
			case 'G', 'C', 'g', 'c':
				gc++
				acgt++
			case 'A', 'T', 'a', 't':
				acgt++
			}
		}
	}
	if err := sc.Error(); err != nil {
		return st, err
	}
	if len(lengths) == 0 {
		return st, ErrNoSequences
	}

	sort.Sort(sort.Reverse(sort.IntSlice(lengths)))
	st.Sequences = len(lengths)
	st.Max = lengths[0]
	st.Min = lengths[len(lengths)-1]

	floats := make([]float64, len(lengths))
	for i, l := range lengths {
		st.Size += l
		floats[i] = float64(l)
	}
	st.Mean = stat.Mean(floats, nil)
	st.N50 = n50(lengths, st.Size)
	if acgt > 0 {
		st.GC = float64(gc) / float64(acgt)
	}
	return st, nil
}

// n50 expects lengths sorted longest first.
func n50(lengths []int, total int) int {
	var running int
	for _, l := range lengths {
		running += l
		if running*2 >= total {
			return l
		}
	}
	return 0
}

// ReadAll computes stats for every path with at most jobs files open at once.
// Results keep the order of paths.
func ReadAll(ctx context.Context, paths []string, jobs int) ([]Stats, error) {
	results := make([]Stats, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := ReadStats(p)
			if err != nil {
				return err
			}
			results[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// WriteTSV writes one row per assembly.
func WriteTSV(w io.Writer, stats []Stats) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(w, "file\tsequences\tsize\tmin\tmax\tmean\tn50\tgc")
		return err
	}
	df := dataframe.LoadStructs(stats)
	if df.Err != nil {
		return df.Err
	}
	df = df.Select([]string{"file", "sequences", "size", "min", "max", "mean", "n50", "gc"})
	return writeRecords(w, df.Records())
}

// WriteTSVFile writes the table to path and reports a failed close.
func WriteTSVFile(path string, stats []Stats) error {
	return utils.CreateFile(path, func(w io.Writer) error { return WriteTSV(w, stats) })
}

func writeRecords(w io.Writer, records [][]string) error {
	for _, rec := range records {
		if _, err := fmt.Fprintln(w, strings.Join(rec, "\t")); err != nil {
			return err
		}
	}
	return nil
}
