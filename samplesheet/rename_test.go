package samplesheet

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/gmaffy/genome-batch/utils"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSheet(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(">c\nACGT\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestReadSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.xlsx")
	writeSheet(t, path, [][]string{
		{"Sample", "Strain"},
		{"S01", " JJ-340 "},
		{"", ""},
		{"S02", "JJ-341"},
	})
	rows, err := ReadSheet(path, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []Row{{"S01", "JJ-340"}, {"S02", "JJ-341"}}
	if !slices.Equal(rows, want) {
		t.Errorf("rows = %+v", rows)
	}
}

func TestReadSheetMalformedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.xlsx")
	writeSheet(t, path, [][]string{{"Sample", "Strain"}, {"S01"}})
	if _, err := ReadSheet(path, "Sheet1"); err == nil {
		t.Error("row without strain ID should abort")
	}
}

func TestApplyCollisionsAndExceptions(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "raw")
	links := filepath.Join(root, "Genome_fastas")
	os.MkdirAll(src, 0755)
	os.MkdirAll(links, 0755)
	for _, n := range []string{"S01_contigs.fa.gz", "S02_contigs.fa.gz", "S03_a.fa.gz", "S03_b.fa.gz"} {
		touch(t, filepath.Join(src, n))
	}
	// left over from an earlier run
	os.Symlink("nowhere.fa.gz", filepath.Join(links, "Paenibacillus_sp_OLD.fa.gz"))

	r := &Renamer{
		SourceDir:  src,
		LinkDir:    links,
		LinkPrefix: "Paenibacillus_sp",
		Ext:        ".fa.gz",
		ManualLinks: []utils.ManualLink{
			{Link: "Paenibacillus_sp_JJ-999.fa.gz", Target: "../raw/S03_a.fa.gz"},
		},
		Log: quietLogger(),
	}
	res, err := r.Apply([]Row{
		{"S01", "JJ-340"},
		{"S02", "JJ-340"},
		{"S03", "JJ-500"},
		{"S04", "JJ-600"},
	})
	if err != nil {
		t.Fatal(err)
	}

	first := filepath.Join(links, "Paenibacillus_sp_JJ-340.fa.gz")
	second := filepath.Join(links, "Paenibacillus_sp_JJ-340_1.fa.gz")
	for link, want := range map[string]string{first: "S01_contigs.fa.gz", second: "S02_contigs.fa.gz"} {
		target, err := os.Readlink(link)
		if err != nil {
			t.Fatalf("%s: %v", link, err)
		}
		if target != filepath.Join("..", "raw", want) {
			t.Errorf("%s -> %s", link, target)
		}
		if _, err := os.Stat(link); err != nil {
			t.Errorf("%s does not resolve: %v", link, err)
		}
	}
	if _, err := os.Lstat(filepath.Join(links, "Paenibacillus_sp_OLD.fa.gz")); !os.IsNotExist(err) {
		t.Error("old symlink should have been removed")
	}
	if _, err := os.Stat(filepath.Join(links, "Paenibacillus_sp_JJ-999.fa.gz")); err != nil {
		t.Errorf("manual link: %v", err)
	}

	var ex bytes.Buffer
	if err := WriteExceptions(&ex, res.Exceptions); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"JJ-340\tPaenibacillus_sp_JJ-340.fa.gz",
		"JJ-340\tPaenibacillus_sp_JJ-340_1.fa.gz",
		"JJ-500\tS03_a.fa.gz\tS03_b.fa.gz",
		"JJ-600",
	}, "\n") + "\n"
	if ex.String() != want {
		t.Errorf("exceptions:\n%s\nwant:\n%s", ex.String(), want)
	}

	var rl bytes.Buffer
	if err := WriteRenameList(&rl, res.Links); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(rl.String()), "\n")
	if len(lines) != 3 || lines[0] != "source_file\tsymlink" || lines[2] != "S02_contigs.fa.gz\tPaenibacillus_sp_JJ-340_1.fa.gz" {
		t.Errorf("rename list = %q", lines)
	}
}

func TestApplyIsRepeatable(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "raw")
	os.MkdirAll(src, 0755)
	touch(t, filepath.Join(src, "S01_x.fa.gz"))
	r := &Renamer{SourceDir: src, LinkDir: filepath.Join(root, "links"), LinkPrefix: "P_sp", Ext: ".fa.gz", Log: quietLogger()}

	for i := 0; i < 2; i++ {
		res, err := r.Apply([]Row{{"S01", "JJ-1"}})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Exceptions) != 0 || res.Links["S01_x.fa.gz"] != "P_sp_JJ-1.fa.gz" {
			t.Errorf("run %d: %+v", i, res)
		}
	}
}
