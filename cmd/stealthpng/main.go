package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/svanichkin/stealth"
)

func main() {
	fs := flag.NewFlagSet("stealthpng", flag.ExitOnError)
	read := fs.Bool("read", false, "print the metadata of each image instead of writing images")
	outDir := fs.String("o", ".", "output directory")
	format := fs.String("format", "png", "output format: png or qoi")
	scrub := fs.String("scrub", "lsb", "alpha scrubbing while reading: lsb, alpha or none")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Embed/restore: stealthpng [-o dir] [-format png|qoi] <image>...\nRead: stealthpng -read <image>...\n")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	opts := options{read: *read, workers: runtime.NumCPU()}
	switch *format {
	case "png", "qoi":
		opts.format = *format
	default:
		fmt.Fprintln(os.Stderr, "format must be png or qoi")
		os.Exit(1)
	}
	switch *scrub {
	case "lsb":
		opts.decoder.Scrub = stealth.ScrubLSB
	case "alpha":
		opts.decoder.Scrub = stealth.ScrubAlpha
	case "none":
		opts.decoder.Scrub = stealth.ScrubNone
	default:
		fmt.Fprintln(os.Stderr, "scrub must be lsb, alpha or none")
		os.Exit(1)
	}
	if v := os.Getenv("STEALTHPNG_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fmt.Fprintln(os.Stderr, "STEALTHPNG_WORKERS must be a positive integer")
			os.Exit(1)
		}
		opts.workers = n
	}

	items := make([]item, 0, fs.NArg())
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		items = append(items, item{name: filepath.Base(path), data: data})
	}

	results := processAll(items, opts)
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintln(os.Stderr, "error:", r.err)
			os.Exit(1)
		}
	}

	if opts.read {
		for _, r := range results {
			fmt.Printf("== %s ==\n%s\n\n", r.name, r.text)
		}
		return
	}

	if err := writeResults(*outDir, results); err != nil {
		fmt.Fprintln(os.Stderr, "write error:", err)
		os.Exit(1)
	}
}

// writeResults stores a single result as is and several as one zip.
func writeResults(dir string, results []result) error {
	if len(results) == 1 {
		path := filepath.Join(dir, results[0].name)
		if err := os.WriteFile(path, results[0].data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
		return nil
	}

	var buf bytes.Buffer
	if err := bundle(&buf, results); err != nil {
		return err
	}
	path := filepath.Join(dir, bundleName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d images → %s\n", len(results), path)
	return nil
}
