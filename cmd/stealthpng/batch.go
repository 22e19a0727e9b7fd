package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/svanichkin/stealth"
)

// bundleName is the archive written when more than one image is processed.
const bundleName = "all_files_processed.zip"

var errMissingText = errors.New("image has no text metadata after embedding")

type options struct {
	read    bool
	format  string
	decoder stealth.Decoder
	workers int
}

// item is one input image.
type item struct {
	name string
	data []byte
}

// result is the outcome for one item. In read mode text is set, otherwise
// data holds the encoded output image named name.
type result struct {
	name string
	data []byte
	text string
	err  error
}

// processAll runs process over items with at most opts.workers in flight.
// Results keep the order of items.
func processAll(items []item, opts options) []result {
	results := make([]result, len(items))
	sem := make(chan struct{}, max(opts.workers, 1))

	var wg sync.WaitGroup
	for i, it := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = process(it, opts)
		}()
	}
	wg.Wait()
	return results
}

// process handles a single image. Each call owns its picture.
func process(it item, opts options) result {
	pic, _, err := stealth.Load(it.data)
	if err != nil {
		return result{name: it.name, err: fmt.Errorf("%s: %w", it.name, err)}
	}

	if opts.read {
		return result{name: it.name, text: readPayload(pic, opts.decoder).String()}
	}

	if pic.Alpha {
		restore(pic, opts.decoder)
	} else {
		if err := stealth.Encode(pic); err != nil {
			if errors.Is(err, stealth.ErrNoPayload) {
				return result{name: it.name, err: fmt.Errorf("one of the images was missing metadata %s: %w", it.name, err)}
			}
			return result{name: it.name, err: fmt.Errorf("%s: %w", it.name, err)}
		}
		if len(pic.Text) == 0 {
			return result{name: it.name, err: fmt.Errorf("failed to get original text from %s: %w", it.name, errMissingText)}
		}
	}

	var buf bytes.Buffer
	switch opts.format {
	case "qoi":
		err = pic.EncodeQOI(&buf)
	default:
		err = pic.EncodePNG(&buf)
	}
	if err != nil {
		return result{name: it.name, err: fmt.Errorf("%s: %w", it.name, err)}
	}
	return result{name: outputName(it.name, opts.format), data: buf.Bytes()}
}

// readPayload mirrors what the tool shows for an image: the hidden payload
// for images with alpha, the container text otherwise.
func readPayload(pic *stealth.Picture, dec stealth.Decoder) stealth.Payload {
	if pic.Alpha {
		return dec.Read(pic)
	}
	if v, ok := pic.Text.Lookup(stealth.ParametersKey); ok {
		return stealth.Payload{Kind: stealth.KindText, Text: v}
	}
	if len(pic.Text) == 0 {
		return stealth.Payload{}
	}
	return stealth.Payload{Kind: stealth.KindFields, Fields: pic.Text}
}

// restore copies a hidden payload back into the container text.
func restore(pic *stealth.Picture, dec stealth.Decoder) {
	p := dec.Read(pic)
	switch p.Kind {
	case stealth.KindFields:
		for _, e := range p.Fields {
			pic.Text.Set(e.Key, e.Value)
		}
	case stealth.KindText:
		pic.Text.Set(stealth.ParametersKey, p.Text)
	}
}

// outputName turns "photo.final.png" into "photo_with_metadata.png".
func outputName(name, format string) string {
	stem, _, _ := strings.Cut(filepath.Base(name), ".")
	if format != "qoi" {
		format = "png"
	}
	return stem + "_with_metadata." + format
}

// bundle writes every result into a zip archive without compression.
func bundle(w io.Writer, results []result) error {
	zw := zip.NewWriter(w)
	now := time.Now()
	for _, r := range results {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: r.name, Method: zip.Store, Modified: now})
		if err != nil {
			zw.Close()
			return err
		}
		if _, err := fw.Write(r.data); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}
