package main

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/svanichkin/stealth"
)

func makeTestPNG(t *testing.T, w, h int, text stealth.Metadata, embed string) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 9), G: uint8(y * 5), B: uint8(x ^ y), A: 255})
		}
	}
	pic := &stealth.Picture{Pix: img, Text: text}
	if embed != "" {
		if err := stealth.Embed(pic, embed); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := pic.EncodePNG(&buf); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	return buf.Bytes()
}

func TestProcess_EmbedsParameters(t *testing.T) {
	data := makeTestPNG(t, 64, 64, stealth.Metadata{{Key: "parameters", Value: "a cat, Steps: 20"}}, "")
	r := process(item{name: "cat.png", data: data}, options{format: "png"})
	if r.err != nil {
		t.Fatalf("process: %v", r.err)
	}
	if r.name != "cat_with_metadata.png" {
		t.Fatalf("name %q", r.name)
	}

	pic, _, err := stealth.Load(r.data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !pic.Alpha {
		t.Fatalf("output has no alpha")
	}
	if got := pic.Text.Get("parameters"); got != "a cat, Steps: 20" {
		t.Fatalf("container text lost: %q", got)
	}
	if got := stealth.Decode(pic); got.Text != "a cat, Steps: 20" {
		t.Fatalf("hidden payload: %+v", got)
	}
}

func TestProcess_MissingMetadata(t *testing.T) {
	data := makeTestPNG(t, 32, 32, nil, "")
	r := process(item{name: "bare.png", data: data}, options{format: "png"})
	if !errors.Is(r.err, stealth.ErrNoPayload) {
		t.Fatalf("expected ErrNoPayload, got %v", r.err)
	}
	if !strings.Contains(r.err.Error(), "bare.png") {
		t.Fatalf("error does not name the file: %v", r.err)
	}
}

func TestProcess_RestoresText(t *testing.T) {
	data := makeTestPNG(t, 64, 64, nil, `{"prompt": "p", "workflow": "w"}`)
	r := process(item{name: "comfy.png", data: data}, options{format: "png"})
	if r.err != nil {
		t.Fatalf("process: %v", r.err)
	}
	text, err := stealth.ReadText(r.data)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if text.Get("prompt") != "p" || text.Get("workflow") != "w" {
		t.Fatalf("restored text: %v", text)
	}
}

func TestProcess_Read(t *testing.T) {
	for _, tc := range []struct {
		name string
		data []byte
		want string
	}{
		{name: "hidden", data: makeTestPNG(t, 32, 32, nil, "Steps: 20"), want: "Steps: 20"},
		{name: "container", data: makeTestPNG(t, 32, 32, stealth.Metadata{{Key: "parameters", Value: "from text"}}, ""), want: "from text"},
		{name: "fields", data: makeTestPNG(t, 32, 32, stealth.Metadata{{Key: "prompt", Value: "p"}, {Key: "workflow", Value: "w"}}, ""), want: "prompt:\np\n\nworkflow:\nw"},
		{name: "nothing", data: makeTestPNG(t, 32, 32, nil, ""), want: ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := process(item{name: tc.name + ".png", data: tc.data}, options{read: true})
			if r.err != nil {
				t.Fatalf("process: %v", r.err)
			}
			if r.text != tc.want {
				t.Fatalf("got %q want %q", r.text, tc.want)
			}
		})
	}
}

func TestProcess_QOI(t *testing.T) {
	data := makeTestPNG(t, 32, 32, stealth.Metadata{{Key: "parameters", Value: "qoi out"}}, "")
	r := process(item{name: "x.png", data: data}, options{format: "qoi"})
	if r.err != nil {
		t.Fatalf("process: %v", r.err)
	}
	if r.name != "x_with_metadata.qoi" {
		t.Fatalf("name %q", r.name)
	}
	pic, format, err := stealth.Load(r.data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if format != "qoi" {
		t.Fatalf("format %q", format)
	}
	if got := stealth.Read(pic); got.Text != "qoi out" {
		t.Fatalf("payload %+v", got)
	}
}

func TestProcessAll_KeepsOrder(t *testing.T) {
	items := []item{
		{name: "a.png", data: makeTestPNG(t, 32, 32, stealth.Metadata{{Key: "parameters", Value: "a"}}, "")},
		{name: "b.png", data: []byte("not an image")},
		{name: "c.png", data: makeTestPNG(t, 32, 32, stealth.Metadata{{Key: "parameters", Value: "c"}}, "")},
	}
	results := processAll(items, options{format: "png", workers: 2})
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].name != "a_with_metadata.png" || results[2].name != "c_with_metadata.png" {
		t.Fatalf("order: %q %q", results[0].name, results[2].name)
	}
	if results[1].err == nil {
		t.Fatalf("expected an error for a broken input")
	}
}

func TestBundle(t *testing.T) {
	results := []result{
		{name: "a_with_metadata.png", data: []byte("aaa")},
		{name: "b_with_metadata.png", data: []byte("bbbb")},
	}
	var buf bytes.Buffer
	if err := bundle(&buf, results); err != nil {
		t.Fatalf("bundle: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("got %d files", len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != results[i].name || f.Method != zip.Store {
			t.Fatalf("entry %d: %q method %d", i, f.Name, f.Method)
		}
		if f.UncompressedSize64 != uint64(len(results[i].data)) {
			t.Fatalf("entry %d: size %d", i, f.UncompressedSize64)
		}
	}
}

func TestOutputName(t *testing.T) {
	for in, want := range map[string]string{
		"photo.png":        "photo_with_metadata.png",
		"photo.final.webp": "photo_with_metadata.png",
		"dir/noext":        "noext_with_metadata.png",
	} {
		if got := outputName(in, "png"); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}
