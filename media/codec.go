package media

import (
	"bytes"
	"image"
	"image/png"
	"strings"

	// Registered for image.Decode.
	_ "image/gif"
	_ "image/jpeg"

	"github.com/GoCodeAlone/kiejob/failure"
)

// ImageDecoder decodes PNG, JPEG or GIF results. When Dir is set the
// original bytes are also written there.
type ImageDecoder struct {
	Dir string
}

// Decode implements Decoder.
func (d ImageDecoder) Decode(data []byte) (Artifact, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Artifact{}, decodeError("Failed to decode result image: %v", err)
	}
	a := Artifact{Format: format, Size: len(data), Digest: Digest(data), Image: img}
	if d.Dir != "" {
		path, err := writeArtifact(d.Dir, a.Digest, format, data)
		if err != nil {
			return Artifact{}, failure.Wrap(failure.Fatal, "decode", err, "save result image")
		}
		a.Path = path
	}
	return a, nil
}

// FileDecoder writes opaque results such as video or audio to Dir.
type FileDecoder struct {
	Dir string
	// Ext is the file extension without dot, e.g. "mp4".
	Ext string
}

// Decode implements Decoder.
func (d FileDecoder) Decode(data []byte) (Artifact, error) {
	if len(data) == 0 {
		return Artifact{}, decodeError("result file is empty")
	}
	ext := strings.TrimPrefix(d.Ext, ".")
	if ext == "" {
		ext = "bin"
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	digest := Digest(data)
	path, err := writeArtifact(dir, digest, ext, data)
	if err != nil {
		return Artifact{}, failure.Wrap(failure.Fatal, "decode", err, "Failed to write result file")
	}
	return Artifact{Format: ext, Size: len(data), Digest: digest, Path: path}, nil
}

// PNGEncoder encodes image.Image values as PNG.
type PNGEncoder struct{}

// Encode implements Encoder.
func (PNGEncoder) Encode(v any) ([]byte, string, error) {
	img, ok := v.(image.Image)
	if !ok {
		return nil, "", failure.Fatalf("encode", "PNG encoder expects an image, got %T", v)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", failure.Wrap(failure.Fatal, "encode", err, "encode PNG")
	}
	return buf.Bytes(), "image/png", nil
}
