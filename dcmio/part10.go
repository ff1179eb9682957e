package dcmio

import (
	"bytes"
	"io"

	"github.com/suyashkumar/dicom"
)

// ReadFile parses a Part 10 stream of size bytes. Pixel data is skipped.
func ReadFile(r io.Reader, size int64) (dicom.Dataset, error) {
	return dicom.Parse(r, size, nil, dicom.SkipPixelData())
}

// WriteFile writes ds as a Part 10 stream. ds must carry TransferSyntaxUID.
func WriteFile(w io.Writer, ds dicom.Dataset) error {
	return dicom.Write(w, ds)
}

func Encode(ds dicom.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteFile(&buf, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) (dicom.Dataset, error) {
	return ReadFile(bytes.NewReader(data), int64(len(data)))
}
