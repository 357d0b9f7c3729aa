package normalize

import (
	"path/filepath"
	"strings"
)

// File is a captured or selected file before it enters the upload queue.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

var heifBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heim": true, "heis": true, "mif1": true, "msf1": true,
}

var heifMIMETypes = map[string]bool{
	"image/heic":          true,
	"image/heif":          true,
	"image/heic-sequence": true,
	"image/heif-sequence": true,
}

// IsProprietaryContainer reports whether f is a HEIF-family image. The
// container signature wins over the declared type; when there are too few
// bytes to read a signature the declared type is not trusted either.
func IsProprietaryContainer(f File) bool {
	if len(f.Data) < 12 {
		return false
	}
	if string(f.Data[4:8]) == "ftyp" {
		return heifBrands[strings.ToLower(string(f.Data[8:12]))]
	}
	return false
}

// declaredHEIF reports whether the name or MIME type claims HEIF content.
func declaredHEIF(f File) bool {
	if heifMIMETypes[strings.ToLower(f.MimeType)] {
		return true
	}
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".heic", ".heif":
		return true
	}
	return false
}
