package form

import (
	"encoding/base64"
	"net/http"
)

// FileValue is a file selected for a file field. Form state holds the
// FileValue itself; the data-URL preview is kept separately.
type FileValue struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"data,omitempty"`
}

// NewFileValue builds a FileValue, sniffing the content type when it is not
// supplied.
func NewFileValue(name, contentType string, data []byte) *FileValue {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &FileValue{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}
}

// DataURL encodes the file as a data URL suitable for a client-side preview.
func (f *FileValue) DataURL() string {
	if f == nil {
		return ""
	}
	return "data:" + f.ContentType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}
