package media

import (
	"path/filepath"
	"strings"

	"mergeflow/internal/episode"
	"mergeflow/internal/textutil"
)

// LabelSource selects which text of a file is parsed for episode numbers.
type LabelSource string

const (
	LabelFromFilename LabelSource = "filename"
	LabelFromCaption  LabelSource = "caption"
)

// FileSpec carries the raw attributes of an incoming file.
type FileSpec struct {
	Name     string `json:"name"`
	Caption  string `json:"caption,omitempty"`
	Handle   string `json:"handle"`
	Size     int64  `json:"size,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// File is an immutable file descriptor. Construct it with NewFile.
type File struct {
	label         string
	spec          FileSpec
	info          episode.ParsedInfo
	labelFallback bool
}

// NewFile builds a descriptor and parses its label. In caption mode a file
// without a caption falls back to its filename and LabelFallback reports it.
func NewFile(spec FileSpec, source LabelSource) File {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Caption = strings.TrimSpace(spec.Caption)
	spec.Handle = strings.TrimSpace(spec.Handle)

	label, fallback := spec.Name, false
	if source == LabelFromCaption {
		if spec.Caption != "" {
			label = spec.Caption
		} else {
			fallback = true
		}
	}
	return File{
		label:         label,
		spec:          spec,
		info:          episode.Parse(label),
		labelFallback: fallback,
	}
}

// Label is the text the episode numbers were parsed from.
func (f File) Label() string { return f.label }

// Name is the original filename.
func (f File) Name() string { return f.spec.Name }

// Caption is the free-text caption, if any.
func (f File) Caption() string { return f.spec.Caption }

// Handle is the opaque transport reference used to fetch the content.
func (f File) Handle() string { return f.spec.Handle }

// Size is the declared size in bytes, or 0 when unknown.
func (f File) Size() int64 { return f.spec.Size }

// MIMEType is the declared content type, if any.
func (f File) MIMEType() string { return f.spec.MIMEType }

// Spec returns the raw attributes.
func (f File) Spec() FileSpec { return f.spec }

// Info returns the parsed episode numbers.
func (f File) Info() episode.ParsedInfo { return f.info }

// Key returns the season/episode key.
func (f File) Key() episode.Key { return f.info.Key() }

// LabelFallback reports a caption-mode file that had no caption.
func (f File) LabelFallback() bool { return f.labelFallback }

// SafeName returns the filename made safe for the local filesystem, falling
// back to the key when the name sanitizes to nothing.
func (f File) SafeName() string {
	if name := textutil.SanitizeFileName(f.spec.Name); name != "" {
		return name
	}
	return f.Key().String()
}

// OutputName is the merged container name: the source stem with .mkv.
func (f File) OutputName() string {
	name := f.SafeName()
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".mkv"
}
